package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"datahandler/internal/api"
	"datahandler/internal/services"
)

func TestCLISubmitScheduleAndStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{
		"submit", "--site", "plot-7", "--variable", "ndvi",
		"--tiles", "h12v04,h13v04", "--dates", "2020-001,2020-003", "--json",
	}, env.configPath)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	var submitted api.JobResponse
	if err := json.Unmarshal([]byte(out), &submitted); err != nil {
		t.Fatalf("decode submit output %q: %v", out, err)
	}
	if submitted.Job.ID == 0 || submitted.Job.Status != "requested" {
		t.Fatalf("unexpected submitted job: %+v", submitted.Job)
	}
	if submitted.Job.Driver != "modis" || submitted.Job.Product != "ndvi" {
		t.Fatalf("variable not resolved: %+v", submitted.Job)
	}

	out, _, err = runCLI(t, []string{"status", "job", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("status job: %v", err)
	}
	requireContains(t, out, "Job 1:")
	requireContains(t, out, "requested")

	out, _, err = runCLI(t, []string{"schedule", "--cycles", "10"}, env.configPath)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	requireContains(t, out, "Cycle ")
	requireContains(t, out, "no work found")

	out, _, err = runCLI(t, []string{"status", "job", "1", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("status job --json: %v", err)
	}
	var status api.JobStatusResponse
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status output %q: %v", out, err)
	}
	if status.Status != "complete" {
		t.Fatalf("expected job complete after scheduling, got %+v", status)
	}

	out, _, err = runCLI(t, []string{"inventory", "products", "--status", "complete"}, env.configPath)
	if err != nil {
		t.Fatalf("inventory products: %v", err)
	}
	requireContains(t, out, "h12v04")
	requireContains(t, out, "h13v04")

	out, _, err = runCLI(t, []string{"inventory", "jobs", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("inventory jobs: %v", err)
	}
	var jobs []api.JobView
	if err := json.Unmarshal([]byte(out), &jobs); err != nil {
		t.Fatalf("decode jobs output %q: %v", out, err)
	}
	if len(jobs) != 1 || jobs[0].Site != "plot-7" {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
}

func TestCLIScheduleIdleIsNotAnError(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"schedule"}, env.configPath)
	if err != nil {
		t.Fatalf("schedule on empty store: %v", err)
	}
	requireContains(t, out, "no work found")
}

func TestCLISubmitRejectsUnknownVariable(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{
		"submit", "--variable", "lst", "--tiles", "h12v04", "--dates", "2020-001",
	}, env.configPath)
	if err == nil {
		t.Fatal("expected unknown variable to fail")
	}
	if code := exitCode(err); code != 2 {
		t.Fatalf("expected exit code 2 for parameter error, got %d (%v)", code, err)
	}
}

func TestCLISubmitRequiresExtent(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"submit", "--variable", "ndvi", "--dates", "2020"}, env.configPath)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCLITaskRejectsUnknownKind(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"task", "rip", "1"}, env.configPath)
	if err == nil {
		t.Fatal("expected unknown task kind to fail")
	}
	if exitCode(err) != 2 {
		t.Fatalf("expected parameter error, got %v", err)
	}
}

func TestCLIQueryListsMissingProducts(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{
		"query", "--driver", "modis", "--products", "ndvi",
		"--tiles", "h12v04", "--dates", "2020-001,2020-002",
	}, env.configPath)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	requireContains(t, out, "h12v04")
}

func TestCLIStatusJobMissing(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status", "job", "42", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("status job: %v", err)
	}
	var status api.JobStatusResponse
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status output %q: %v", out, err)
	}
	if status.ID != 42 || status.Status != api.StatusDoesNotExist {
		t.Fatalf("unexpected status for missing job: %+v", status)
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "nested", "datahandler.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, target)
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[scheduler]") {
		t.Fatalf("sample config missing scheduler section: %s", data)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Daemon.APIToken = "hunter2"
	writeTestConfig(t, env.configPath, env.cfg)

	out, _, err := runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "hunter2") {
		t.Fatalf("token leaked in config show: %q", out)
	}
	requireContains(t, out, "<redacted>")
}

func TestRedactDSN(t *testing.T) {
	got := redactDSN("postgres://scheduler:secret@db:5432/inventory?sslmode=disable")
	if strings.Contains(got, "secret") {
		t.Fatalf("password not redacted: %q", got)
	}
	if !strings.Contains(got, "scheduler:redacted@db:5432") {
		t.Fatalf("unexpected redacted dsn: %q", got)
	}
	if redactDSN("") != "" {
		t.Fatal("empty dsn should stay empty")
	}
}
