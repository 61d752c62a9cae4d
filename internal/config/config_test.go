package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"datahandler/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("DATAHANDLER_DATABASE_URL", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "datahandler")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Store.Backend != config.StoreSQLite {
		t.Fatalf("expected sqlite backend by default, got %q", cfg.Store.Backend)
	}
	if cfg.Store.SQLitePath != filepath.Join(wantState, "inventory.db") {
		t.Fatalf("unexpected sqlite path: %q", cfg.Store.SQLitePath)
	}
	if cfg.Queue.Backend != config.QueueLocal {
		t.Fatalf("expected local queue by default, got %q", cfg.Queue.Backend)
	}
	defaults := config.Default()
	if cfg.Scheduler != defaults.Scheduler {
		t.Fatalf("unexpected scheduler defaults: %+v", cfg.Scheduler)
	}
	if cfg.Scheduler.MaxFetchRetries != 3 {
		t.Fatalf("expected retry budget 3, got %d", cfg.Scheduler.MaxFetchRetries)
	}
	if cfg.Scheduler.ProcessBatchSize != 5 {
		t.Fatalf("expected process batch size 5, got %d", cfg.Scheduler.ProcessBatchSize)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("expected console logging, got %q", cfg.Logging.Format)
	}
	if cfg.LockPath() != filepath.Join(wantState, "datahandlerd.lock") {
		t.Fatalf("unexpected lock path: %q", cfg.LockPath())
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "datahandler.toml")

	type driver struct {
		Name     string              `toml:"name"`
		Products map[string][]string `toml:"products"`
	}
	type variable struct {
		Name    string `toml:"name"`
		Driver  string `toml:"driver"`
		Product string `toml:"product"`
	}
	type payload struct {
		Paths struct {
			StateDir string `toml:"state_dir"`
		} `toml:"paths"`
		Scheduler struct {
			FetchBatches   int `toml:"fetch_batches"`
			FetchBatchSize int `toml:"fetch_batch_size"`
		} `toml:"scheduler"`
		Queue struct {
			Backend string `toml:"backend"`
		} `toml:"queue"`
		Drivers   []driver   `toml:"drivers"`
		Variables []variable `toml:"variables"`
	}
	custom := payload{}
	custom.Paths.StateDir = filepath.Join(tempDir, "state")
	custom.Scheduler.FetchBatches = 2
	custom.Scheduler.FetchBatchSize = 4
	custom.Queue.Backend = "LOCAL"
	custom.Drivers = []driver{{Name: "landsat", Products: map[string][]string{"ndvi": {"SR"}}}}
	custom.Variables = []variable{{Name: "landsat_ndvi", Driver: "landsat", Product: "ndvi"}}
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Scheduler.FetchBatches != 2 || cfg.Scheduler.FetchBatchSize != 4 {
		t.Fatalf("expected fetch sizing override, got %+v", cfg.Scheduler)
	}
	if cfg.Scheduler.ProcessBatchSize != 5 {
		t.Fatalf("expected untouched default process batch size, got %d", cfg.Scheduler.ProcessBatchSize)
	}
	if cfg.Queue.Backend != config.QueueLocal {
		t.Fatalf("expected backend to be canonicalized, got %q", cfg.Queue.Backend)
	}
	if cfg.Drivers[0].Kind != "static" {
		t.Fatalf("expected default driver kind, got %q", cfg.Drivers[0].Kind)
	}
	v, ok := cfg.Variable("landsat_ndvi")
	if !ok || v.Product != "ndvi" {
		t.Fatalf("expected variable lookup to succeed, got %+v ok=%v", v, ok)
	}
	if _, ok := cfg.Variable("missing"); ok {
		t.Fatal("expected unknown variable lookup to fail")
	}
	if got := cfg.DriverNames(); len(got) != 1 || got[0] != "landsat" {
		t.Fatalf("unexpected driver names: %v", got)
	}
	if cfg.Store.SQLitePath != filepath.Join(tempDir, "state", "inventory.db") {
		t.Fatalf("expected sqlite path under state dir, got %q", cfg.Store.SQLitePath)
	}
}

func TestEnvVarProvidesPostgresDSN(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "datahandler.toml")
	contents := "[store]\nbackend = \"postgresql\"\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("DATAHANDLER_DATABASE_URL", "")
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected error when postgres backend has no dsn")
	}

	t.Setenv("DATAHANDLER_DATABASE_URL", "postgres://u:p@localhost/db")
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Store.Backend != config.StorePostgres {
		t.Fatalf("expected postgres backend, got %q", cfg.Store.Backend)
	}
	if cfg.Store.DSN != "postgres://u:p@localhost/db" {
		t.Fatalf("expected dsn from env, got %q", cfg.Store.DSN)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[[variables]]") {
		t.Fatalf("sample config missing variable catalog: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if len(cfg.Drivers) == 0 || len(cfg.Variables) == 0 {
		t.Fatalf("expected sample drivers and variables, got %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config should validate: %v", err)
	}

	if runtime.GOOS != "windows" {
		if !strings.Contains(cfg.Paths.StateDir, "datahandler") {
			t.Fatalf("expected state dir to contain datahandler, got %q", cfg.Paths.StateDir)
		}
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cfg = config.Default()
	cfg.Scheduler.FetchBatchSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive fetch batch size")
	}

	cfg = config.Default()
	cfg.Store.Backend = "mysql"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported store backend")
	}

	cfg = config.Default()
	cfg.Queue.Backend = config.QueueKubernetes
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when kubernetes backend has no image")
	}

	cfg = config.Default()
	cfg.Queue.Backend = config.QueueKafka
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when kafka backend has no brokers")
	}

	cfg = config.Default()
	cfg.Variables = []config.Variable{{Name: "v", Driver: "missing", Product: "p"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for variable with unknown driver")
	}

	cfg = config.Default()
	cfg.Drivers = []config.Driver{{Name: "d", Products: map[string][]string{"p": {"A"}}}}
	cfg.Variables = []config.Variable{{Name: "v", Driver: "d", Product: "other"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for variable with unknown product")
	}

	cfg = config.Default()
	cfg.Drivers = []config.Driver{{Name: "d", Products: map[string][]string{"p": nil}}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for product without asset types")
	}

	cfg = config.Default()
	cfg.Telemetry.SampleRatio = 2
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for sample ratio above 1")
	}
}
