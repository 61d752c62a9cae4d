package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Store selects and configures the work-item store backend.
type Store struct {
	Backend    string `toml:"backend"`
	SQLitePath string `toml:"sqlite_path"`
	DSN        string `toml:"dsn"`
	MaxConns   int    `toml:"max_conns"`
}

// Scheduler contains batch sizing, retry budget, and cadence settings for the
// four scheduling phases.
type Scheduler struct {
	IntervalSeconds         int `toml:"interval_seconds"`
	FetchBatches            int `toml:"fetch_batches"`
	FetchBatchSize          int `toml:"fetch_batch_size"`
	ProcessBatchSize        int `toml:"process_batch_size"`
	MaxFetchRetries         int `toml:"max_fetch_retries"`
	AggregateChunkSize      int `toml:"aggregate_chunk_size"`
	AggregateChunkThreshold int `toml:"aggregate_chunk_threshold"`
}

// Kubernetes configures the cluster batch backend.
type Kubernetes struct {
	Namespace          string   `toml:"namespace"`
	Image              string   `toml:"image"`
	Command            []string `toml:"command"`
	ServiceAccount     string   `toml:"service_account"`
	KubeConfig         string   `toml:"kubeconfig"`
	TTLSeconds         int      `toml:"ttl_seconds"`
	ConfigFileSecret   string   `toml:"config_secret"`
	ActiveDeadlineSecs int      `toml:"active_deadline_seconds"`
}

// Kafka configures the distributed task-queue backend.
type Kafka struct {
	Brokers  []string `toml:"brokers"`
	Topic    string   `toml:"topic"`
	GroupID  string   `toml:"group_id"`
	ClientID string   `toml:"client_id"`
}

// Queue selects the batch queue backend that receives submitted work.
type Queue struct {
	Backend      string     `toml:"backend"`
	LocalWorkers int        `toml:"local_workers"`
	Kubernetes   Kubernetes `toml:"kubernetes"`
	Kafka        Kafka      `toml:"kafka"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Telemetry contains OpenTelemetry exporter settings.
type Telemetry struct {
	OTLPEndpoint string  `toml:"otlp_endpoint"`
	ServiceName  string  `toml:"service_name"`
	SampleRatio  float64 `toml:"sample_ratio"`
	Insecure     bool    `toml:"insecure"`
}

// Daemon contains settings for the long-running scheduler process.
type Daemon struct {
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Driver declares a data source. Products maps each product name to the
// asset types it is derived from.
type Driver struct {
	Name     string              `toml:"name"`
	Kind     string              `toml:"kind"`
	Sensor   string              `toml:"sensor"`
	Products map[string][]string `toml:"products"`
}

// Variable maps a user-facing variable name onto a driver product.
type Variable struct {
	Name        string `toml:"name"`
	Driver      string `toml:"driver"`
	Product     string `toml:"product"`
	Description string `toml:"description"`
}

// Config encapsulates all configuration values for the datahandler.
//
// Configuration sections by subsystem:
//   - Paths: state and log directories
//   - Store: work-item store backend (sqlite or postgres)
//   - Scheduler: phase batch sizes, retry budget, and loop interval
//   - Queue: batch queue backend (local, kubernetes, kafka)
//   - Logging: log format and level
//   - Telemetry: OTLP trace export
//   - Daemon: HTTP API bind address and bearer token
//   - Notifications: ntfy push notifications for job outcomes
//   - Drivers: configured data sources
//   - Variables: variable catalog used by job submission
type Config struct {
	Paths         Paths         `toml:"paths"`
	Store         Store         `toml:"store"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Queue         Queue         `toml:"queue"`
	Logging       Logging       `toml:"logging"`
	Telemetry     Telemetry     `toml:"telemetry"`
	Daemon        Daemon        `toml:"daemon"`
	Notifications Notifications `toml:"notifications"`
	Drivers       []Driver      `toml:"drivers"`
	Variables     []Variable    `toml:"variables"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("datahandler.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Store.Backend == StoreSQLite {
		if err := os.MkdirAll(filepath.Dir(c.Store.SQLitePath), 0o755); err != nil {
			return fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	return nil
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "datahandlerd.lock")
}

// Variable returns the catalog entry for name.
func (c *Config) Variable(name string) (Variable, bool) {
	name = strings.TrimSpace(name)
	for _, v := range c.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}

// Driver returns the driver declaration for name.
func (c *Config) Driver(name string) (Driver, bool) {
	for _, d := range c.Drivers {
		if d.Name == name {
			return d, true
		}
	}
	return Driver{}, false
}

// DriverNames returns configured driver names in declaration order.
func (c *Config) DriverNames() []string {
	names := make([]string, 0, len(c.Drivers))
	for _, d := range c.Drivers {
		names = append(names, d.Name)
	}
	return names
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
