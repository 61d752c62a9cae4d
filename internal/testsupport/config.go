package testsupport

import (
	"path/filepath"
	"testing"

	"datahandler/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test,
// a SQLite store, the local queue backend, and one static driver "modis"
// offering product "ndvi" (asset type MOD09Q1) behind variable "ndvi".
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Store.Backend = config.StoreSQLite
	cfgVal.Store.SQLitePath = filepath.Join(base, "state", "inventory.db")
	cfgVal.Queue.Backend = config.QueueLocal
	cfgVal.Queue.LocalWorkers = 2
	cfgVal.Daemon.APIBind = ""
	cfgVal.Drivers = []config.Driver{{
		Name:     "modis",
		Kind:     "static",
		Sensor:   "MOD",
		Products: map[string][]string{"ndvi": {"MOD09Q1"}},
	}}
	cfgVal.Variables = []config.Variable{{
		Name:    "ndvi",
		Driver:  "modis",
		Product: "ndvi",
	}}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithDriver appends a static driver declaration and a same-named variable
// for each of its products.
func WithDriver(name string, products map[string][]string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Drivers = append(b.cfg.Drivers, config.Driver{Name: name, Kind: "static", Products: products})
		for product := range products {
			b.cfg.Variables = append(b.cfg.Variables, config.Variable{
				Name:    name + "_" + product,
				Driver:  name,
				Product: product,
			})
		}
	}
}

// WithScheduler overrides scheduler sizing.
func WithScheduler(fn func(*config.Scheduler)) ConfigOption {
	return func(b *configBuilder) {
		fn(&b.cfg.Scheduler)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
