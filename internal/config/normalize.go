package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStore(); err != nil {
		return err
	}
	if err := c.normalizeQueue(); err != nil {
		return err
	}
	c.normalizeDrivers()
	c.normalizeVariables()
	c.normalizeLogging()
	c.normalizeTelemetry()
	c.normalizeDaemon()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeStore() error {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	switch c.Store.Backend {
	case "", "sqlite", "sqlite3":
		c.Store.Backend = StoreSQLite
	case "postgres", "postgresql", "pg":
		c.Store.Backend = StorePostgres
	}
	if c.Store.DSN == "" {
		if value, ok := os.LookupEnv("DATAHANDLER_DATABASE_URL"); ok {
			c.Store.DSN = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Store.SQLitePath) == "" {
		c.Store.SQLitePath = filepath.Join(c.Paths.StateDir, defaultSQLiteFile)
	}
	var err error
	if c.Store.SQLitePath, err = expandPath(c.Store.SQLitePath); err != nil {
		return fmt.Errorf("store.sqlite_path: %w", err)
	}
	if c.Store.MaxConns <= 0 {
		c.Store.MaxConns = defaultStoreMaxConns
	}
	return nil
}

func (c *Config) normalizeQueue() error {
	c.Queue.Backend = strings.ToLower(strings.TrimSpace(c.Queue.Backend))
	switch c.Queue.Backend {
	case "":
		c.Queue.Backend = QueueLocal
	case "k8s":
		c.Queue.Backend = QueueKubernetes
	}
	if c.Queue.LocalWorkers <= 0 {
		c.Queue.LocalWorkers = defaultLocalWorkers
	}

	k := &c.Queue.Kubernetes
	k.Namespace = strings.TrimSpace(k.Namespace)
	if k.Namespace == "" {
		k.Namespace = defaultKubernetesNamespace
	}
	k.Image = strings.TrimSpace(k.Image)
	if k.KubeConfig != "" {
		var err error
		if k.KubeConfig, err = expandPath(k.KubeConfig); err != nil {
			return fmt.Errorf("queue.kubernetes.kubeconfig: %w", err)
		}
	}
	if len(k.Command) == 0 {
		k.Command = []string{"datahandler", "task"}
	}
	if k.TTLSeconds < 0 {
		k.TTLSeconds = 0
	}

	kf := &c.Queue.Kafka
	brokers := kf.Brokers[:0]
	for _, b := range kf.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	kf.Brokers = brokers
	if len(kf.Brokers) == 0 {
		if value, ok := os.LookupEnv("DATAHANDLER_KAFKA_BROKERS"); ok {
			for _, b := range strings.Split(value, ",") {
				if b = strings.TrimSpace(b); b != "" {
					kf.Brokers = append(kf.Brokers, b)
				}
			}
		}
	}
	if strings.TrimSpace(kf.Topic) == "" {
		kf.Topic = defaultKafkaTopic
	}
	if strings.TrimSpace(kf.GroupID) == "" {
		kf.GroupID = defaultKafkaGroupID
	}
	if strings.TrimSpace(kf.ClientID) == "" {
		kf.ClientID = defaultKafkaClientID
	}
	return nil
}

func (c *Config) normalizeDrivers() {
	for i := range c.Drivers {
		d := &c.Drivers[i]
		d.Name = strings.TrimSpace(d.Name)
		d.Kind = strings.ToLower(strings.TrimSpace(d.Kind))
		if d.Kind == "" {
			d.Kind = defaultDriverKind
		}
		d.Sensor = strings.TrimSpace(d.Sensor)
	}
}

func (c *Config) normalizeVariables() {
	for i := range c.Variables {
		v := &c.Variables[i]
		v.Name = strings.TrimSpace(v.Name)
		v.Driver = strings.TrimSpace(v.Driver)
		v.Product = strings.TrimSpace(v.Product)
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeDaemon() {
	c.Daemon.APIBind = strings.TrimSpace(c.Daemon.APIBind)
	c.Daemon.APIToken = strings.TrimSpace(c.Daemon.APIToken)
	if c.Daemon.APIToken == "" {
		if value, ok := os.LookupEnv("DATAHANDLER_API_TOKEN"); ok {
			c.Daemon.APIToken = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeTelemetry() {
	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	if c.Telemetry.OTLPEndpoint == "" {
		if value, ok := os.LookupEnv("OTEL_EXPORTER_OTLP_ENDPOINT"); ok {
			c.Telemetry.OTLPEndpoint = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		c.Telemetry.ServiceName = defaultServiceName
	}
}
