package config

const (
	defaultConfigPath              = "~/.config/datahandler/config.toml"
	defaultStateDir                = "~/.local/share/datahandler"
	defaultLogDir                  = "~/.local/share/datahandler/logs"
	defaultSQLiteFile              = "inventory.db"
	defaultSQLitePath              = "~/.local/share/datahandler/inventory.db"
	defaultStoreMaxConns           = 10
	defaultSchedulerInterval       = 60
	defaultFetchBatches            = 10
	defaultFetchBatchSize          = 10
	defaultProcessBatchSize        = 5
	defaultMaxFetchRetries         = 3
	defaultAggregateChunkSize      = 10
	defaultAggregateChunkThreshold = 15
	defaultLocalWorkers            = 4
	defaultKubernetesNamespace     = "default"
	defaultKubernetesTTLSeconds    = 3600
	defaultKafkaTopic              = "datahandler-batches"
	defaultKafkaGroupID            = "datahandler-workers"
	defaultKafkaClientID           = "datahandler"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultServiceName             = "datahandler"
	defaultSampleRatio             = 1.0
	defaultDriverKind              = "static"
	defaultAPIBind                 = "127.0.0.1:7487"
	defaultNtfyRequestTimeout      = 10
)

// Store backends.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Queue backends.
const (
	QueueLocal      = "local"
	QueueKubernetes = "kubernetes"
	QueueKafka      = "kafka"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Store: Store{
			Backend:    StoreSQLite,
			SQLitePath: defaultSQLitePath,
			MaxConns:   defaultStoreMaxConns,
		},
		Scheduler: Scheduler{
			IntervalSeconds:         defaultSchedulerInterval,
			FetchBatches:            defaultFetchBatches,
			FetchBatchSize:          defaultFetchBatchSize,
			ProcessBatchSize:        defaultProcessBatchSize,
			MaxFetchRetries:         defaultMaxFetchRetries,
			AggregateChunkSize:      defaultAggregateChunkSize,
			AggregateChunkThreshold: defaultAggregateChunkThreshold,
		},
		Queue: Queue{
			Backend:      QueueLocal,
			LocalWorkers: defaultLocalWorkers,
			Kubernetes: Kubernetes{
				Namespace:  defaultKubernetesNamespace,
				Command:    []string{"datahandler", "task"},
				TTLSeconds: defaultKubernetesTTLSeconds,
			},
			Kafka: Kafka{
				Topic:    defaultKafkaTopic,
				GroupID:  defaultKafkaGroupID,
				ClientID: defaultKafkaClientID,
			},
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Telemetry: Telemetry{
			ServiceName: defaultServiceName,
			SampleRatio: defaultSampleRatio,
		},
		Daemon: Daemon{
			APIBind: defaultAPIBind,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
		},
	}
}
