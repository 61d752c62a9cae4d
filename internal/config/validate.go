package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateDrivers(); err != nil {
		return err
	}
	if err := c.validateVariables(); err != nil {
		return err
	}
	if err := c.validateTelemetry(); err != nil {
		return err
	}
	if c.Notifications.NtfyTopic != "" && c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive when notifications.ntfy_topic is set")
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case StoreSQLite:
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			return errors.New("store.sqlite_path must be set when store.backend is sqlite")
		}
	case StorePostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return errors.New("store.dsn must be set when store.backend is postgres (or set DATAHANDLER_DATABASE_URL)")
		}
	default:
		return fmt.Errorf("store.backend %q is not supported (use sqlite or postgres)", c.Store.Backend)
	}
	return nil
}

func (c *Config) validateScheduler() error {
	return ensurePositiveMap(map[string]int{
		"scheduler.interval_seconds":          c.Scheduler.IntervalSeconds,
		"scheduler.fetch_batches":             c.Scheduler.FetchBatches,
		"scheduler.fetch_batch_size":          c.Scheduler.FetchBatchSize,
		"scheduler.process_batch_size":        c.Scheduler.ProcessBatchSize,
		"scheduler.max_fetch_retries":         c.Scheduler.MaxFetchRetries,
		"scheduler.aggregate_chunk_size":      c.Scheduler.AggregateChunkSize,
		"scheduler.aggregate_chunk_threshold": c.Scheduler.AggregateChunkThreshold,
	})
}

func (c *Config) validateQueue() error {
	switch c.Queue.Backend {
	case QueueLocal:
		return nil
	case QueueKubernetes:
		if c.Queue.Kubernetes.Image == "" {
			return errors.New("queue.kubernetes.image must be set when queue.backend is kubernetes")
		}
		return nil
	case QueueKafka:
		if len(c.Queue.Kafka.Brokers) == 0 {
			return errors.New("queue.kafka.brokers must include at least one broker when queue.backend is kafka (or set DATAHANDLER_KAFKA_BROKERS)")
		}
		return nil
	default:
		return fmt.Errorf("queue.backend %q is not supported (use local, kubernetes, or kafka)", c.Queue.Backend)
	}
}

func (c *Config) validateDrivers() error {
	seen := make(map[string]struct{}, len(c.Drivers))
	for i, d := range c.Drivers {
		if d.Name == "" {
			return fmt.Errorf("drivers[%d].name must be set", i)
		}
		if _, dup := seen[d.Name]; dup {
			return fmt.Errorf("drivers[%d].name %q is declared more than once", i, d.Name)
		}
		seen[d.Name] = struct{}{}
		if len(d.Products) == 0 {
			return fmt.Errorf("drivers.%s.products must declare at least one product", d.Name)
		}
		for product, assets := range d.Products {
			if len(assets) == 0 {
				return fmt.Errorf("drivers.%s.products.%s must list at least one asset type", d.Name, product)
			}
		}
	}
	return nil
}

func (c *Config) validateVariables() error {
	seen := make(map[string]struct{}, len(c.Variables))
	for i, v := range c.Variables {
		if v.Name == "" {
			return fmt.Errorf("variables[%d].name must be set", i)
		}
		if _, dup := seen[v.Name]; dup {
			return fmt.Errorf("variables[%d].name %q is declared more than once", i, v.Name)
		}
		seen[v.Name] = struct{}{}
		d, ok := c.Driver(v.Driver)
		if !ok {
			return fmt.Errorf("variables.%s.driver %q is not a configured driver", v.Name, v.Driver)
		}
		if _, ok := d.Products[v.Product]; !ok {
			return fmt.Errorf("variables.%s.product %q is not offered by driver %s", v.Name, v.Product, d.Name)
		}
	}
	return nil
}

func (c *Config) validateTelemetry() error {
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return errors.New("telemetry.sample_ratio must be between 0 and 1")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
