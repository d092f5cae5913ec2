package queue

import (
	"os"
)

// Config controls which backend New selects.
type Config struct {
	// BrokerEnabled mirrors original_source/infra/adapter_factory.py's
	// REDIS_ENABLED gate: when true the broker backend is attempted first.
	BrokerEnabled bool
	BrokerURL     string
	SubjectPrefix string
	// FileDir is the fallback (and default) file-backend root.
	FileDir string
}

// ConfigFromEnv reads QUEUE_BROKER_ENABLED, QUEUE_BROKER_URL,
// QUEUE_SUBJECT_PREFIX and QUEUE_DIR, matching the env-var-driven selection
// of the teacher's adapter factory.
func ConfigFromEnv(defaultFileDir string) Config {
	cfg := Config{
		BrokerEnabled: os.Getenv("QUEUE_BROKER_ENABLED") == "true",
		BrokerURL:     os.Getenv("QUEUE_BROKER_URL"),
		SubjectPrefix: os.Getenv("QUEUE_SUBJECT_PREFIX"),
		FileDir:       os.Getenv("QUEUE_DIR"),
	}
	if cfg.BrokerURL == "" {
		cfg.BrokerURL = nats_DefaultURL
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "coordctl.queue"
	}
	if cfg.FileDir == "" {
		cfg.FileDir = defaultFileDir
	}
	return cfg
}

const nats_DefaultURL = "nats://127.0.0.1:4222"

// New builds the configured Adapter. If BrokerEnabled is set but the broker
// cannot be reached, it logs a warning and falls back to the file backend,
// matching get_queue_adapter()'s fallback-with-warning behavior.
func New(cfg Config) Adapter {
	if !cfg.BrokerEnabled {
		return NewFileAdapter(cfg.FileDir)
	}

	nc, err := Connect(cfg.BrokerURL)
	if err != nil {
		log.Printf("broker unavailable (%v), falling back to file queue at %s", err, cfg.FileDir)
		return NewFileAdapter(cfg.FileDir)
	}
	return NewBrokerAdapter(nc, cfg.SubjectPrefix)
}
