package checkpointer

import (
	"os"

	"gopkg.in/yaml.v3"
)

// SourceConfig locates the event logs. Set Dir for a local directory
// store, or Bucket for S3; Prefix narrows the listing in either case.
type SourceConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Dir    string `yaml:"dir"`
}

// CheckpointConfig locates the checkpoint artifact.
type CheckpointConfig struct {
	Bucket string `yaml:"bucket"`
	Key    string `yaml:"key"`
	Dir    string `yaml:"dir"`
}

// FetchConfig bounds per-object retries.
type FetchConfig struct {
	Retries         int `yaml:"retries"`
	RetryIntervalMS int `yaml:"retry_interval_ms"`
}

// LedgerConfig configures the local run ledger. Folder enables monthly
// rolling files; DB is a single fixed path. Both empty disables the ledger.
type LedgerConfig struct {
	Folder string `yaml:"folder"`
	Prefix string `yaml:"prefix"`
	DB     string `yaml:"db"`
}

type FileConfig struct {
	Source     SourceConfig     `yaml:"source"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Ledger     LedgerConfig     `yaml:"ledger"`

	Region string `yaml:"region"`

	Job     string `yaml:"job"`
	Service string `yaml:"service"`
	Debug   bool   `yaml:"debug"`

	SyslogAddr string `yaml:"syslog_addr"`
	Deadman    string `yaml:"deadman"`
}

func LoadConfig(path string) (*FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
