// Package config defines the yaml-tagged configuration for an eduqlctl
// server process: the paged file to open, buffer pool sizing, B+ tree
// node capacities, and the ambient logger/metrics setup.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"eduql/internal/metrics"
	"eduql/pkg/logger"
)

// Config is the top-level shape read from a YAML file.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	DataFile string `yaml:"data_file"`
	PageSize int    `yaml:"page_size"`

	BufferPoolSize int `yaml:"buffer_pool_size"`
	ReplacerK      int `yaml:"replacer_k"`

	LeafMaxSize     int `yaml:"leaf_max_size"`
	InternalMaxSize int `yaml:"internal_max_size"`

	Logger  logger.Config  `yaml:"logger"`
	Metrics metrics.Config `yaml:"metrics"`
}

// Default returns a Config with sane values for local development.
func Default() Config {
	return Config{
		ListenAddr:      ":9191",
		DataFile:        "eduql.db",
		PageSize:        4096,
		BufferPoolSize:  128,
		ReplacerK:       2,
		LeafMaxSize:     32,
		InternalMaxSize: 32,
		Logger: logger.Config{
			Level:      "info",
			Format:     "console",
			OutputFile: "stdout",
		},
		Metrics: metrics.Config{
			Enabled:    false,
			ListenAddr: ":9090",
		},
	}
}

// Load reads and parses a YAML config file, filling any field the file
// omits from Default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
