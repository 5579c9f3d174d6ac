package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the shape of the optional YAML config file passed via
// --config. Every field is optional; zero values fall back to lspsrv's own
// defaults.
type fileConfig struct {
	IdleTimeoutMs   int  `yaml:"idle_timeout_ms"`
	MaxMessageBytes int  `yaml:"max_message_bytes"`
	Debug           bool `yaml:"debug"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
