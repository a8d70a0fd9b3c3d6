package config

import "os"

const (
	EnvServerURL = "FILEVAULT_URL"
	EnvToken     = "FILEVAULT_TOKEN"
)

func parseEnv(cfg *Config) {
	if v, ok := os.LookupEnv(EnvServerURL); ok && v != "" {
		cfg.ServerURL = v
	}
	if v, ok := os.LookupEnv(EnvToken); ok && v != "" {
		cfg.Token = v
	}
}
