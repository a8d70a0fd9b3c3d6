package config

import "os"

// Environment variables for the two secrets, so they need not appear on a
// command line or in a config file.
const (
	EnvSecretKey        = "FILEVAULT_SECRET_KEY"
	EnvEncryptionSecret = "FILEVAULT_ENCRYPTION_SECRET"
)

func parseEnv(config *Config) {
	if v, ok := os.LookupEnv(EnvSecretKey); ok {
		config.SecretKey = v
	}
	if v, ok := os.LookupEnv(EnvEncryptionSecret); ok {
		config.EncryptionSecret = v
	}
}
