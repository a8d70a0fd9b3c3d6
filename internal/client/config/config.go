package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds runtime settings for the filevault CLI.
//
// Fields:
//   - ServerURL: base URL of the filevault HTTP API.
//   - Token: access token; when empty the token saved by `login` is used.
//   - SessionFile: SQLite file holding saved logins.
//   - Timeout: bound on metadata calls. Transfers are not time-limited.
type Config struct {
	ServerURL   string
	Token       string
	SessionFile string
	Timeout     time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.SessionFile = defaultSessionFile()
	c.Timeout = 30 * time.Second
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".filevault-session.db"
	}
	return filepath.Join(dir, "filevault", "session.db")
}

// LoadConfig applies defaults, then the JSON file, then the environment and
// finally the global flags in args. It returns the arguments that follow the
// global flags: the command and its own arguments.
func LoadConfig(args []string) (*Config, []string, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, nil, err
	}
	parseEnv(cfg)
	rest, err := parseFlags(cfg, args)
	if err != nil {
		return nil, nil, err
	}
	return cfg, rest, nil
}
