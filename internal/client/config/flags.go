package config

import (
	"flag"
	"io"
)

// parseFlags reads the global flags, which must come before the command:
//
//	-a string        server URL
//	-t string        access token
//	-session string  session database path
//	-timeout dur     metadata call timeout ("30s")
//	-c / -config     JSON config file (read earlier by parseJson)
//
// Parsing stops at the first non-flag argument; that argument and the rest
// are returned.
func parseFlags(cfg *Config, args []string) ([]string, error) {
	fs := flag.NewFlagSet("filevault", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var configPath string
	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "server URL")
	fs.StringVar(&cfg.Token, "t", cfg.Token, "access token")
	fs.StringVar(&cfg.SessionFile, "session", cfg.SessionFile, "session database path")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "metadata call timeout")
	fs.StringVar(&configPath, "config", "", "path to config file")
	fs.StringVar(&configPath, "c", "", "path to config file (short)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs.Args(), nil
}
