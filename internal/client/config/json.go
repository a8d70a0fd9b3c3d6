package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/filevault/internal/flagx"
	"github.com/dmitrijs2005/filevault/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Absent keys
// keep the value already in Config.
type JsonConfig struct {
	ServerURL   *string         `json:"server_url"`
	Token       *string         `json:"token"`
	SessionFile *string         `json:"session_file"`
	Timeout     *timex.Duration `json:"timeout"`
}

// parseJson overlays Config with the file given by -c/-config or
// $FILEVAULT_CONFIG.
func parseJson(cfg *Config, args []string) error {
	path := flagx.ConfigFilePath(globalArgs(args))
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}

	if jc.ServerURL != nil {
		cfg.ServerURL = *jc.ServerURL
	}
	if jc.Token != nil {
		cfg.Token = *jc.Token
	}
	if jc.SessionFile != nil {
		cfg.SessionFile = *jc.SessionFile
	}
	if jc.Timeout != nil {
		cfg.Timeout = jc.Timeout.Duration
	}
	return nil
}

// globalArgs cuts args at the command so command arguments never count as
// global flags.
func globalArgs(args []string) []string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" || !strings.HasPrefix(a, "-") {
			return args[:i]
		}
		// every global flag takes a value
		if !strings.Contains(a, "=") && i+1 < len(args) {
			i++
		}
	}
	return args
}
