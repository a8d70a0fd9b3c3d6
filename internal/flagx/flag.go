// Package flagx lets several independent flag sets share one command line.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// ConfigFileEnv names the environment fallback for the config file path.
const ConfigFileEnv = "FILEVAULT_CONFIG"

// FilterArgs keeps only the flags named in allowed (without leading dashes)
// together with their values. Both "-name value" and "--name=value" forms are
// recognised, so each flag set can parse the full os.Args without tripping
// over flags owned by another set.
func FilterArgs(args []string, allowed []string) []string {
	names := make(map[string]struct{}, len(allowed))
	for _, f := range allowed {
		names[strings.TrimLeft(f, "-")] = struct{}{}
	}

	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			continue
		}
		name, _, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if _, ok := names[name]; !ok {
			continue
		}
		filtered = append(filtered, arg)
		if hasValue {
			continue
		}
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}
	return filtered
}

// ConfigFilePath returns the JSON config path given by -c / -config, falling
// back to $FILEVAULT_CONFIG. Empty means no file.
func ConfigFilePath(args []string) string {
	var path string

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.StringVar(&path, "config", "", "path to config file")
	fs.StringVar(&path, "c", "", "path to config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"c", "config"}))

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	return path
}
