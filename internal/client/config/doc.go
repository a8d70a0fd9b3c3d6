// Package config loads runtime configuration for the filevault CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c / -config or $FILEVAULT_CONFIG.
//  3. Environment: FILEVAULT_URL, FILEVAULT_TOKEN.
//  4. Global flags placed before the command, which override everything.
//
// # JSON schema
//
//	{
//	  "server_url": "https://files.example.com",
//	  "session_file": "/home/me/.config/filevault/session.db",
//	  "timeout": "30s"
//	}
package config
