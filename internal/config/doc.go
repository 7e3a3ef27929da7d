// Package config manages the shellyscan preferences file.
//
// The file holds defaults for scan and output flags so they need not be
// repeated on every invocation. Command line flags always win over the file.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/shellyscan/config.yaml or $HOME/.config/shellyscan/config.yaml
//   - macOS: $HOME/.config/shellyscan/config.yaml
//   - Windows: %LOCALAPPDATA%\shellyscan\config.yaml
//
// # Security
//
// Device passwords are never stored. Only the RPC username is remembered.
//
// # Example
//
//	version: 1
//	scan:
//	  networks: ["192.168.1.0-192.168.1.255"]
//	  timeout: 2
//	  concurrency: 256
//	output:
//	  format: table
//	  coldelim: ";"
package config
