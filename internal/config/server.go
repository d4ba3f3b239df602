// Package config decodes the server and client bootstrap configuration
// files (server.yaml) that complement the CLI flag surface.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Server is the server process's file-based bootstrap configuration; CLI
// flags of the same name take precedence when both are set.
type Server struct {
	ListenAddr     string        `yaml:"listen_addr"`
	ResourcesPath  string        `yaml:"resources_path"`
	CertsPath      string        `yaml:"certs_path"`
	Shards         int           `yaml:"shards"`
	CvarDB         string        `yaml:"cvar_db"`
	TickFloor      time.Duration `yaml:"tick_floor"`
	CredentialSeed string        `yaml:"credential_seed"`
}

// LoadServer decodes a server.yaml document from path.
func LoadServer(path string) (*Server, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.LoadServer: %w", err)
	}
	var s Server
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("config.LoadServer: %w", err)
	}
	return &s, nil
}

// Client is the client process's file-based bootstrap configuration.
type Client struct {
	ConnectAddr string `yaml:"connect_addr"`
	ConfigPath  string `yaml:"config_path"`
}

// LoadClient decodes a client-side server.yaml-shaped document from path.
func LoadClient(path string) (*Client, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.LoadClient: %w", err)
	}
	var c Client
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config.LoadClient: %w", err)
	}
	return &c, nil
}
