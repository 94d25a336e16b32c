package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/os-autoinst/jobgroupsync/internal/header"
	"github.com/os-autoinst/jobgroupsync/internal/manifest"
)

// Config represents the complete jobgroupsync configuration.
type Config struct {
	API    APIConfig    `yaml:"api"`
	Paths  PathsConfig  `yaml:"paths"`
	Header HeaderConfig `yaml:"header"`
}

// APIConfig configures the remote openQA instance and how to reach it.
type APIConfig struct {
	Host         string `yaml:"host"`
	ClientBinary string `yaml:"client_binary"`
	Schema       string `yaml:"schema"`
}

// PathsConfig configures the repository layout.
type PathsConfig struct {
	Manifest  string `yaml:"manifest"`
	GroupsDir string `yaml:"groups_dir"`
}

// HeaderConfig configures the banner stamped into fetched files.
type HeaderConfig struct {
	ProjectURL string `yaml:"project_url"`
}

// Default returns the configuration for the opensuse-jobgroups repository
// layout against openqa.opensuse.org.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Expand environment variables in string fields
	cfg.expandEnv()

	// Apply defaults
	cfg.applyDefaults()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.API.Host = os.ExpandEnv(c.API.Host)
	c.API.ClientBinary = os.ExpandEnv(c.API.ClientBinary)
	c.API.Schema = os.ExpandEnv(c.API.Schema)
	c.Paths.Manifest = os.ExpandEnv(c.Paths.Manifest)
	c.Paths.GroupsDir = os.ExpandEnv(c.Paths.GroupsDir)
	c.Header.ProjectURL = os.ExpandEnv(c.Header.ProjectURL)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.API.Host == "" {
		c.API.Host = "openqa.opensuse.org"
	}
	if c.API.ClientBinary == "" {
		c.API.ClientBinary = "openqa-cli"
	}
	if c.API.Schema == "" {
		c.API.Schema = "JobTemplates-01.yaml"
	}
	if c.Paths.Manifest == "" {
		c.Paths.Manifest = "job_groups.yaml"
	}
	if c.Paths.GroupsDir == "" {
		c.Paths.GroupsDir = "job_groups"
	}
	if c.Header.ProjectURL == "" {
		c.Header.ProjectURL = header.DefaultProjectURL
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.API.Host == "" {
		return fmt.Errorf("api.host is required")
	}
	if c.API.ClientBinary == "" {
		return fmt.Errorf("api.client_binary is required")
	}
	if c.API.Schema == "" {
		return fmt.Errorf("api.schema is required")
	}
	if c.Paths.Manifest == "" {
		return fmt.Errorf("paths.manifest is required")
	}
	if c.Paths.GroupsDir == "" {
		return fmt.Errorf("paths.groups_dir is required")
	}
	return nil
}

// GroupFilePath returns the path of the body file for a slug.
func (c *Config) GroupFilePath(slug string) string {
	return filepath.Join(c.Paths.GroupsDir, manifest.FileName(slug))
}
