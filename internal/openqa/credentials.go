package openqa

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"
)

// Credentials is an openQA API key/secret pair.
type Credentials struct {
	Key    string
	Secret string
}

// CredentialSource resolves API credentials at most once per run.
// Lookup order: APIKEY/APISECRET environment variables, the per-user
// client config, then the system-wide client config. The config files are
// INI with one section per API host.
type CredentialSource struct {
	host         string
	userConfig   string
	systemConfig string
	logger       *slog.Logger

	cached *Credentials
}

// NewCredentialSource creates a source for the given API host using the
// standard client config locations.
func NewCredentialSource(host string, logger *slog.Logger) *CredentialSource {
	home, _ := os.UserHomeDir()
	return &CredentialSource{
		host:         host,
		userConfig:   filepath.Join(home, ".config", "openqa", "client.conf"),
		systemConfig: "/etc/openqa/client.conf",
		logger:       logger,
	}
}

// Resolve returns the credentials, computing them on the first call and
// returning the cached pair afterwards.
func (s *CredentialSource) Resolve() (Credentials, error) {
	if s.cached != nil {
		return *s.cached, nil
	}

	creds, err := s.resolve()
	if err != nil {
		return Credentials{}, err
	}

	s.cached = &creds
	return creds, nil
}

func (s *CredentialSource) resolve() (Credentials, error) {
	if key, secret := os.Getenv("APIKEY"), os.Getenv("APISECRET"); key != "" && secret != "" {
		s.logger.Info("using API credentials from environment")
		return Credentials{Key: key, Secret: secret}, nil
	}

	for _, path := range []string{s.userConfig, s.systemConfig} {
		creds, ok, err := s.fromClientConf(path)
		if err != nil {
			return Credentials{}, err
		}
		if ok {
			s.logger.Info("using API credentials from client config", "path", path)
			return creds, nil
		}
	}

	return Credentials{}, fmt.Errorf(
		"no API credentials for %s: set APIKEY/APISECRET or add a [%s] section to %s",
		s.host, s.host, s.userConfig)
}

// fromClientConf reads one client.conf file. A missing file or a file
// without a section for the configured host is not an error, just a miss.
func (s *CredentialSource) fromClientConf(path string) (Credentials, bool, error) {
	if _, err := os.Stat(path); err != nil {
		return Credentials{}, false, nil
	}

	cfg, err := ini.Load(path)
	if err != nil {
		return Credentials{}, false, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	section, err := cfg.GetSection(s.host)
	if err != nil {
		return Credentials{}, false, nil
	}

	creds := Credentials{
		Key:    section.Key("KEY").String(),
		Secret: section.Key("SECRET").String(),
	}
	if creds.Key == "" || creds.Secret == "" {
		return Credentials{}, false, fmt.Errorf("%s: section [%s] is missing KEY or SECRET", path, s.host)
	}
	return creds, true, nil
}
