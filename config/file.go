package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

// fileSchema is the on-disk layout of the orchestrator-mounted
// configuration file.
type fileSchema struct {
	HeartbeatEndpoint        string            `json:"heartbeatEndpoint"`
	SessionHostID            string            `json:"sessionHostId"`
	LogFolder                string            `json:"logFolder"`
	SharedContentFolder      string            `json:"sharedContentFolder"`
	CertificateFolder        string            `json:"certificateFolder"`
	TitleID                  string            `json:"titleId"`
	BuildID                  string            `json:"buildId"`
	Region                   string            `json:"region"`
	PublicIPv4Address        string            `json:"publicIpV4Address"`
	FullyQualifiedDomainName string            `json:"fullyQualifiedDomainName"`
	GameCertificates         map[string]string `json:"gameCertificates"`
	BuildMetadata            map[string]string `json:"buildMetadata"`
	GamePorts                map[string]string `json:"gamePorts"`

	GameServerConnectionInfo GameServerConnectionInfo `json:"gameServerConnectionInfo"`

	ShouldLog       *bool `json:"shouldLog"`
	ShouldHeartbeat *bool `json:"shouldHeartbeat"`
}

// FileProvider reads settings from a JSON configuration file.
type FileProvider struct {
	path   string
	parsed fileSchema
}

// NewFileProvider loads and parses the configuration file at path.
func NewFileProvider(path string) (*FileProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed fileSchema
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	log.Info().Str("path", path).Msg("configuration file loaded")
	return &FileProvider{path: path, parsed: parsed}, nil
}

func (p *FileProvider) GameCertificates() map[string]string { return p.parsed.GameCertificates }
func (p *FileProvider) BuildMetadata() map[string]string    { return p.parsed.BuildMetadata }
func (p *FileProvider) GamePorts() map[string]string        { return p.parsed.GamePorts }

func (p *FileProvider) HeartbeatEndpoint() string        { return p.parsed.HeartbeatEndpoint }
func (p *FileProvider) ServerID() string                 { return p.parsed.SessionHostID }
func (p *FileProvider) LogFolder() string                { return p.parsed.LogFolder }
func (p *FileProvider) SharedContentFolder() string      { return p.parsed.SharedContentFolder }
func (p *FileProvider) CertificateFolder() string        { return p.parsed.CertificateFolder }
func (p *FileProvider) TitleID() string                  { return p.parsed.TitleID }
func (p *FileProvider) BuildID() string                  { return p.parsed.BuildID }
func (p *FileProvider) Region() string                   { return p.parsed.Region }
func (p *FileProvider) PublicIPv4Address() string        { return p.parsed.PublicIPv4Address }
func (p *FileProvider) FullyQualifiedDomainName() string { return p.parsed.FullyQualifiedDomainName }

func (p *FileProvider) GameServerConnectionInfo() GameServerConnectionInfo {
	return p.parsed.GameServerConnectionInfo
}

func (p *FileProvider) ShouldLog() bool {
	return p.parsed.ShouldLog == nil || *p.parsed.ShouldLog
}

func (p *FileProvider) ShouldHeartbeat() bool {
	return p.parsed.ShouldHeartbeat == nil || *p.parsed.ShouldHeartbeat
}

// Path returns the config file path the provider was loaded from.
func (p *FileProvider) Path() string { return p.path }

// Load resolves the configuration source the way the agent does at startup:
// the file named by LIFELINE_CONFIG_FILE when it is set and readable, the
// process environment otherwise.
func Load() (Provider, error) {
	if path := os.Getenv(ConfigFileEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return NewFileProvider(path)
		}
		log.Warn().Str("path", path).Msg("config file not readable, falling back to environment")
	}
	return NewEnvProvider(), nil
}
