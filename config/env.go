package config

import (
	"encoding/json"
	"os"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Environment variable names recognized by the environment provider.
// Map-valued settings are passed as JSON objects because flat environment
// variables cannot carry them portably.
const (
	EnvHeartbeatEndpoint        = "HEARTBEAT_ENDPOINT"
	EnvSessionHostID            = "SESSION_HOST_ID"
	EnvLogFolder                = "LOG_FOLDER"
	EnvSharedContentFolder      = "SHARED_CONTENT_FOLDER"
	EnvCertificateFolder        = "CERTIFICATE_FOLDER"
	EnvTitleID                  = "TITLE_ID"
	EnvBuildID                  = "BUILD_ID"
	EnvRegion                   = "REGION"
	EnvPublicIPv4Address        = "PUBLIC_IPV4_ADDRESS"
	EnvFullyQualifiedDomainName = "FULLY_QUALIFIED_DOMAIN_NAME"
	EnvGameCertificates         = "GAME_CERTIFICATES"
	EnvBuildMetadata            = "BUILD_METADATA"
	EnvGamePorts                = "GAME_PORTS"
	EnvShouldLog                = "SHOULD_LOG"
	EnvShouldHeartbeat          = "SHOULD_HEARTBEAT"
)

// EnvProvider reads settings from the process environment. Values are
// captured at construction time so later environment mutations do not leak
// into a running engine.
type EnvProvider struct {
	scalars  map[string]string
	certs    map[string]string
	metadata map[string]string
	ports    map[string]string

	shouldLog       bool
	shouldHeartbeat bool
}

// NewEnvProvider snapshots the relevant environment variables.
func NewEnvProvider() *EnvProvider {
	p := &EnvProvider{
		scalars:         make(map[string]string),
		certs:           envJSONMap(EnvGameCertificates),
		metadata:        envJSONMap(EnvBuildMetadata),
		ports:           envJSONMap(EnvGamePorts),
		shouldLog:       envBool(EnvShouldLog, true),
		shouldHeartbeat: envBool(EnvShouldHeartbeat, true),
	}

	for _, name := range []string{
		EnvHeartbeatEndpoint, EnvSessionHostID, EnvLogFolder,
		EnvSharedContentFolder, EnvCertificateFolder, EnvTitleID,
		EnvBuildID, EnvRegion, EnvPublicIPv4Address,
		EnvFullyQualifiedDomainName,
	} {
		p.scalars[name] = os.Getenv(name)
	}
	return p
}

// envJSONMap parses a JSON-object-valued environment variable. A malformed
// value is logged and treated as absent.
func envJSONMap(name string) map[string]string {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}

	m := make(map[string]string)
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		log.Warn().Err(err).Str("variable", name).Msg("ignoring malformed JSON environment variable")
		return nil
	}
	return m
}

func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func (p *EnvProvider) GameCertificates() map[string]string { return p.certs }
func (p *EnvProvider) BuildMetadata() map[string]string    { return p.metadata }
func (p *EnvProvider) GamePorts() map[string]string        { return p.ports }

func (p *EnvProvider) HeartbeatEndpoint() string   { return p.scalars[EnvHeartbeatEndpoint] }
func (p *EnvProvider) ServerID() string            { return p.scalars[EnvSessionHostID] }
func (p *EnvProvider) LogFolder() string           { return p.scalars[EnvLogFolder] }
func (p *EnvProvider) SharedContentFolder() string { return p.scalars[EnvSharedContentFolder] }
func (p *EnvProvider) CertificateFolder() string   { return p.scalars[EnvCertificateFolder] }
func (p *EnvProvider) TitleID() string             { return p.scalars[EnvTitleID] }
func (p *EnvProvider) BuildID() string             { return p.scalars[EnvBuildID] }
func (p *EnvProvider) Region() string              { return p.scalars[EnvRegion] }
func (p *EnvProvider) PublicIPv4Address() string   { return p.scalars[EnvPublicIPv4Address] }
func (p *EnvProvider) FullyQualifiedDomainName() string {
	return p.scalars[EnvFullyQualifiedDomainName]
}

// GameServerConnectionInfo synthesizes connection info from the public IP
// and the game-port map; environments do not carry a structured connection
// document. Port values that fail to parse are skipped.
func (p *EnvProvider) GameServerConnectionInfo() GameServerConnectionInfo {
	info := GameServerConnectionInfo{
		PublicIPv4Address: p.PublicIPv4Address(),
	}

	names := make([]string, 0, len(p.ports))
	for name := range p.ports {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		port, err := strconv.Atoi(p.ports[name])
		if err != nil {
			continue
		}
		info.GamePorts = append(info.GamePorts, GamePort{
			Name:                 name,
			ServerListeningPort:  port,
			ClientConnectionPort: port,
		})
	}
	return info
}

func (p *EnvProvider) ShouldLog() bool       { return p.shouldLog }
func (p *EnvProvider) ShouldHeartbeat() bool { return p.shouldHeartbeat }
