// Package config supplies the session-host configuration consumed once when
// the heartbeat engine is constructed. Settings come from a JSON file when
// the orchestrator mounts one, from environment variables otherwise, or from
// a Static value injected by tests.
package config

import "errors"

// Well-known keys under which the scalar settings appear in the engine's
// merged configuration map.
const (
	HeartbeatEndpointKey        = "heartbeatEndpoint"
	ServerIDKey                 = "instanceId"
	LogFolderKey                = "logFolder"
	SharedContentFolderKey      = "sharedContentFolder"
	CertificateFolderKey        = "certificateFolder"
	TitleIDKey                  = "titleId"
	BuildIDKey                  = "buildId"
	RegionKey                   = "region"
	PublicIPv4AddressKey        = "publicIpV4Address"
	FullyQualifiedDomainNameKey = "fullyQualifiedDomainName"
)

// ConfigFileEnvVar names the environment variable holding the path of the
// orchestrator-mounted configuration file.
const ConfigFileEnvVar = "LIFELINE_CONFIG_FILE"

// ErrMissingSetting marks a fatal startup validation failure: a required
// setting (heartbeat endpoint, server id) is absent. The engine is not
// constructed when this is returned.
var ErrMissingSetting = errors.New("required configuration setting is missing")

// GamePort describes one port mapping the orchestrator assigned to the
// session host.
type GamePort struct {
	Name                 string `json:"name"`
	ServerListeningPort  int    `json:"serverListeningPort"`
	ClientConnectionPort int    `json:"clientConnectionPort"`
}

// GameServerConnectionInfo is the externally reachable address of the
// session host, handed to the hosted game so it can advertise itself.
type GameServerConnectionInfo struct {
	PublicIPv4Address string     `json:"publicIpV4Address"`
	GamePorts         []GamePort `json:"gamePortsConfiguration"`
}

// Provider is the configuration-source contract. Implementations are read
// exactly once, during engine construction; the engine owns copies of
// everything it needs afterwards.
type Provider interface {
	GameCertificates() map[string]string
	BuildMetadata() map[string]string
	GamePorts() map[string]string

	HeartbeatEndpoint() string
	ServerID() string
	LogFolder() string
	SharedContentFolder() string
	CertificateFolder() string
	TitleID() string
	BuildID() string
	Region() string
	PublicIPv4Address() string
	FullyQualifiedDomainName() string

	GameServerConnectionInfo() GameServerConnectionInfo

	// ShouldLog reports whether the engine should open a log file in the
	// log folder. Disabled in tests.
	ShouldLog() bool

	// ShouldHeartbeat reports whether the background heartbeat loop should
	// run. Disabled in tests that drive the engine manually.
	ShouldHeartbeat() bool
}
