package config

// Static is a fixed-value Provider for tests and embedded hosts that
// assemble configuration programmatically instead of reading a file or the
// environment.
type Static struct {
	Certificates map[string]string
	Metadata     map[string]string
	Ports        map[string]string

	Endpoint            string
	ID                  string
	LogDir              string
	SharedContentDir    string
	CertificateDir      string
	Title               string
	Build               string
	RegionName          string
	PublicIPv4          string
	FQDN                string
	ConnectionInfo      GameServerConnectionInfo
	LogToFile           bool
	HeartbeatingEnabled bool
}

func (s *Static) GameCertificates() map[string]string { return s.Certificates }
func (s *Static) BuildMetadata() map[string]string    { return s.Metadata }
func (s *Static) GamePorts() map[string]string        { return s.Ports }

func (s *Static) HeartbeatEndpoint() string        { return s.Endpoint }
func (s *Static) ServerID() string                 { return s.ID }
func (s *Static) LogFolder() string                { return s.LogDir }
func (s *Static) SharedContentFolder() string      { return s.SharedContentDir }
func (s *Static) CertificateFolder() string        { return s.CertificateDir }
func (s *Static) TitleID() string                  { return s.Title }
func (s *Static) BuildID() string                  { return s.Build }
func (s *Static) Region() string                   { return s.RegionName }
func (s *Static) PublicIPv4Address() string        { return s.PublicIPv4 }
func (s *Static) FullyQualifiedDomainName() string { return s.FQDN }

func (s *Static) GameServerConnectionInfo() GameServerConnectionInfo { return s.ConnectionInfo }

func (s *Static) ShouldLog() bool       { return s.LogToFile }
func (s *Static) ShouldHeartbeat() bool { return s.HeartbeatingEnabled }
