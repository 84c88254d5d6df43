// Package config provides the server's configuration schema: the data
// directory layout, token signing and lifetimes, default timeouts and
// client quotas, storage driver selection, and transport binding.
package config

// Config is the top-level server configuration.
type Config struct {
	// DataDir is the root of the persisted data layout: credentials,
	// token records, audit log, and per-client sandbox jails all live
	// under this directory.
	DataDir string `yaml:"data_dir" mapstructure:"data_dir" validate:"required"`

	// SigningSecret signs access/refresh tokens (HS256). Must be at least
	// 32 bytes. Overriding via the TOOLGATE_SIGNING_SECRET environment
	// variable is the recommended way to supply this in production.
	SigningSecret string `yaml:"signing_secret" mapstructure:"signing_secret" validate:"required,min=32"`

	// Tokens configures access/refresh token lifetimes.
	Tokens TokenConfig `yaml:"tokens" mapstructure:"tokens"`

	// DefaultTimeoutSeconds bounds a tool call with no explicit timeout.
	// Defaults to 30.
	DefaultTimeoutSeconds int `yaml:"default_timeout_seconds" mapstructure:"default_timeout_seconds" validate:"omitempty,min=1"`

	// Quota configures the default per-client resource caps.
	Quota QuotaConfig `yaml:"quota" mapstructure:"quota"`

	// Storage selects the persistence driver.
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Transport configures which wire transport the server exposes.
	Transport TransportConfig `yaml:"transport" mapstructure:"transport"`

	// Telemetry configures OpenTelemetry tracing/metrics export.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// Monitoring configures the /health and /metrics HTTP side-channel.
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`

	// LogLevel sets the minimum slog level: "debug", "info", "warn", "error".
	// Defaults to "info".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// TokenConfig configures access/refresh token lifetimes.
type TokenConfig struct {
	// AccessLifetimeMinutes is the access token's validity window.
	// Defaults to 60.
	AccessLifetimeMinutes int `yaml:"access_lifetime_minutes" mapstructure:"access_lifetime_minutes" validate:"omitempty,min=1"`

	// RefreshLifetimeDays is the refresh token's validity window.
	// Defaults to 7.
	RefreshLifetimeDays int `yaml:"refresh_lifetime_days" mapstructure:"refresh_lifetime_days" validate:"omitempty,min=1"`

	// Issuer is the "iss" claim stamped into minted tokens.
	Issuer string `yaml:"issuer" mapstructure:"issuer"`
}

// QuotaConfig configures the default resource caps applied to every
// client on first use.
type QuotaConfig struct {
	// CPUPercent is the CPU budget as a percentage. Defaults to 50.
	CPUPercent int `yaml:"cpu_percent" mapstructure:"cpu_percent" validate:"omitempty,min=1,max=100"`

	// MemoryMB is the memory budget in megabytes. Defaults to 512.
	MemoryMB int `yaml:"memory_mb" mapstructure:"memory_mb" validate:"omitempty,min=1"`

	// DiskGB is the disk budget in gigabytes. Defaults to 1.
	DiskGB int `yaml:"disk_gb" mapstructure:"disk_gb" validate:"omitempty,min=1"`

	// MaxProcesses is the concurrent-process budget. Defaults to 5.
	MaxProcesses int `yaml:"max_processes" mapstructure:"max_processes" validate:"omitempty,min=1"`
}

// StorageConfig selects and configures the persistence driver.
type StorageConfig struct {
	// Driver selects the backing store: "json" (flock-protected files
	// under DataDir, the default) or "sqlite".
	Driver string `yaml:"driver" mapstructure:"driver" validate:"omitempty,oneof=json sqlite"`

	// SQLitePath is the database file path, used only when Driver is
	// "sqlite". Defaults to <DataDir>/toolgate.db.
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// TransportConfig selects and configures the wire transport. Exactly one
// of the transport-specific sections applies, chosen by Kind.
type TransportConfig struct {
	// Kind selects the transport: "stdio" (default), "tcp", or "websocket".
	Kind string `yaml:"kind" mapstructure:"kind" validate:"omitempty,oneof=stdio tcp websocket"`

	// BindAddr is the listen address for "tcp" and "websocket" transports,
	// e.g. "127.0.0.1:8900".
	BindAddr string `yaml:"bind_addr" mapstructure:"bind_addr" validate:"omitempty,hostname_port"`

	// WebSocketPath is the HTTP path the websocket transport upgrades on.
	// Defaults to "/ws".
	WebSocketPath string `yaml:"websocket_path" mapstructure:"websocket_path"`

	// ReadTimeoutSeconds and WriteTimeoutSeconds bound a single frame's
	// read/write, for the tcp and websocket transports.
	ReadTimeoutSeconds  int `yaml:"read_timeout_seconds" mapstructure:"read_timeout_seconds" validate:"omitempty,min=1"`
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds" mapstructure:"write_timeout_seconds" validate:"omitempty,min=1"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	// Enabled turns on tracing/metrics export. Defaults to false.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// ServiceName is the resource attribute reported on every span/metric.
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`
}

// MonitoringConfig configures the side-channel HTTP server that exposes
// /health and /metrics. It never carries JSON-RPC traffic; it binds a
// separate address from Transport, even when Transport.Kind is "tcp" or
// "websocket".
type MonitoringConfig struct {
	// Enabled turns on the /health and /metrics HTTP server. Defaults to false.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// BindAddr is the listen address, e.g. "127.0.0.1:9091". Defaults to ":9091".
	BindAddr string `yaml:"bind_addr" mapstructure:"bind_addr" validate:"omitempty,hostname_port"`
}

// SetDefaults fills every optional field left zero-valued with its
// documented default.
func (c *Config) SetDefaults() {
	if c.DefaultTimeoutSeconds == 0 {
		c.DefaultTimeoutSeconds = 30
	}
	if c.Tokens.AccessLifetimeMinutes == 0 {
		c.Tokens.AccessLifetimeMinutes = 60
	}
	if c.Tokens.RefreshLifetimeDays == 0 {
		c.Tokens.RefreshLifetimeDays = 7
	}
	if c.Tokens.Issuer == "" {
		c.Tokens.Issuer = "toolgate"
	}
	if c.Quota.CPUPercent == 0 {
		c.Quota.CPUPercent = 50
	}
	if c.Quota.MemoryMB == 0 {
		c.Quota.MemoryMB = 512
	}
	if c.Quota.DiskGB == 0 {
		c.Quota.DiskGB = 1
	}
	if c.Quota.MaxProcesses == 0 {
		c.Quota.MaxProcesses = 5
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "json"
	}
	if c.Transport.Kind == "" {
		c.Transport.Kind = "stdio"
	}
	if c.Transport.WebSocketPath == "" {
		c.Transport.WebSocketPath = "/ws"
	}
	if c.Transport.ReadTimeoutSeconds == 0 {
		c.Transport.ReadTimeoutSeconds = 30
	}
	if c.Transport.WriteTimeoutSeconds == 0 {
		c.Transport.WriteTimeoutSeconds = 30
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "toolgate"
	}
	if c.Monitoring.BindAddr == "" {
		c.Monitoring.BindAddr = ":9091"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
