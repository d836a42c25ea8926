package config

// Config holds all application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Nodes     NodesConfig     `mapstructure:"nodes"`
	Locks     LocksConfig     `mapstructure:"locks"`
	State     StateConfig     `mapstructure:"state"`
	Server    ServerConfig    `mapstructure:"server"`
	Layout    LayoutConfig    `mapstructure:"layout"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SchedulerConfig configures the tick loop.
type SchedulerConfig struct {
	TickInterval string `mapstructure:"tick_interval"`
	RetryBudget  int    `mapstructure:"retry_budget"`
}

// NodesConfig configures node polling.
type NodesConfig struct {
	StatusInterval string `mapstructure:"status_interval"`
	InfoInterval   string `mapstructure:"info_interval"`
	RequestTimeout string `mapstructure:"request_timeout"`
}

// LocksConfig configures resource leases.
type LocksConfig struct {
	DefaultTTL string `mapstructure:"default_ttl"`
}

// StateConfig configures the run store.
type StateConfig struct {
	Backend string `mapstructure:"backend"` // memory, json, sqlite
	Path    string `mapstructure:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LayoutConfig points at the workcell layout file.
type LayoutConfig struct {
	Path  string `mapstructure:"path"`
	Watch bool   `mapstructure:"watch"`
}
