package config

// DefaultConfigYAML contains the default configuration file content written
// by `workcell init`.
const DefaultConfigYAML = `# Workcell orchestrator configuration
# Values not specified here use built-in defaults.

log:
  level: info
  format: auto

scheduler:
  # Must be >= nodes.status_interval: a dispatch decision older than one
  # status cycle is unsafe to act on.
  tick_interval: 5s
  retry_budget: 3

nodes:
  status_interval: 2s
  info_interval: 60s
  request_timeout: 10s

locks:
  default_ttl: 300s

state:
  backend: sqlite
  path: .workcell/state.db

server:
  addr: ":8432"

layout:
  path: workcell.yaml
  watch: true
`

func setDefaults(s settable) {
	s.SetDefault("log.level", "info")
	s.SetDefault("log.format", "auto")
	s.SetDefault("scheduler.tick_interval", "5s")
	s.SetDefault("scheduler.retry_budget", 3)
	s.SetDefault("nodes.status_interval", "2s")
	s.SetDefault("nodes.info_interval", "60s")
	s.SetDefault("nodes.request_timeout", "10s")
	s.SetDefault("locks.default_ttl", "300s")
	s.SetDefault("state.backend", "sqlite")
	s.SetDefault("state.path", ".workcell/state.db")
	s.SetDefault("server.addr", ":8432")
	s.SetDefault("layout.path", "workcell.yaml")
	s.SetDefault("layout.watch", true)
}

// settable is the subset of viper used for defaults, split out so defaults
// can be unit tested without a full loader.
type settable interface {
	SetDefault(key string, value interface{})
}
