package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateIntervals(cfg)
	v.validateState(&cfg.State)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{Field: field, Value: value, Message: msg})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		v.addError("log.level", cfg.Level, "must be debug, info, warn or error")
	}
	switch cfg.Format {
	case "auto", "text", "json":
	default:
		v.addError("log.format", cfg.Format, "must be auto, text or json")
	}
}

func (v *Validator) validateIntervals(cfg *Config) {
	tick := v.duration("scheduler.tick_interval", cfg.Scheduler.TickInterval)
	status := v.duration("nodes.status_interval", cfg.Nodes.StatusInterval)
	v.duration("nodes.info_interval", cfg.Nodes.InfoInterval)
	v.duration("nodes.request_timeout", cfg.Nodes.RequestTimeout)
	v.duration("locks.default_ttl", cfg.Locks.DefaultTTL)

	// A scheduling decision based on status older than one tick is unsafe,
	// so the tick interval must not undercut the status poll interval.
	if tick > 0 && status > 0 && tick < status {
		v.addError("scheduler.tick_interval", cfg.Scheduler.TickInterval,
			"must be >= nodes.status_interval")
	}

	if cfg.Scheduler.RetryBudget < 0 {
		v.addError("scheduler.retry_budget", cfg.Scheduler.RetryBudget, "must be >= 0")
	}
}

func (v *Validator) validateState(cfg *StateConfig) {
	switch cfg.Backend {
	case "memory", "json", "sqlite":
	default:
		v.addError("state.backend", cfg.Backend, "must be memory, json or sqlite")
	}
	if cfg.Backend != "memory" && cfg.Path == "" {
		v.addError("state.path", cfg.Path, "required for persistent backends")
	}
}

func (v *Validator) duration(field, value string) time.Duration {
	if value == "" {
		v.addError(field, value, "required")
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		v.addError(field, value, "must be a duration (e.g. 5s)")
		return 0
	}
	if d <= 0 {
		v.addError(field, value, "must be positive")
		return 0
	}
	return d
}

// Durations is the parsed view of the config's interval fields. Call after
// Validate succeeded.
type Durations struct {
	Tick           time.Duration
	StatusInterval time.Duration
	InfoInterval   time.Duration
	RequestTimeout time.Duration
	LockTTL        time.Duration
}

// ParseDurations converts the string interval fields.
func ParseDurations(cfg *Config) (Durations, error) {
	var d Durations
	var err error
	if d.Tick, err = time.ParseDuration(cfg.Scheduler.TickInterval); err != nil {
		return d, fmt.Errorf("scheduler.tick_interval: %w", err)
	}
	if d.StatusInterval, err = time.ParseDuration(cfg.Nodes.StatusInterval); err != nil {
		return d, fmt.Errorf("nodes.status_interval: %w", err)
	}
	if d.InfoInterval, err = time.ParseDuration(cfg.Nodes.InfoInterval); err != nil {
		return d, fmt.Errorf("nodes.info_interval: %w", err)
	}
	if d.RequestTimeout, err = time.ParseDuration(cfg.Nodes.RequestTimeout); err != nil {
		return d, fmt.Errorf("nodes.request_timeout: %w", err)
	}
	if d.LockTTL, err = time.ParseDuration(cfg.Locks.DefaultTTL); err != nil {
		return d, fmt.Errorf("locks.default_ttl: %w", err)
	}
	return d, nil
}
