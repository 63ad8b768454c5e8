package host

import (
	"fmt"
	"time"

	"github.com/paulrobinshaw/rch-xcode/pkg/constants"
)

// TimeoutConfig bounds how long a run may take overall, how long it may
// sit without log activity before it is presumed stuck, and how long a
// single connect attempt to a worker may take.
type TimeoutConfig struct {
	OverallSeconds uint64
	IdleLogSeconds uint64
	ConnectSeconds uint64
}

// DefaultTimeoutConfig returns the documented defaults: 30 minutes
// overall, 5 minutes idle, 30 seconds to connect.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		OverallSeconds: uint64(constants.DefaultOverallTimeout.Seconds()),
		IdleLogSeconds: uint64(constants.DefaultIdleTimeout.Seconds()),
		ConnectSeconds: uint64(constants.DefaultConnectTimeout.Seconds()),
	}
}

// TimeoutConfigFromOverrides builds a TimeoutConfig from optional
// overrides, falling back to the default for any nil field.
func TimeoutConfigFromOverrides(overall, idle, connect *uint64) TimeoutConfig {
	cfg := DefaultTimeoutConfig()
	if overall != nil {
		cfg.OverallSeconds = *overall
	}
	if idle != nil {
		cfg.IdleLogSeconds = *idle
	}
	if connect != nil {
		cfg.ConnectSeconds = *connect
	}
	return cfg
}

// Validate enforces the documented bounds: 0 < overall <= 86400,
// 0 < idle <= overall, 0 < connect <= 300.
func (c TimeoutConfig) Validate() error {
	maxOverall := uint64(constants.MaxOverallTimeout.Seconds())
	maxConnect := uint64(constants.MaxConnectTimeout.Seconds())

	if c.OverallSeconds == 0 || c.OverallSeconds > maxOverall {
		return fmt.Errorf("overall timeout %d seconds out of bounds (0, %d]", c.OverallSeconds, maxOverall)
	}
	if c.IdleLogSeconds == 0 || c.IdleLogSeconds > c.OverallSeconds {
		return fmt.Errorf("idle timeout %d seconds out of bounds (0, %d]", c.IdleLogSeconds, c.OverallSeconds)
	}
	if c.ConnectSeconds == 0 || c.ConnectSeconds > maxConnect {
		return fmt.Errorf("connect timeout %d seconds out of bounds (0, %d]", c.ConnectSeconds, maxConnect)
	}
	return nil
}

// TimeoutStatus is the outcome of a timeout check.
type TimeoutStatus int

const (
	// TimeoutOK means neither the overall nor idle bound has been hit.
	TimeoutOK TimeoutStatus = iota
	// TimeoutOverall means the run has exceeded OverallSeconds.
	TimeoutOverall
	// TimeoutIdle means the run has gone IdleLogSeconds without activity.
	TimeoutIdle
)

// IsTimeout reports whether this status represents a timeout.
func (s TimeoutStatus) IsTimeout() bool {
	return s == TimeoutOverall || s == TimeoutIdle
}

// FailureSubkind maps a timeout status to its failure classification, or
// "" if the status is not a timeout.
func (s TimeoutStatus) FailureSubkind() string {
	switch s {
	case TimeoutOverall:
		return "TIMEOUT_OVERALL"
	case TimeoutIdle:
		return "TIMEOUT_IDLE"
	default:
		return ""
	}
}

// TimeoutEnforcer checks elapsed and idle time against a TimeoutConfig.
// It only detects timeout conditions; it does not itself send a cancel
// RPC — the caller owns the decision of what to do with TimeoutOverall
// or TimeoutIdle.
type TimeoutEnforcer struct {
	config       TimeoutConfig
	startTime    time.Time
	lastActivity time.Time
}

// NewTimeoutEnforcer returns an enforcer started at the current time.
func NewTimeoutEnforcer(config TimeoutConfig) *TimeoutEnforcer {
	now := time.Now()
	return &TimeoutEnforcer{config: config, startTime: now, lastActivity: now}
}

// NewTimeoutEnforcerWithDefaults returns an enforcer using
// DefaultTimeoutConfig.
func NewTimeoutEnforcerWithDefaults() *TimeoutEnforcer {
	return NewTimeoutEnforcer(DefaultTimeoutConfig())
}

// RecordActivity marks the current time as the last activity timestamp.
func (e *TimeoutEnforcer) RecordActivity() {
	e.lastActivity = time.Now()
}

// SyncActivity adopts an externally observed activity timestamp, e.g. one
// reported by a LogStreamer.
func (e *TimeoutEnforcer) SyncActivity(lastActivity time.Time) {
	e.lastActivity = lastActivity
}

// Check evaluates the overall bound before the idle bound.
func (e *TimeoutEnforcer) Check() TimeoutStatus {
	if e.Elapsed() >= time.Duration(e.config.OverallSeconds)*time.Second {
		return TimeoutOverall
	}
	if e.IdleTime() >= time.Duration(e.config.IdleLogSeconds)*time.Second {
		return TimeoutIdle
	}
	return TimeoutOK
}

// Elapsed returns the time since the enforcer started.
func (e *TimeoutEnforcer) Elapsed() time.Duration {
	return time.Since(e.startTime)
}

// IdleTime returns the time since the last recorded activity.
func (e *TimeoutEnforcer) IdleTime() time.Duration {
	return time.Since(e.lastActivity)
}

// OverallRemaining returns the time left before the overall bound,
// floored at zero.
func (e *TimeoutEnforcer) OverallRemaining() time.Duration {
	remaining := time.Duration(e.config.OverallSeconds)*time.Second - e.Elapsed()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IdleRemaining returns the time left before the idle bound, floored at
// zero.
func (e *TimeoutEnforcer) IdleRemaining() time.Duration {
	remaining := time.Duration(e.config.IdleLogSeconds)*time.Second - e.IdleTime()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset restarts both the overall and idle clocks at the current time.
func (e *TimeoutEnforcer) Reset() {
	now := time.Now()
	e.startTime = now
	e.lastActivity = now
}

// Config returns the enforcer's TimeoutConfig.
func (e *TimeoutEnforcer) Config() TimeoutConfig {
	return e.config
}
