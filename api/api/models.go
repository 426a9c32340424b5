/* models.go
 * This file contain the interfaces, structs and helper functions that are used by api consumers
 * Authors: Zachary Bower
 */

package api

import (
	"errors"
	"time"
)

// ErrNotReady is returned when the published match cannot be served yet, either because nothing has been published
// or because a rostered player's name could not be resolved
var ErrNotReady = errors.New("match is not ready")

// ErrRestartFailed is returned by Cancel when the reset was committed but the game server restart command failed
var ErrRestartFailed = errors.New("draft was reset but the restart command failed")

// LeaderScheduler is told when a full queue needs leaders selected at a deadline
type LeaderScheduler interface {
	Schedule(at time.Time)
}

// Config holds the settings for the game server side of the api
type Config struct {
	// ServerID is the game server the start and cancel commands are sent to
	ServerID string
	// PublicBaseURL is where the game server can reach this service's match config endpoint
	PublicBaseURL string
	// CommandTimeout bounds every call to the command api
	CommandTimeout time.Duration
	// LockTTL is how long a publish or start lock is honoured before it is treated as abandoned
	LockTTL time.Duration
	// CancelCommand is sent to the game server when a match is cancelled. Empty disables it
	CancelCommand string
}

const (
	DefaultCommandTimeout = 10 * time.Second
	DefaultLockTTL        = 2 * time.Minute
	DefaultCancelCommand  = "mp_restartgame 1"
)

// DefaultConfig returns a Config with the default timeouts
func DefaultConfig() Config {
	return Config{
		CommandTimeout: DefaultCommandTimeout,
		LockTTL:        DefaultLockTTL,
		CancelCommand:  DefaultCancelCommand,
	}
}

type PublishStatus string

const (
	PublishPublished PublishStatus = "PUBLISHED"
	PublishNotReady  PublishStatus = "NOT_READY"
	PublishLocked    PublishStatus = "LOCKED"
	PublishFailed    PublishStatus = "FAILED"
)

// PublishResult is the outcome of a publication attempt. Err is only set for PublishFailed
type PublishResult struct {
	Status PublishStatus `json:"status"`
	Err    error         `json:"-"`
}

type StartStatus string

const (
	StartStarted         StartStatus = "STARTED"
	StartNotFound        StartStatus = "NOT_FOUND"
	StartLocked          StartStatus = "LOCKED"
	StartNotReady        StartStatus = "NOT_READY"
	StartFailed          StartStatus = "FAILED"
	StartUnauthenticated StartStatus = "UNAUTHENTICATED"
)

// StartResult is the outcome of a server start attempt. ConfigURL is set for StartStarted, Err for the two failure
// statuses
type StartResult struct {
	Status    StartStatus `json:"status"`
	ConfigURL string      `json:"configUrl,omitempty"`
	Err       error       `json:"-"`
}
