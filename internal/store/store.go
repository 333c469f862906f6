// Package store defines the persistence interfaces for sessions and
// connections, plus the shared record types. All mutating operations are
// conditional: they fail with [ErrConditionalFailed] instead of clobbering
// state, which is what keeps listener counters linearizable across
// processes.
//
// The in-memory implementation in this package is the default;
// internal/store/postgres provides the durable one.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrConditionalFailed is returned when a conditional write's precondition
// does not hold: duplicate session ID on create, inactive session on
// update, or a counter already at its floor.
var ErrConditionalFailed = errors.New("store: conditional check failed")

// Role distinguishes the two connection kinds.
type Role string

const (
	RoleSpeaker  Role = "speaker"
	RoleListener Role = "listener"
)

// BroadcastState is the nested per-session broadcast control record.
type BroadcastState struct {
	IsActive        bool    `json:"isActive"`
	IsPaused        bool    `json:"isPaused"`
	IsMuted         bool    `json:"isMuted"`
	Volume          float64 `json:"volume"`
	LastStateChange int64   `json:"lastStateChange"`
}

// Session is one speaker's broadcast session.
type Session struct {
	// ID is the opaque, globally unique session identifier.
	ID string

	// SpeakerConnectionID is the speaker's current transport connection.
	// It changes on connection refresh.
	SpeakerConnectionID string

	// SpeakerUserID identifies the speaking user.
	SpeakerUserID string

	// SourceLanguage is the spoken language (ISO-639-1).
	SourceLanguage string

	// QualityTier selects the processing tier (e.g., "standard").
	QualityTier string

	// CreatedAt is the creation time in Unix milliseconds.
	CreatedAt int64

	// ExpiresAt is the hard session expiry in Unix seconds.
	ExpiresAt int64

	// IsActive is false once the speaker disconnects or the session ends.
	IsActive bool

	// ListenerCount is the live listener count. Never negative.
	ListenerCount int

	// Broadcast is the nested broadcast control state.
	Broadcast BroadcastState

	// PartialResultsEnabled overrides the global partial-results setting
	// when non-nil.
	PartialResultsEnabled *bool

	// MinStability overrides the global stability threshold when non-nil.
	// Valid range [0.70, 0.95].
	MinStability *float64

	// MaxBufferTimeout overrides the global buffer timeout when non-nil.
	// Valid range [2s, 10s].
	MaxBufferTimeout *time.Duration
}

// Connection is one live transport link, speaker or listener.
type Connection struct {
	// ID is the transport connection identifier.
	ID string

	// SessionID is the owning session.
	SessionID string

	// Role is speaker or listener.
	Role Role

	// TargetLanguage is the listener's chosen language (ISO-639-1).
	// Nil for speakers; a listener always has one.
	TargetLanguage *string

	// ConnectedAt is the connect time in Unix milliseconds.
	ConnectedAt int64

	// LastActivityAt is the last inbound activity in Unix milliseconds,
	// updated by heartbeats and audio.
	LastActivityAt int64

	// TTL is the record expiry in Unix seconds, at least one hour past
	// the session expiry.
	TTL int64

	// IPAddress is the peer address, when known.
	IPAddress string
}

// SessionStore persists sessions with conditional mutations.
type SessionStore interface {
	// CreateSession inserts s, failing with [ErrConditionalFailed] when
	// the ID already exists. Callers regenerate the ID and retry.
	CreateSession(ctx context.Context, s Session) error

	// GetSession returns the session or [ErrNotFound].
	GetSession(ctx context.Context, id string) (Session, error)

	// IncrementListenerCount atomically adds one, conditional on the
	// session existing and being active, and returns the new value.
	IncrementListenerCount(ctx context.Context, id string) (int, error)

	// DecrementListenerCount atomically subtracts one with a floor of
	// zero: when the count is already zero it is a no-op returning 0.
	DecrementListenerCount(ctx context.Context, id string) (int, error)

	// UpdateSpeakerConnection replaces the speaker connection ID,
	// conditional on the session being active. Supports refresh.
	UpdateSpeakerConnection(ctx context.Context, id, connectionID string) error

	// UpdateBroadcastState upserts the nested broadcast state record.
	UpdateBroadcastState(ctx context.Context, id string, state BroadcastState) error

	// MarkInactive flags the session inactive. The record remains
	// discoverable until its expiry.
	MarkInactive(ctx context.Context, id string) error

	// ListActiveSessions pages through active sessions. An empty cursor
	// starts from the beginning; the returned cursor is empty on the
	// last page.
	ListActiveSessions(ctx context.Context, pageSize int, cursor string) ([]Session, string, error)
}

// ConnectionStore persists transport connections.
type ConnectionStore interface {
	// CreateConnection inserts c, failing with [ErrConditionalFailed]
	// when the ID already exists.
	CreateConnection(ctx context.Context, c Connection) error

	// GetConnection returns the connection or [ErrNotFound].
	GetConnection(ctx context.Context, id string) (Connection, error)

	// DeleteConnection removes the connection. Deleting a missing
	// connection is not an error.
	DeleteConnection(ctx context.Context, id string) error

	// TouchConnection updates LastActivityAt to atMillis.
	TouchConnection(ctx context.Context, id string, atMillis int64) error

	// UpdateTargetLanguage changes a listener's target language.
	UpdateTargetLanguage(ctx context.Context, id, language string) error

	// ListenersByLanguage returns the connection IDs of listeners on the
	// session tuned to language.
	ListenersByLanguage(ctx context.Context, sessionID, language string) ([]string, error)

	// UniqueTargetLanguages returns the deduplicated target languages
	// over the session's listeners.
	UniqueTargetLanguages(ctx context.Context, sessionID string) ([]string, error)

	// ScanConnections pages through all connections, for the sweeper.
	ScanConnections(ctx context.Context, pageSize int, cursor string) ([]Connection, string, error)

	// BatchDelete removes the given connections, returning the IDs that
	// could not be deleted.
	BatchDelete(ctx context.Context, ids []string) ([]string, error)
}
