// Package protocol defines the client-facing wire messages. Everything is
// JSON over the bidirectional transport: inbound messages route on their
// "action" field, outbound messages carry a "type". Timestamps are Unix
// milliseconds unless a field says otherwise.
package protocol

// Inbound actions.
const (
	ActionCreateSession    = "createSession"
	ActionJoinSession      = "joinSession"
	ActionSendAudio        = "sendAudio"
	ActionHeartbeat        = "heartbeat"
	ActionControlSession   = "controlSession"
	ActionGetSessionStatus = "getSessionStatus"
	ActionChangeLanguage   = "changeLanguage"
)

// Outbound event types.
const (
	EventSessionCreated            = "sessionCreated"
	EventSessionJoined             = "sessionJoined"
	EventHeartbeatAck              = "heartbeatAck"
	EventConnectionRefreshRequired = "connectionRefreshRequired"
	EventConnectionWarning         = "connectionWarning"
	EventConnectionTimeout         = "connectionTimeout"
	EventSessionEnded              = "sessionEnded"
	EventSessionPaused             = "sessionPaused"
	EventSessionResumed            = "sessionResumed"
	EventSessionStatus             = "sessionStatus"
	EventAudioData                 = "audioData"
	EventError                     = "error"
)

// Wire error codes.
const (
	CodeInvalidAction        = "INVALID_ACTION"
	CodeInvalidParameters    = "INVALID_PARAMETERS"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	CodeSessionNotFound      = "SESSION_NOT_FOUND"
	CodeSessionFull          = "SESSION_FULL"
	CodeUnsupportedLanguage  = "UNSUPPORTED_LANGUAGE"
	CodeInvalidConfiguration = "INVALID_CONFIGURATION"
	CodeConnectionNotFound   = "CONNECTION_NOT_FOUND"
	CodeUnauthorizedAction   = "UNAUTHORIZED_ACTION"
	CodeInternalError        = "INTERNAL_ERROR"
	CodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
)

// ClientMessage is the union of all inbound message shapes. The Action
// field selects which of the remaining fields are meaningful.
type ClientMessage struct {
	Action string `json:"action"`

	// createSession
	SourceLanguage   string   `json:"sourceLanguage,omitempty"`
	QualityTier      string   `json:"qualityTier,omitempty"`
	PartialResults   *bool    `json:"partialResults,omitempty"`
	MinStability     *float64 `json:"minStability,omitempty"`
	MaxBufferTimeout *float64 `json:"maxBufferTimeout,omitempty"` // seconds

	// joinSession, changeLanguage
	SessionID      string `json:"sessionId,omitempty"`
	TargetLanguage string `json:"targetLanguage,omitempty"`

	// sendAudio
	Audio string `json:"audio,omitempty"` // base64

	// controlSession
	Command string `json:"command,omitempty"` // pause|resume
}

// SessionCreated acknowledges a createSession.
type SessionCreated struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	ExpiresAt int64  `json:"expiresAt"` // Unix seconds
	Timestamp int64  `json:"timestamp"`
}

// SessionJoined acknowledges a joinSession.
type SessionJoined struct {
	Type           string `json:"type"`
	SessionID      string `json:"sessionId"`
	TargetLanguage string `json:"targetLanguage"`
	ListenerCount  int    `json:"listenerCount"`
	Timestamp      int64  `json:"timestamp"`
}

// HeartbeatAck answers every heartbeat.
type HeartbeatAck struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// ConnectionRefreshRequired tells an aging connection to reconnect,
// carrying everything the client needs to resume seamlessly.
type ConnectionRefreshRequired struct {
	Type           string  `json:"type"`
	SessionID      string  `json:"sessionId"`
	Role           string  `json:"role"`
	TargetLanguage *string `json:"targetLanguage,omitempty"`
}

// ConnectionWarning warns that the connection is close to its hard limit.
type ConnectionWarning struct {
	Type             string `json:"type"`
	RemainingMinutes int    `json:"remainingMinutes"`
}

// ConnectionTimeout is sent best-effort before an idle connection is
// closed.
type ConnectionTimeout struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// SessionEnded notifies listeners that the session is over.
type SessionEnded struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
}

// SessionStateChange carries sessionPaused and sessionResumed events.
type SessionStateChange struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
}

// SessionStatus answers a getSessionStatus.
type SessionStatus struct {
	Type                 string         `json:"type"`
	SessionID            string         `json:"sessionId"`
	ListenerCount        int            `json:"listenerCount"`
	LanguageDistribution map[string]int `json:"languageDistribution"`
	SessionDurationMs    int64          `json:"sessionDuration"`
	IsPaused             bool           `json:"isPaused"`
	Timestamp            int64          `json:"timestamp"`
}

// Error is the uniform outbound failure shape.
type Error struct {
	Type       string `json:"type"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"` // seconds
}
