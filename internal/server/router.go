// Package server implements the client-facing surface: a WebSocket
// endpoint that accepts connections, and a message router that maps
// inbound protocol actions onto the session, pipeline, and store layers.
//
// The Router is transport-agnostic: it receives raw message bytes tagged
// with a connection ID and replies through a [transport.Pusher]. The
// WebSocket specifics live in [Server].
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lingocast/lingocast/internal/observe"
	"github.com/lingocast/lingocast/internal/protocol"
	"github.com/lingocast/lingocast/internal/result"
	"github.com/lingocast/lingocast/internal/session"
	"github.com/lingocast/lingocast/internal/store"
	"github.com/lingocast/lingocast/pkg/provider/asr"
	"github.com/lingocast/lingocast/pkg/transport"
)

const (
	// createAttempts bounds session ID regeneration on collision.
	createAttempts = 3

	// sweepInterval drives each speaker's processor maintenance tick.
	sweepInterval = time.Second

	// connectionTTLSlack keeps connection records discoverable past the
	// session expiry, for post-mortem cleanup.
	connectionTTLSlack = time.Hour

	// minStabilityFloor and minStabilityCeil bound the per-session
	// stability override.
	minStabilityFloor = 0.70
	minStabilityCeil  = 0.95

	// bufferTimeoutMin and bufferTimeoutMax bound the per-session buffer
	// timeout override, in seconds.
	bufferTimeoutMin = 2.0
	bufferTimeoutMax = 10.0
)

// RouterConfig holds the tunables the router applies per session. Zero
// values are replaced with defaults.
type RouterConfig struct {
	// MaxListeners caps listeners per session. Default: 500.
	MaxListeners int

	// SessionTTL is the hard session lifetime. Default: 2h.
	SessionTTL time.Duration

	// SampleRate and Channels describe the speaker audio format handed to
	// the recognizer. Defaults: 16000 Hz mono.
	SampleRate int
	Channels   int

	// PartialsEnabled is the global partial-forwarding default; a session
	// may override it at creation.
	PartialsEnabled bool

	// MinStability is the default forwarding threshold for partials.
	MinStability float64

	// MaxBufferTimeout is the default buffered-partial deadline.
	MaxBufferTimeout time.Duration

	// PauseThreshold is the silence gap treated as a sentence boundary.
	PauseThreshold time.Duration

	// OrphanTimeout flushes never-superseded partials after this long.
	OrphanTimeout time.Duration

	// MaxRatePerSecond caps forwarded transcripts per session.
	MaxRatePerSecond int

	// DedupTTL is the duplicate-suppression window.
	DedupTTL time.Duration

	// SupportedTargets restricts the target languages listeners may pick,
	// typically to the languages with a configured synthesis voice. Nil
	// accepts any well-formed code.
	SupportedTargets map[string]bool
}

// Router dispatches inbound client messages to their handlers. One Router
// serves all connections of the process; per-speaker recognition state is
// tracked internally. Safe for concurrent use.
type Router struct {
	cfg       RouterConfig
	sessions  store.SessionStore
	conns     store.ConnectionStore
	pusher    transport.Pusher
	lifecycle *session.Lifecycle
	heartbeat *session.Heartbeat
	recognizer asr.Provider
	sink      result.Sink
	metrics   *observe.Metrics

	now   func() time.Time
	newID func() string

	mu       sync.Mutex
	speakers map[string]*speakerState
	peers    map[string]string
}

// speakerState is the live recognition machinery behind one speaker
// connection.
type speakerState struct {
	sessionID string
	handle    asr.SessionHandle
	processor *result.Processor
	cancel    context.CancelFunc
}

// NewRouter wires a Router over its collaborators. sink receives the
// transcripts that clear the per-session processors; in production it is
// the pipeline orchestrator.
func NewRouter(cfg RouterConfig, sessions store.SessionStore, conns store.ConnectionStore, pusher transport.Pusher, lifecycle *session.Lifecycle, heartbeat *session.Heartbeat, recognizer asr.Provider, sink result.Sink) *Router {
	if cfg.MaxListeners <= 0 {
		cfg.MaxListeners = 500
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 2 * time.Hour
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.MinStability <= 0 {
		cfg.MinStability = 0.85
	}
	return &Router{
		cfg:        cfg,
		sessions:   sessions,
		conns:      conns,
		pusher:     pusher,
		lifecycle:  lifecycle,
		heartbeat:  heartbeat,
		recognizer: recognizer,
		sink:       sink,
		metrics:    observe.DefaultMetrics(),
		now:        time.Now,
		newID:      uuid.NewString,
		speakers:   make(map[string]*speakerState),
		peers:      make(map[string]string),
	}
}

// RegisterPeer records the remote address of a freshly accepted
// connection, so session and connection records can carry it.
func (rt *Router) RegisterPeer(connectionID, addr string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.peers[connectionID] = addr
}

// HandleMessage routes one inbound message from connectionID. Protocol
// violations are answered with an error event; unexpected internal
// failures are logged and answered with INTERNAL_ERROR.
func (rt *Router) HandleMessage(ctx context.Context, connectionID string, raw []byte) {
	var msg protocol.ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		rt.sendError(ctx, connectionID, protocol.CodeInvalidParameters, "malformed message", err.Error())
		return
	}

	var err error
	switch msg.Action {
	case protocol.ActionCreateSession:
		err = rt.createSession(ctx, connectionID, msg)
	case protocol.ActionJoinSession:
		err = rt.joinSession(ctx, connectionID, msg)
	case protocol.ActionSendAudio:
		err = rt.sendAudio(ctx, connectionID, msg)
	case protocol.ActionHeartbeat:
		err = rt.handleHeartbeat(ctx, connectionID)
	case protocol.ActionControlSession:
		err = rt.controlSession(ctx, connectionID, msg)
	case protocol.ActionGetSessionStatus:
		err = rt.sessionStatus(ctx, connectionID, msg)
	case protocol.ActionChangeLanguage:
		err = rt.changeLanguage(ctx, connectionID, msg)
	default:
		rt.sendError(ctx, connectionID, protocol.CodeInvalidAction,
			fmt.Sprintf("unknown action %q", msg.Action), "")
		return
	}
	if err != nil {
		slog.Error("message handling failed",
			"connection_id", connectionID, "action", msg.Action, "err", err)
		rt.sendError(ctx, connectionID, protocol.CodeInternalError, "internal error", "")
	}
}

// Disconnect tears down everything the router holds for connectionID and
// runs the shared lifecycle disconnect path. Safe to call for unknown
// connections.
func (rt *Router) Disconnect(ctx context.Context, connectionID string) error {
	rt.mu.Lock()
	st := rt.speakers[connectionID]
	delete(rt.speakers, connectionID)
	delete(rt.peers, connectionID)
	rt.mu.Unlock()

	if st != nil {
		st.cancel()
		if err := st.handle.Close(); err != nil {
			slog.Warn("recognizer close failed",
				"connection_id", connectionID, "session_id", st.sessionID, "err", err)
		}
	}
	return rt.lifecycle.Disconnect(ctx, connectionID)
}

// ── createSession ────────────────────────────────────────────────────────

func (rt *Router) createSession(ctx context.Context, connectionID string, msg protocol.ClientMessage) error {
	if !isLanguageCode(msg.SourceLanguage) {
		rt.sendError(ctx, connectionID, protocol.CodeInvalidParameters,
			"sourceLanguage must be an ISO-639-1 code", "")
		return nil
	}
	tier := msg.QualityTier
	if tier == "" {
		tier = "standard"
	}
	if tier != "standard" && tier != "premium" {
		rt.sendError(ctx, connectionID, protocol.CodeInvalidConfiguration,
			"qualityTier must be standard or premium", "")
		return nil
	}
	if msg.MinStability != nil && (*msg.MinStability < minStabilityFloor || *msg.MinStability > minStabilityCeil) {
		rt.sendError(ctx, connectionID, protocol.CodeInvalidConfiguration,
			fmt.Sprintf("minStability must be in [%.2f, %.2f]", minStabilityFloor, minStabilityCeil), "")
		return nil
	}
	if msg.MaxBufferTimeout != nil && (*msg.MaxBufferTimeout < bufferTimeoutMin || *msg.MaxBufferTimeout > bufferTimeoutMax) {
		rt.sendError(ctx, connectionID, protocol.CodeInvalidConfiguration,
			fmt.Sprintf("maxBufferTimeout must be in [%.0f, %.0f] seconds", bufferTimeoutMin, bufferTimeoutMax), "")
		return nil
	}

	rt.mu.Lock()
	_, speaking := rt.speakers[connectionID]
	peer := rt.peers[connectionID]
	rt.mu.Unlock()
	if speaking {
		rt.sendError(ctx, connectionID, protocol.CodeUnauthorizedAction,
			"connection already owns a session", "")
		return nil
	}

	now := rt.now()
	expiresAt := now.Add(rt.cfg.SessionTTL)

	var bufferTimeout *time.Duration
	if msg.MaxBufferTimeout != nil {
		d := time.Duration(*msg.MaxBufferTimeout * float64(time.Second))
		bufferTimeout = &d
	}

	sess := store.Session{
		SpeakerConnectionID:   connectionID,
		SpeakerUserID:         connectionID,
		SourceLanguage:        msg.SourceLanguage,
		QualityTier:           tier,
		CreatedAt:             now.UnixMilli(),
		ExpiresAt:             expiresAt.Unix(),
		IsActive:              true,
		Broadcast:             store.BroadcastState{IsActive: true, Volume: 1.0, LastStateChange: now.UnixMilli()},
		PartialResultsEnabled: msg.PartialResults,
		MinStability:          msg.MinStability,
		MaxBufferTimeout:      bufferTimeout,
	}

	// Session IDs are random; a collision means regenerate and retry.
	created := false
	for attempt := 0; attempt < createAttempts && !created; attempt++ {
		sess.ID = rt.newID()
		switch err := rt.sessions.CreateSession(ctx, sess); {
		case err == nil:
			created = true
		case errors.Is(err, store.ErrConditionalFailed):
		default:
			return fmt.Errorf("create session: %w", err)
		}
	}
	if !created {
		return fmt.Errorf("create session: id collision after %d attempts", createAttempts)
	}

	conn := store.Connection{
		ID:             connectionID,
		SessionID:      sess.ID,
		Role:           store.RoleSpeaker,
		ConnectedAt:    now.UnixMilli(),
		LastActivityAt: now.UnixMilli(),
		TTL:            expiresAt.Add(connectionTTLSlack).Unix(),
		IPAddress:      peer,
	}
	if err := rt.conns.CreateConnection(ctx, conn); err != nil {
		_ = rt.sessions.MarkInactive(ctx, sess.ID)
		if errors.Is(err, store.ErrConditionalFailed) {
			rt.sendError(ctx, connectionID, protocol.CodeUnauthorizedAction,
				"connection is already part of a session", "")
			return nil
		}
		return fmt.Errorf("create speaker connection: %w", err)
	}

	partials := rt.cfg.PartialsEnabled
	if msg.PartialResults != nil {
		partials = *msg.PartialResults
	}

	handle, err := rt.recognizer.StartStream(ctx, asr.StreamConfig{
		SampleRate:     rt.cfg.SampleRate,
		Channels:       rt.cfg.Channels,
		Language:       msg.SourceLanguage,
		InterimResults: partials,
	})
	if err != nil {
		slog.Error("recognizer stream start failed", "session_id", sess.ID, "err", err)
		_ = rt.conns.DeleteConnection(ctx, connectionID)
		_ = rt.sessions.MarkInactive(ctx, sess.ID)
		rt.sendError(ctx, connectionID, protocol.CodeServiceUnavailable,
			"speech recognition unavailable", "")
		return nil
	}

	minStability := rt.cfg.MinStability
	if msg.MinStability != nil {
		minStability = *msg.MinStability
	}
	maxBuffer := rt.cfg.MaxBufferTimeout
	if bufferTimeout != nil {
		maxBuffer = *bufferTimeout
	}

	processor := result.NewProcessor(result.ProcessorConfig{
		SessionID:       sess.ID,
		SourceLanguage:  msg.SourceLanguage,
		PartialsEnabled: partials,
		MinStability:    minStability,
		OrphanTimeout:   rt.cfg.OrphanTimeout,
		// A zero window defers to the limiter's sub-second default so
		// partial forwards stay responsive within each second.
		Limiter: result.LimiterConfig{
			MaxPerWindow: rt.cfg.MaxRatePerSecond,
		},
		Boundary: result.BoundaryConfig{
			PauseThreshold:   rt.cfg.PauseThreshold,
			MaxBufferTimeout: maxBuffer,
		},
	}, rt.cfg.DedupTTL, rt.sink)

	pumpCtx, cancel := context.WithCancel(context.Background())
	st := &speakerState{
		sessionID: sess.ID,
		handle:    handle,
		processor: processor,
		cancel:    cancel,
	}
	rt.mu.Lock()
	rt.speakers[connectionID] = st
	rt.mu.Unlock()
	go rt.pump(pumpCtx, st)

	rt.metrics.ActiveSessions.Add(ctx, 1)
	slog.Info("session created",
		"session_id", sess.ID,
		"connection_id", connectionID,
		"source_language", msg.SourceLanguage,
		"quality_tier", tier,
		"partials", partials,
	)

	return rt.reply(ctx, connectionID, protocol.SessionCreated{
		Type:      protocol.EventSessionCreated,
		SessionID: sess.ID,
		ExpiresAt: expiresAt.Unix(),
		Timestamp: now.UnixMilli(),
	})
}

// pump feeds one speaker's recognition events through the session's
// processor and drives its periodic maintenance.
func (rt *Router) pump(ctx context.Context, st *speakerState) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.processor.Sweep(ctx)
		case r, ok := <-st.handle.Results():
			if !ok {
				return
			}
			var err error
			if r.IsFinal {
				err = st.processor.HandleFinal(ctx, result.Final{
					ID:        r.ID,
					SessionID: st.sessionID,
					Text:      r.Text,
					Timestamp: r.Timestamp,
					Replaces:  r.Replaces,
				})
			} else {
				err = st.processor.HandlePartial(ctx, result.Partial{
					ID:        r.ID,
					SessionID: st.sessionID,
					Text:      r.Text,
					Timestamp: r.Timestamp,
					Stability: r.Stability,
				})
			}
			if err != nil {
				slog.Warn("recognition event handling failed",
					"session_id", st.sessionID, "result_id", r.ID, "err", err)
			}
		}
	}
}

// ── joinSession ──────────────────────────────────────────────────────────

func (rt *Router) joinSession(ctx context.Context, connectionID string, msg protocol.ClientMessage) error {
	if msg.SessionID == "" {
		rt.sendError(ctx, connectionID, protocol.CodeInvalidParameters, "sessionId is required", "")
		return nil
	}
	if !isLanguageCode(msg.TargetLanguage) {
		rt.sendError(ctx, connectionID, protocol.CodeInvalidParameters,
			"targetLanguage must be an ISO-639-1 code", "")
		return nil
	}
	if rt.cfg.SupportedTargets != nil && !rt.cfg.SupportedTargets[msg.TargetLanguage] {
		rt.sendError(ctx, connectionID, protocol.CodeUnsupportedLanguage,
			fmt.Sprintf("no synthesis voice for language %q", msg.TargetLanguage), "")
		return nil
	}

	sess, err := rt.sessions.GetSession(ctx, msg.SessionID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !sess.IsActive) {
		rt.sendError(ctx, connectionID, protocol.CodeSessionNotFound, "session not found", "")
		return nil
	}
	if err != nil {
		return fmt.Errorf("join session: %w", err)
	}

	// Claim a listener slot first; roll the increment back on any failure
	// after it. The conditional increment keeps the count exact even when
	// joins race the speaker's disconnect.
	count, err := rt.sessions.IncrementListenerCount(ctx, msg.SessionID)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrConditionalFailed) {
		rt.sendError(ctx, connectionID, protocol.CodeSessionNotFound, "session not found", "")
		return nil
	}
	if err != nil {
		return fmt.Errorf("claim listener slot: %w", err)
	}
	if count > rt.cfg.MaxListeners {
		if _, derr := rt.sessions.DecrementListenerCount(ctx, msg.SessionID); derr != nil {
			slog.Warn("listener slot rollback failed", "session_id", msg.SessionID, "err", derr)
		}
		rt.sendError(ctx, connectionID, protocol.CodeSessionFull,
			fmt.Sprintf("session is at its %d listener capacity", rt.cfg.MaxListeners), "")
		return nil
	}

	rt.mu.Lock()
	peer := rt.peers[connectionID]
	rt.mu.Unlock()

	now := rt.now()
	lang := msg.TargetLanguage
	conn := store.Connection{
		ID:             connectionID,
		SessionID:      msg.SessionID,
		Role:           store.RoleListener,
		TargetLanguage: &lang,
		ConnectedAt:    now.UnixMilli(),
		LastActivityAt: now.UnixMilli(),
		TTL:            time.Unix(sess.ExpiresAt, 0).Add(connectionTTLSlack).Unix(),
		IPAddress:      peer,
	}
	if err := rt.conns.CreateConnection(ctx, conn); err != nil {
		if _, derr := rt.sessions.DecrementListenerCount(ctx, msg.SessionID); derr != nil {
			slog.Warn("listener slot rollback failed", "session_id", msg.SessionID, "err", derr)
		}
		if errors.Is(err, store.ErrConditionalFailed) {
			rt.sendError(ctx, connectionID, protocol.CodeUnauthorizedAction,
				"connection is already part of a session", "")
			return nil
		}
		return fmt.Errorf("create listener connection: %w", err)
	}

	rt.metrics.ActiveListeners.Add(ctx, 1)
	slog.Info("listener joined",
		"session_id", msg.SessionID,
		"connection_id", connectionID,
		"target_language", lang,
		"listener_count", count,
	)

	return rt.reply(ctx, connectionID, protocol.SessionJoined{
		Type:           protocol.EventSessionJoined,
		SessionID:      msg.SessionID,
		TargetLanguage: lang,
		ListenerCount:  count,
		Timestamp:      now.UnixMilli(),
	})
}

// ── sendAudio ────────────────────────────────────────────────────────────

func (rt *Router) sendAudio(ctx context.Context, connectionID string, msg protocol.ClientMessage) error {
	rt.mu.Lock()
	st := rt.speakers[connectionID]
	rt.mu.Unlock()
	if st == nil {
		rt.sendError(ctx, connectionID, protocol.CodeUnauthorizedAction,
			"only the session speaker can send audio", "")
		return nil
	}

	chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
	if err != nil {
		rt.sendError(ctx, connectionID, protocol.CodeInvalidParameters,
			"audio must be base64-encoded", err.Error())
		return nil
	}
	if len(chunk) == 0 {
		rt.sendError(ctx, connectionID, protocol.CodeInvalidParameters, "audio is empty", "")
		return nil
	}

	if err := rt.conns.TouchConnection(ctx, connectionID, rt.now().UnixMilli()); err != nil {
		slog.Warn("activity touch failed", "connection_id", connectionID, "err", err)
	}

	if err := st.handle.SendAudio(chunk); err != nil {
		slog.Error("recognizer rejected audio",
			"session_id", st.sessionID, "connection_id", connectionID, "err", err)
		rt.sendError(ctx, connectionID, protocol.CodeServiceUnavailable,
			"speech recognition stream closed", "")
	}
	return nil
}

// ── heartbeat ────────────────────────────────────────────────────────────

func (rt *Router) handleHeartbeat(ctx context.Context, connectionID string) error {
	err := rt.heartbeat.Handle(ctx, connectionID)
	if errors.Is(err, transport.ErrGone) {
		rt.sendError(ctx, connectionID, protocol.CodeConnectionNotFound,
			"connection is not registered", "")
		return nil
	}
	return err
}

// ── controlSession ───────────────────────────────────────────────────────

func (rt *Router) controlSession(ctx context.Context, connectionID string, msg protocol.ClientMessage) error {
	if msg.Command != "pause" && msg.Command != "resume" {
		rt.sendError(ctx, connectionID, protocol.CodeInvalidParameters,
			"command must be pause or resume", "")
		return nil
	}

	conn, err := rt.conns.GetConnection(ctx, connectionID)
	if errors.Is(err, store.ErrNotFound) {
		rt.sendError(ctx, connectionID, protocol.CodeConnectionNotFound,
			"connection is not registered", "")
		return nil
	}
	if err != nil {
		return fmt.Errorf("control session: %w", err)
	}
	if conn.Role != store.RoleSpeaker {
		rt.sendError(ctx, connectionID, protocol.CodeUnauthorizedAction,
			"only the session speaker can control the broadcast", "")
		return nil
	}

	sess, err := rt.sessions.GetSession(ctx, conn.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		rt.sendError(ctx, connectionID, protocol.CodeSessionNotFound, "session not found", "")
		return nil
	}
	if err != nil {
		return fmt.Errorf("control session: %w", err)
	}

	now := rt.now()
	state := sess.Broadcast
	state.IsPaused = msg.Command == "pause"
	state.LastStateChange = now.UnixMilli()
	if err := rt.sessions.UpdateBroadcastState(ctx, sess.ID, state); err != nil {
		return fmt.Errorf("update broadcast state: %w", err)
	}

	event := protocol.EventSessionResumed
	if state.IsPaused {
		event = protocol.EventSessionPaused
	}
	payload, err := json.Marshal(protocol.SessionStateChange{
		Type:      event,
		SessionID: sess.ID,
		Timestamp: now.UnixMilli(),
	})
	if err != nil {
		return err
	}
	rt.lifecycle.NotifyListeners(ctx, sess.ID, payload)

	slog.Info("broadcast state changed", "session_id", sess.ID, "state", event)
	return rt.pusher.Send(ctx, connectionID, payload)
}

// ── getSessionStatus ─────────────────────────────────────────────────────

func (rt *Router) sessionStatus(ctx context.Context, connectionID string, msg protocol.ClientMessage) error {
	sessionID := msg.SessionID
	if sessionID == "" {
		conn, err := rt.conns.GetConnection(ctx, connectionID)
		if errors.Is(err, store.ErrNotFound) {
			rt.sendError(ctx, connectionID, protocol.CodeInvalidParameters,
				"sessionId is required", "")
			return nil
		}
		if err != nil {
			return fmt.Errorf("session status: %w", err)
		}
		sessionID = conn.SessionID
	}

	sess, err := rt.sessions.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		rt.sendError(ctx, connectionID, protocol.CodeSessionNotFound, "session not found", "")
		return nil
	}
	if err != nil {
		return fmt.Errorf("session status: %w", err)
	}

	dist := make(map[string]int)
	langs, err := rt.conns.UniqueTargetLanguages(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("session status: %w", err)
	}
	for _, lang := range langs {
		ids, err := rt.conns.ListenersByLanguage(ctx, sessionID, lang)
		if err != nil {
			return fmt.Errorf("session status: %w", err)
		}
		dist[lang] = len(ids)
	}

	now := rt.now()
	return rt.reply(ctx, connectionID, protocol.SessionStatus{
		Type:                 protocol.EventSessionStatus,
		SessionID:            sessionID,
		ListenerCount:        sess.ListenerCount,
		LanguageDistribution: dist,
		SessionDurationMs:    now.UnixMilli() - sess.CreatedAt,
		IsPaused:             sess.Broadcast.IsPaused,
		Timestamp:            now.UnixMilli(),
	})
}

// ── changeLanguage ───────────────────────────────────────────────────────

func (rt *Router) changeLanguage(ctx context.Context, connectionID string, msg protocol.ClientMessage) error {
	if !isLanguageCode(msg.TargetLanguage) {
		rt.sendError(ctx, connectionID, protocol.CodeInvalidParameters,
			"targetLanguage must be an ISO-639-1 code", "")
		return nil
	}
	if rt.cfg.SupportedTargets != nil && !rt.cfg.SupportedTargets[msg.TargetLanguage] {
		rt.sendError(ctx, connectionID, protocol.CodeUnsupportedLanguage,
			fmt.Sprintf("no synthesis voice for language %q", msg.TargetLanguage), "")
		return nil
	}

	conn, err := rt.conns.GetConnection(ctx, connectionID)
	if errors.Is(err, store.ErrNotFound) {
		rt.sendError(ctx, connectionID, protocol.CodeConnectionNotFound,
			"connection is not registered", "")
		return nil
	}
	if err != nil {
		return fmt.Errorf("change language: %w", err)
	}
	if conn.Role != store.RoleListener {
		rt.sendError(ctx, connectionID, protocol.CodeUnauthorizedAction,
			"only listeners can change language", "")
		return nil
	}

	if err := rt.conns.UpdateTargetLanguage(ctx, connectionID, msg.TargetLanguage); err != nil {
		return fmt.Errorf("change language: %w", err)
	}

	sess, err := rt.sessions.GetSession(ctx, conn.SessionID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("change language: %w", err)
	}

	slog.Info("listener changed language",
		"session_id", conn.SessionID,
		"connection_id", connectionID,
		"target_language", msg.TargetLanguage,
	)

	return rt.reply(ctx, connectionID, protocol.SessionJoined{
		Type:           protocol.EventSessionJoined,
		SessionID:      conn.SessionID,
		TargetLanguage: msg.TargetLanguage,
		ListenerCount:  sess.ListenerCount,
		Timestamp:      rt.now().UnixMilli(),
	})
}

// ── helpers ──────────────────────────────────────────────────────────────

func (rt *Router) reply(ctx context.Context, connectionID string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return rt.pusher.Send(ctx, connectionID, payload)
}

func (rt *Router) sendError(ctx context.Context, connectionID, code, message, details string) {
	payload, err := json.Marshal(protocol.Error{
		Type:    protocol.EventError,
		Code:    code,
		Message: message,
		Details: details,
	})
	if err != nil {
		return
	}
	if err := rt.pusher.Send(ctx, connectionID, payload); err != nil && !errors.Is(err, transport.ErrGone) {
		slog.Warn("error reply failed", "connection_id", connectionID, "code", code, "err", err)
	}
}

// isLanguageCode reports whether s looks like an ISO-639-1 code: exactly
// two lowercase ASCII letters.
func isLanguageCode(s string) bool {
	if len(s) != 2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'a' || s[i] > 'z' {
			return false
		}
	}
	return true
}
