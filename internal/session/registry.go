package session

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/collabforge/core/internal/apierr"
	"github.com/collabforge/core/internal/logging"
	"github.com/collabforge/core/internal/metrics"
	"github.com/collabforge/core/internal/ot"
)

// CheckpointSink receives an opportunistic (version, content) snapshot after
// a successful submit. It is the only persistence hook the core calls —
// durable op-log storage is explicitly out of scope.
type CheckpointSink func(sessionID string, version int, content string)

// AuthGate is the permission check the registry consults before mutating or
// reading session state. internal/permissions.Resolver.HasPermission
// satisfies this; tests can stub it directly.
type AuthGate interface {
	HasPermission(userID, projectID, token string) (bool, error)
}

// Registry is the concurrent map of live sessions keyed by session id. Each
// entry's state is protected by its own Session.mu so submits on different
// sessions proceed in parallel — a single global lock across all sessions
// would be correct but throttles throughput, so it is avoided here.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	bufferSize int
	checkpoint CheckpointSink
	authGate   AuthGate
}

// NewRegistry builds an empty registry. bufferSize sets the broadcast
// buffer capacity of every session it creates (BROADCAST_BUFFER in
// internal/config).
func NewRegistry(bufferSize int) *Registry {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Registry{sessions: make(map[string]*Session), bufferSize: bufferSize}
}

// SetCheckpointSink installs the optional checkpoint hook, called after each
// successful Submit.
func (r *Registry) SetCheckpointSink(sink CheckpointSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkpoint = sink
}

// SetAuthGate installs the permission check consulted before submit/
// update_cursor (requires "write") and join/detect_conflicts (requires
// "read"). Leaving it unset disables the gate entirely — useful for unit
// tests of session mechanics in isolation from internal/permissions.
func (r *Registry) SetAuthGate(gate AuthGate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authGate = gate
}

func (r *Registry) checkPermission(userID, projectID, token string) error {
	r.mu.RLock()
	gate := r.authGate
	r.mu.RUnlock()

	if gate == nil {
		return nil
	}
	ok, err := gate.HasPermission(userID, projectID, token)
	if err != nil {
		return err
	}
	if !ok {
		return &apierr.Forbidden{UserID: userID, Resource: projectID, Token: token}
	}
	return nil
}

// Create starts a new session bound to (projectID, fileID).
func (r *Registry) Create(sessionID, projectID, fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[sessionID]; exists {
		return &apierr.AlreadyExists{Kind: "session", ID: sessionID}
	}
	r.sessions[sessionID] = newSession(sessionID, projectID, fileID, r.bufferSize)
	metrics.Get().SessionsActive.Inc()
	logging.L().Info("session created", zap.String("session_id", sessionID), zap.String("project_id", projectID), zap.String("file_id", fileID))
	return nil
}

func (r *Registry) get(sessionID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, &apierr.NotFound{Kind: "session", ID: sessionID}
	}
	return s, nil
}

// Join adds userID as a participant. Idempotent per user. Requires "read"
// on the session's project.
func (r *Registry) Join(sessionID, userID string) error {
	s, err := r.get(sessionID)
	if err != nil {
		return err
	}
	if err := r.checkPermission(userID, s.ProjectID(), "read"); err != nil {
		return err
	}
	s.join(userID)
	metrics.Get().SessionParticipants.Inc()
	return nil
}

// Leave removes userID's cursor state; if the session is now empty it is
// destroyed (broadcast endpoint reports channel-closed to remaining
// readers).
func (r *Registry) Leave(sessionID, userID string) error {
	s, err := r.get(sessionID)
	if err != nil {
		return err
	}
	metrics.Get().SessionParticipants.Dec()
	if empty := s.leave(userID); empty {
		r.destroy(sessionID)
		s.bus.close()
	}
	return nil
}

// UpdateCursor writes a participant's cursor/selection state. Requires
// "write" on the session's project.
func (r *Registry) UpdateCursor(sessionID, userID string, position int, selStart, selEnd *int) error {
	s, err := r.get(sessionID)
	if err != nil {
		return err
	}
	if err := r.checkPermission(userID, s.ProjectID(), "write"); err != nil {
		return err
	}
	return s.updateCursor(userID, position, selStart, selEnd)
}

// Submit applies op inside sessionID, transforming it against concurrent
// server ops first. Returns the new session version. Requires "write" on
// the session's project.
func (r *Registry) Submit(sessionID string, op ot.Operation) (int, error) {
	s, err := r.get(sessionID)
	if err != nil {
		return 0, err
	}
	if err := r.checkPermission(op.Author, s.ProjectID(), "write"); err != nil {
		return 0, err
	}
	version, err := s.submit(op.Author, op)
	if err != nil {
		var conflict *apierr.Conflict
		if errors.As(err, &conflict) {
			metrics.Get().SessionConflictsTotal.Inc()
			metrics.Get().OperationsSubmittedTotal.WithLabelValues("conflict").Inc()
		} else {
			metrics.Get().OperationsSubmittedTotal.WithLabelValues("rejected").Inc()
		}
		return 0, err
	}
	metrics.Get().OperationsSubmittedTotal.WithLabelValues("applied").Inc()

	r.mu.RLock()
	sink := r.checkpoint
	r.mu.RUnlock()
	if sink != nil {
		v, content := s.Checkpoint()
		sink(sessionID, v, content)
	}

	return version, nil
}

// DetectConflicts returns every op in sessionID with version >= observed.
// Requires "read" on the session's project.
func (r *Registry) DetectConflicts(sessionID, userID string, observedVersion int) (ConflictReport, error) {
	s, err := r.get(sessionID)
	if err != nil {
		return ConflictReport{}, err
	}
	if err := r.checkPermission(userID, s.ProjectID(), "read"); err != nil {
		return ConflictReport{}, err
	}
	return s.detectConflicts(observedVersion), nil
}

// Subscribe hands back a subscriber to sessionID's broadcast fan-out, scoped
// to userID so that a user's own submits are never echoed back to it. Late
// subscribers do not see ops published before subscription.
func (r *Registry) Subscribe(sessionID, userID string) (*Subscription, error) {
	s, err := r.get(sessionID)
	if err != nil {
		return nil, err
	}
	return s.bus.subscribe(userID), nil
}

// Close drops a session's state and all subscribers, delivering a closed
// signal to every remaining reader.
func (r *Registry) Close(sessionID string) error {
	s, err := r.get(sessionID)
	if err != nil {
		return err
	}
	r.destroy(sessionID)
	s.bus.close()
	return nil
}

func (r *Registry) destroy(sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()

	if ok {
		s.mu.Lock()
		s.state = StateDestroyed
		s.mu.Unlock()
		metrics.Get().SessionsActive.Dec()
		logging.L().Info("session destroyed", zap.String("session_id", sessionID))
	}
}

// CloseIdleSince closes every session that has zero participants at the
// moment of the call — used by the optional SESSION_IDLE_TIMEOUT_SECS
// sweep. idleSince is not consulted: how long a session has been empty, or
// when it last published, is not tracked, so a session that has never been
// joined is closed by the first sweep after its creation.
func (r *Registry) CloseIdleSince(idleSince time.Duration) int {
	r.mu.RLock()
	candidates := make([]string, 0)
	for id, s := range r.sessions {
		if s.participantCount() == 0 {
			candidates = append(candidates, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range candidates {
		_ = r.Close(id)
	}
	return len(candidates)
}
