// Package session implements the per-document collaboration state machine:
// participants, cursors, the operation log, and the broadcast fan-out that
// delivers newly applied operations to live subscribers.
package session

import (
	"sync"
	"time"

	"github.com/collabforge/core/internal/apierr"
	"github.com/collabforge/core/internal/ot"
)

// State is the lifecycle stage of a Session.
type State int

const (
	StateCreated State = iota
	StateActive
	StateDestroyed
)

// Cursor is a participant's live cursor/selection state.
type Cursor struct {
	Position        int
	SelectionStart  *int
	SelectionEnd    *int
	UpdatedAt       time.Time
}

// ConflictReport is the set of server operations a client must reconcile
// against after a rejected submit.
type ConflictReport struct {
	SessionID             string
	ConflictingOperations []ot.Operation
	DetectedAt            time.Time
}

// Session is the in-memory coordination unit for one (projectID, fileID)
// document under live editing. Fields are guarded by mu; submit and
// update_cursor take mu for their respective critical sections per the
// concurrency contract (submit holds it for the full select→transform→
// append→publish sequence, update_cursor only for the cursor write).
type Session struct {
	mu sync.Mutex

	id        string
	projectID string
	fileID    string
	state     State

	content      string
	version      int
	operations   []ot.Operation
	participants map[string]*Cursor

	bus *broadcaster
}

func newSession(id, projectID, fileID string, bufferSize int) *Session {
	return &Session{
		id:           id,
		projectID:    projectID,
		fileID:       fileID,
		state:        StateCreated,
		participants: make(map[string]*Cursor),
		bus:          newBroadcaster(bufferSize),
	}
}

func (s *Session) ID() string        { return s.id }
func (s *Session) ProjectID() string { return s.projectID }
func (s *Session) FileID() string    { return s.fileID }

// join adds user to the session, transitioning Created -> Active on first
// join. Idempotent per user.
func (s *Session) join(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateCreated {
		s.state = StateActive
	}
	if _, ok := s.participants[userID]; !ok {
		s.participants[userID] = &Cursor{UpdatedAt: time.Now()}
	}
}

// leave removes user's cursor state. Authorship in the op log is untouched.
// Returns true if the session is now empty (caller should destroy it).
func (s *Session) leave(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.participants, userID)
	return len(s.participants) == 0
}

// updateCursor writes a participant's cursor/selection, holding mu only for
// the field write as the concurrency contract requires.
func (s *Session) updateCursor(userID string, position int, selStart, selEnd *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return &apierr.NotFound{Kind: "session", ID: s.id}
	}
	cur, ok := s.participants[userID]
	if !ok {
		return &apierr.NotInSession{SessionID: s.id, UserID: userID}
	}
	cur.Position = position
	cur.SelectionStart = selStart
	cur.SelectionEnd = selEnd
	cur.UpdatedAt = time.Now()
	return nil
}

// submit implements the submit algorithm: select every concurrent op
// (version >= op.Version && author != op.Author), transform, assign the new
// version, append, publish. The full critical section runs under mu,
// producing a global order of operations within the session.
func (s *Session) submit(userID string, op ot.Operation) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return 0, &apierr.NotFound{Kind: "session", ID: s.id}
	}
	if _, ok := s.participants[userID]; !ok {
		return 0, &apierr.NotInSession{SessionID: s.id, UserID: userID}
	}

	if err := ot.Validate(op, len([]rune(s.content))); err != nil {
		return 0, err
	}

	var concurrent []ot.Operation
	for _, prior := range s.operations {
		if prior.Version >= op.Version && prior.Author != op.Author {
			concurrent = append(concurrent, prior)
		}
	}

	transformed, err := ot.Transform(op, concurrent)
	if err != nil {
		return 0, err
	}

	transformed.Version = s.version + 1
	s.content = ot.Apply(s.content, transformed)
	s.operations = append(s.operations, transformed)
	s.version = transformed.Version

	s.bus.publish(userID, transformed)

	return s.version, nil
}

// detectConflicts is a pure read: every op whose version >= observedVersion.
func (s *Session) detectConflicts(observedVersion int) ConflictReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tail []ot.Operation
	for _, op := range s.operations {
		if op.Version >= observedVersion {
			tail = append(tail, op)
		}
	}
	return ConflictReport{SessionID: s.id, ConflictingOperations: tail, DetectedAt: time.Now()}
}

func (s *Session) version_() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Checkpoint returns a (version, content) snapshot, the optional persistence
// hook this module allows in place of durable op-log storage.
func (s *Session) Checkpoint() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version, s.content
}

func (s *Session) participantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.participants)
}
