package exporter

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Repository defines the concurrency-safe contract for session state: the
// committed snapshot, the edit buffer, and durable-id allocation. All edit
// operations mutate the buffer only; Commit is the single writer of
// committed state.
type Repository interface {
	// CreateSession registers a new editing session for a source media
	// file. Zero-value format fields take documented defaults.
	CreateSession(id SessionID, sourceFile string, sourceDuration float64, format OutputFormat) error

	// Snapshot returns deep copies of the session's committed state and
	// edit buffer, safe to hand to the reconciler.
	Snapshot(id SessionID) (CommittedState, EditBuffer, error)

	// UpsertSegment validates and writes one buffer segment. A zero segID
	// allocates a fresh durable id (max existing id + 1) and returns it.
	UpsertSegment(id SessionID, segID SegmentID, seg BufferSegment) (SegmentID, error)

	// RemoveSegment drops a segment from the buffer. Removing an id known
	// only to committed state is a no-op (it is already absent, which is
	// what "removed" means); an id known to neither side is an error.
	RemoveSegment(id SessionID, segID SegmentID) error

	// ReplaceBuffer swaps in a whole edit-buffer document.
	ReplaceBuffer(id SessionID, segments map[SegmentID]BufferSegment) error

	// Commit installs the committed state produced by an export plan and
	// retires the edit buffer.
	Commit(id SessionID, state CommittedState) error

	// SessionCount returns the number of known sessions. Used for metrics.
	SessionCount() int
}

var (
	// ErrSessionNotFound is returned for operations on an unknown session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned when creating a session whose id is taken.
	ErrSessionExists = errors.New("session already exists")

	// ErrInvalidSession is returned for session ids unusable as directory names.
	ErrInvalidSession = errors.New("invalid session id")

	// ErrSegmentNotFound is returned when a segment id is known to neither
	// the committed state nor the edit buffer.
	ErrSegmentNotFound = errors.New("segment not found")
)

// SessionRepository is a concurrency-safe Repository over a Store.
type SessionRepository struct {
	mu    sync.RWMutex
	store Store
}

// NewRepository constructs a repository with an in-memory store.
func NewRepository() *SessionRepository {
	return NewRepositoryWithStore(NewInMemoryStore())
}

// NewRepositoryWithStore constructs a repository over the given Store,
// e.g. a FileStore for durable sessions or an InMemoryStore in tests.
func NewRepositoryWithStore(store Store) *SessionRepository {
	return &SessionRepository{store: store}
}

func validSessionID(id SessionID) bool {
	s := string(id)
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`)
}

// CreateSession implements Repository.CreateSession.
func (r *SessionRepository) CreateSession(id SessionID, sourceFile string, sourceDuration float64, format OutputFormat) error {
	if !validSessionID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidSession, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok, err := r.store.GetSession(id); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: %s", ErrSessionExists, id)
	}

	return r.store.SetSession(&SessionState{
		ID: id,
		Committed: CommittedState{
			Version:        SchemaVersion,
			SourceFile:     sourceFile,
			SourceDuration: sourceDuration,
			OutputFormat:   format.withDefaults(),
			Segments:       map[SegmentID]Segment{},
		},
		Buffer: EditBuffer{Version: SchemaVersion},
	})
}

// Snapshot implements Repository.Snapshot.
func (r *SessionRepository) Snapshot(id SessionID) (CommittedState, EditBuffer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok, err := r.store.GetSession(id)
	if err != nil {
		return CommittedState{}, EditBuffer{}, err
	}
	if !ok {
		return CommittedState{}, EditBuffer{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return st.Committed.clone(), st.Buffer.clone(), nil
}

// UpsertSegment implements Repository.UpsertSegment.
func (r *SessionRepository) UpsertSegment(id SessionID, segID SegmentID, seg BufferSegment) (SegmentID, error) {
	if err := seg.Validate(); err != nil {
		return 0, fmt.Errorf("segment %d: %w", segID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok, err := r.store.GetSession(id)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	materializeBuffer(st)
	if segID == 0 {
		segID = nextSegmentID(st)
	}
	st.Buffer.Segments[segID] = seg
	if err := r.store.SetSession(st); err != nil {
		return 0, err
	}
	return segID, nil
}

// RemoveSegment implements Repository.RemoveSegment.
func (r *SessionRepository) RemoveSegment(id SessionID, segID SegmentID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok, err := r.store.GetSession(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	materializeBuffer(st)
	_, inBuffer := st.Buffer.Segments[segID]
	_, inCommitted := st.Committed.Segments[segID]
	if !inBuffer && !inCommitted {
		return fmt.Errorf("%w: %d", ErrSegmentNotFound, segID)
	}
	delete(st.Buffer.Segments, segID)
	return r.store.SetSession(st)
}

// ReplaceBuffer implements Repository.ReplaceBuffer.
func (r *SessionRepository) ReplaceBuffer(id SessionID, segments map[SegmentID]BufferSegment) error {
	for segID, seg := range segments {
		if err := seg.Validate(); err != nil {
			return fmt.Errorf("segment %d: %w", segID, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok, err := r.store.GetSession(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	st.Buffer.Segments = make(map[SegmentID]BufferSegment, len(segments))
	for segID, seg := range segments {
		st.Buffer.Segments[segID] = seg
	}
	return r.store.SetSession(st)
}

// Commit implements Repository.Commit.
func (r *SessionRepository) Commit(id SessionID, state CommittedState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok, err := r.store.GetSession(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	// A nil buffer is the retired state: no pending edits.
	st.Committed = state.clone()
	st.Buffer = EditBuffer{Version: SchemaVersion}
	return r.store.SetSession(st)
}

// SessionCount implements Repository.SessionCount.
func (r *SessionRepository) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, err := r.store.ListSessionIDs()
	if err != nil {
		return 0
	}
	return len(ids)
}

// materializeBuffer turns a retired (nil) buffer into a full snapshot of the
// committed content so that a single edit does not make every other segment
// look removed on the next reconcile.
func materializeBuffer(st *SessionState) {
	if st.Buffer.Segments != nil {
		return
	}
	st.Buffer.Segments = make(map[SegmentID]BufferSegment, len(st.Committed.Segments))
	for id, seg := range st.Committed.Segments {
		st.Buffer.Segments[id] = BufferSegment{Start: seg.Start, End: seg.End, Text: seg.Text}
	}
}

// nextSegmentID allocates a durable id: one past the maximum id present in
// either view. Ids freed by deletion are never handed out again.
func nextSegmentID(st *SessionState) SegmentID {
	var max SegmentID
	for id := range st.Committed.Segments {
		if id > max {
			max = id
		}
	}
	for id := range st.Buffer.Segments {
		if id > max {
			max = id
		}
	}
	return max + 1
}
