package exporter

import "sort"

// Service runs the export cycle: snapshot the session, reconcile committed
// state against the edit buffer, plan filesystem actions, and (for Export)
// install the resulting committed state. Planning itself is pure; the
// emitted actions are executed by the external audio collaborator.
type Service struct {
	repo Repository
}

// NewService returns a Service over the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateSession registers a new editing session.
func (s *Service) CreateSession(id SessionID, sourceFile string, sourceDuration float64, format OutputFormat) error {
	return s.repo.CreateSession(id, sourceFile, sourceDuration, format)
}

// AddSegment inserts a new buffer segment and returns its durable id.
func (s *Service) AddSegment(id SessionID, seg BufferSegment) (SegmentID, error) {
	return s.repo.UpsertSegment(id, 0, seg)
}

// UpdateSegment overwrites one buffer segment's content fields.
func (s *Service) UpdateSegment(id SessionID, segID SegmentID, seg BufferSegment) error {
	_, err := s.repo.UpsertSegment(id, segID, seg)
	return err
}

// RemoveSegment drops a segment from the edit buffer.
func (s *Service) RemoveSegment(id SessionID, segID SegmentID) error {
	return s.repo.RemoveSegment(id, segID)
}

// ReplaceBuffer swaps in a whole edit-buffer document.
func (s *Service) ReplaceBuffer(id SessionID, segments map[SegmentID]BufferSegment) error {
	return s.repo.ReplaceBuffer(id, segments)
}

// Segments returns the reconciled view in timeline order (start ascending,
// id ascending on ties), removed entries included so a client can show what
// the next export will delete.
func (s *Service) Segments(id SessionID) ([]MergedSegment, error) {
	committed, buffer, err := s.repo.Snapshot(id)
	if err != nil {
		return nil, err
	}
	merged := Merge(committed.Segments, effectiveBuffer(committed, buffer))
	out := make([]MergedSegment, 0, len(merged))
	for _, m := range merged {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Preview computes the export plan without changing any state. Running
// Preview twice on an untouched session yields the same plan.
func (s *Service) Preview(id SessionID, force bool) (Plan, error) {
	committed, buffer, err := s.repo.Snapshot(id)
	if err != nil {
		return Plan{}, err
	}
	merged := Merge(committed.Segments, effectiveBuffer(committed, buffer))
	return BuildPlan(merged, committed, force)
}

// effectiveBuffer resolves a retired (nil) buffer to a full snapshot of the
// committed content: no buffer document means no pending edits, not "delete
// everything". An explicitly empty buffer still means every segment was
// removed.
func effectiveBuffer(committed CommittedState, buffer EditBuffer) map[SegmentID]BufferSegment {
	if buffer.Segments != nil {
		return buffer.Segments
	}
	segs := make(map[SegmentID]BufferSegment, len(committed.Segments))
	for id, seg := range committed.Segments {
		segs[id] = BufferSegment{Start: seg.Start, End: seg.End, Text: seg.Text}
	}
	return segs
}

// Export computes the plan and commits its resulting state, retiring the
// edit buffer. The returned actions are handed to the audio executor; they
// are individually idempotent, so a rerun after a partial application is
// safe.
func (s *Service) Export(id SessionID, force bool) (Plan, error) {
	plan, err := s.Preview(id, force)
	if err != nil {
		return Plan{}, err
	}
	if err := s.repo.Commit(id, plan.State); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

// SessionCount reports the number of known sessions.
func (s *Service) SessionCount() int {
	return s.repo.SessionCount()
}
