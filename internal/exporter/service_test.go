package exporter

import (
	"errors"
	"testing"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	repo := NewRepository()
	if err := repo.CreateSession("s1", "source.mp3", 100, OutputFormat{}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return NewService(repo)
}

func seedSegments(t *testing.T, svc *Service, segs ...BufferSegment) []SegmentID {
	t.Helper()
	ids := make([]SegmentID, 0, len(segs))
	for _, seg := range segs {
		id, err := svc.AddSegment("s1", seg)
		if err != nil {
			t.Fatalf("AddSegment: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestService_first_export_cycle(t *testing.T) {
	svc := newTestService(t)
	seedSegments(t, svc,
		BufferSegment{Start: 0, End: 1, Text: "one"},
		BufferSegment{Start: 2, End: 3, Text: "two"},
	)

	plan, err := svc.Export("s1", false)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	sum := plan.Summarize()
	if sum.Created != 2 || sum.Deleted != 0 || sum.Skipped != 0 {
		t.Errorf("first export should create everything: %+v", sum)
	}
	if plan.State.Segments[1].Filename != "001_one.mp3" {
		t.Errorf("expected 001_one.mp3, got %q", plan.State.Segments[1].Filename)
	}
}

func TestService_export_twice_is_idempotent(t *testing.T) {
	svc := newTestService(t)
	seedSegments(t, svc,
		BufferSegment{Start: 0, End: 1, Text: "one"},
		BufferSegment{Start: 2, End: 3, Text: "two"},
	)

	if _, err := svc.Export("s1", false); err != nil {
		t.Fatalf("first Export: %v", err)
	}
	plan, err := svc.Export("s1", false)
	if err != nil {
		t.Fatalf("second Export: %v", err)
	}
	sum := plan.Summarize()
	if sum.Skipped != 2 || sum.Created != 0 || sum.Deleted != 0 || sum.Renamed != 0 || sum.Recreated != 0 {
		t.Errorf("second export should be all no-ops: %+v", sum)
	}
}

func TestService_edit_then_export(t *testing.T) {
	svc := newTestService(t)
	ids := seedSegments(t, svc,
		BufferSegment{Start: 0, End: 1, Text: "one"},
		BufferSegment{Start: 2, End: 3, Text: "two"},
	)
	if _, err := svc.Export("s1", false); err != nil {
		t.Fatalf("Export: %v", err)
	}

	// Move one boundary, delete the other segment, insert a new one between.
	if err := svc.UpdateSegment("s1", ids[0], BufferSegment{Start: 0, End: 1.4, Text: "one"}); err != nil {
		t.Fatalf("UpdateSegment: %v", err)
	}
	if err := svc.RemoveSegment("s1", ids[1]); err != nil {
		t.Fatalf("RemoveSegment: %v", err)
	}
	if _, err := svc.AddSegment("s1", BufferSegment{Start: 1.6, End: 1.9, Text: "wedge"}); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}

	plan, err := svc.Export("s1", false)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	sum := plan.Summarize()
	if sum.Recreated != 1 || sum.Deleted != 1 || sum.Created != 1 {
		t.Errorf("expected 1 recreate, 1 delete, 1 create: %+v", sum)
	}
	if len(plan.State.Segments) != 2 {
		t.Errorf("expected 2 surviving segments, got %d", len(plan.State.Segments))
	}
}

func TestService_preview_does_not_commit(t *testing.T) {
	svc := newTestService(t)
	seedSegments(t, svc, BufferSegment{Start: 0, End: 1, Text: "one"})

	if _, err := svc.Preview("s1", false); err != nil {
		t.Fatalf("Preview: %v", err)
	}
	// Still a fresh session: the next export creates, not skips.
	plan, err := svc.Export("s1", false)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if plan.Summarize().Created != 1 {
		t.Errorf("preview must not commit state: %+v", plan.Summarize())
	}
}

func TestService_force_export(t *testing.T) {
	svc := newTestService(t)
	seedSegments(t, svc,
		BufferSegment{Start: 0, End: 1, Text: "one"},
		BufferSegment{Start: 2, End: 3, Text: "two"},
		BufferSegment{Start: 4, End: 5, Text: "three"},
	)
	if _, err := svc.Export("s1", false); err != nil {
		t.Fatalf("Export: %v", err)
	}

	plan, err := svc.Export("s1", true)
	if err != nil {
		t.Fatalf("force Export: %v", err)
	}
	sum := plan.Summarize()
	if sum.Skipped != 0 || sum.Recreated != 3 {
		t.Errorf("force export should recreate all 3: %+v", sum)
	}
}

func TestService_Segments_ordered_view(t *testing.T) {
	svc := newTestService(t)
	seedSegments(t, svc,
		BufferSegment{Start: 2, End: 3, Text: "two"},
		BufferSegment{Start: 0, End: 1, Text: "one"},
	)

	merged, err := svc.Segments("s1")
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if len(merged) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(merged))
	}
	if merged[0].Text != "one" || merged[1].Text != "two" {
		t.Errorf("expected timeline order, got %q then %q", merged[0].Text, merged[1].Text)
	}
	for _, m := range merged {
		if m.Change != ChangeAdded {
			t.Errorf("fresh segments should be added, got %s", m.Change)
		}
	}
}

func TestService_inconsistent_committed_state(t *testing.T) {
	repo := NewRepository()
	if err := repo.CreateSession("s1", "source.mp3", 100, OutputFormat{}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	bad := testCommitted()
	bad.Segments[1] = Segment{ID: 1, Start: 0, End: 1, Text: "A", Index: &Index{Main: 1}}
	if err := repo.Commit("s1", bad); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	svc := NewService(repo)
	if _, err := svc.Preview("s1", false); !errors.Is(err, ErrStateInconsistent) {
		t.Errorf("expected ErrStateInconsistent, got %v", err)
	}
}

func TestService_unknown_session(t *testing.T) {
	svc := NewService(NewRepository())
	if _, err := svc.Export("missing", false); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}
