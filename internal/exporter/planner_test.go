package exporter

import (
	"errors"
	"testing"
)

func testFormat() OutputFormat {
	return OutputFormat{
		IndexDigits:      3,
		IndexSubDigits:   3,
		FilenameTemplate: DefaultTemplate,
		Margin:           Margin{Before: 0.1, After: 0.2},
	}
}

func testCommitted(segs ...Segment) CommittedState {
	c := CommittedState{
		Version:        SchemaVersion,
		SourceFile:     "source.mp3",
		SourceDuration: 100,
		OutputFormat:   testFormat(),
		Segments:       make(map[SegmentID]Segment, len(segs)),
	}
	for _, s := range segs {
		c.Segments[s.ID] = s
	}
	return c
}

func actionFor(t *testing.T, plan Plan, id SegmentID) Action {
	t.Helper()
	for _, a := range plan.Actions {
		if a.ID == id {
			return a
		}
	}
	t.Fatalf("no action for segment %d in %v", id, plan.Actions)
	return Action{}
}

func TestBuildPlan_insert_between_exported_neighbors(t *testing.T) {
	committed := testCommitted(
		committedSegment(1, 1, 0, 0, 1, "A", "001_A.mp3"),
		committedSegment(2, 2, 0, 2, 3, "B", "002_B.mp3"),
	)
	buffer := map[SegmentID]BufferSegment{
		1: {Start: 0, End: 1, Text: "A"},
		2: {Start: 2, End: 3, Text: "B"},
		3: {Start: 1.2, End: 1.8, Text: "C"},
	}

	plan, err := BuildPlan(Merge(committed.Segments, buffer), committed, false)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}

	a := actionFor(t, plan, 3)
	if a.Type != ActionCreate {
		t.Errorf("expected create for new segment, got %s", a.Type)
	}
	if a.Filename != "001-500_C.mp3" {
		t.Errorf("expected midpoint filename 001-500_C.mp3, got %q", a.Filename)
	}
	if a.Format != "mp3" {
		t.Errorf("expected encoder format mp3, got %q", a.Format)
	}

	if got := actionFor(t, plan, 1).Type; got != ActionNone {
		t.Errorf("segment 1 should be a no-op, got %s", got)
	}
	if got := actionFor(t, plan, 2).Type; got != ActionNone {
		t.Errorf("segment 2 should be a no-op, got %s", got)
	}

	seg := plan.State.Segments[3]
	if seg.Index == nil || *seg.Index != (Index{Main: 1, Sub: 500}) {
		t.Errorf("expected committed index (1,500), got %v", seg.Index)
	}
	if seg.Filename != "001-500_C.mp3" {
		t.Errorf("expected committed filename, got %q", seg.Filename)
	}
}

func TestBuildPlan_margins_clipped_to_media_bounds(t *testing.T) {
	committed := testCommitted()
	committed.SourceDuration = 10
	buffer := map[SegmentID]BufferSegment{
		1: {Start: 0.05, End: 9.95, Text: "A"},
	}

	plan, err := BuildPlan(Merge(committed.Segments, buffer), committed, false)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	a := actionFor(t, plan, 1)
	if a.Start != 0 {
		t.Errorf("start should clip to 0, got %f", a.Start)
	}
	if a.End != 10 {
		t.Errorf("end should clip to media duration, got %f", a.End)
	}
}

func TestBuildPlan_removed_emits_delete_first(t *testing.T) {
	committed := testCommitted(
		committedSegment(1, 1, 0, 0, 1, "A", "001_A.mp3"),
		committedSegment(2, 2, 0, 2, 3, "B", "002_B.mp3"),
	)
	buffer := map[SegmentID]BufferSegment{
		1: {Start: 0, End: 1, Text: "A"},
	}

	plan, err := BuildPlan(Merge(committed.Segments, buffer), committed, false)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}

	var deletes []Action
	for _, a := range plan.Actions {
		if a.Type == ActionDelete {
			deletes = append(deletes, a)
		}
	}
	if len(deletes) != 1 || deletes[0].Filename != "002_B.mp3" {
		t.Fatalf("expected exactly one delete of 002_B.mp3, got %v", deletes)
	}
	if plan.Actions[0].Type != ActionDelete {
		t.Errorf("deletes must come first, got %s", plan.Actions[0].Type)
	}
	for _, a := range plan.Actions {
		if a.ID == 2 && a.Type != ActionDelete {
			t.Errorf("no non-delete action may reference the removed segment: %v", a)
		}
	}
	if _, ok := plan.State.Segments[2]; ok {
		t.Error("removed segment must not survive into committed state")
	}
}

func TestBuildPlan_text_edit_is_rename(t *testing.T) {
	committed := testCommitted(
		committedSegment(1, 1, 0, 0, 1, "A", "001_A.mp3"),
	)
	buffer := map[SegmentID]BufferSegment{
		1: {Start: 0, End: 1, Text: "A2"},
	}

	plan, err := BuildPlan(Merge(committed.Segments, buffer), committed, false)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	a := actionFor(t, plan, 1)
	if a.Type != ActionRename {
		t.Fatalf("expected rename for text-only edit, got %s", a.Type)
	}
	if a.OldFilename != "001_A.mp3" || a.Filename != "001_A2.mp3" {
		t.Errorf("expected 001_A.mp3 -> 001_A2.mp3, got %q -> %q", a.OldFilename, a.Filename)
	}
}

func TestBuildPlan_time_edit_is_recreate(t *testing.T) {
	committed := testCommitted(
		committedSegment(1, 1, 0, 0, 1, "A", "001_A.mp3"),
	)
	buffer := map[SegmentID]BufferSegment{
		1: {Start: 0.5, End: 1.5, Text: "A"},
	}

	plan, err := BuildPlan(Merge(committed.Segments, buffer), committed, false)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	a := actionFor(t, plan, 1)
	if a.Type != ActionRecreate {
		t.Fatalf("expected recreate for moved boundary, got %s", a.Type)
	}
	if a.Filename != "001_A.mp3" || a.OldFilename != "001_A.mp3" {
		t.Errorf("text unchanged: filename must stay 001_A.mp3, got %q (old %q)", a.Filename, a.OldFilename)
	}
	seg := plan.State.Segments[1]
	if *seg.Index != (Index{Main: 1}) {
		t.Errorf("ordinal index must never change on re-export, got %v", seg.Index)
	}
}

func TestBuildPlan_idempotent_second_cycle_all_noops(t *testing.T) {
	committed := testCommitted(
		committedSegment(1, 1, 0, 0, 1, "A", "001_A.mp3"),
	)
	buffer := map[SegmentID]BufferSegment{
		1: {Start: 0, End: 1, Text: "A"},
		2: {Start: 2, End: 3, Text: "B"},
	}

	first, err := BuildPlan(Merge(committed.Segments, buffer), committed, false)
	if err != nil {
		t.Fatalf("first BuildPlan: %v", err)
	}

	// Second cycle over the committed state the first one produced.
	second, err := BuildPlan(Merge(first.State.Segments, buffer), first.State, false)
	if err != nil {
		t.Fatalf("second BuildPlan: %v", err)
	}
	for _, a := range second.Actions {
		if a.Type != ActionNone {
			t.Errorf("second cycle should be all no-ops, got %s for segment %d", a.Type, a.ID)
		}
	}
}

func TestBuildPlan_existing_keys_stable_across_other_edits(t *testing.T) {
	committed := testCommitted(
		committedSegment(1, 1, 0, 0, 1, "A", "001_A.mp3"),
		committedSegment(2, 2, 0, 2, 3, "B", "002_B.mp3"),
		committedSegment(3, 3, 0, 4, 5, "C", "003_C.mp3"),
	)
	// Remove one segment, add two others around the survivors.
	buffer := map[SegmentID]BufferSegment{
		1: {Start: 0, End: 1, Text: "A"},
		3: {Start: 4, End: 5, Text: "C"},
		4: {Start: 1.1, End: 1.9, Text: "new"},
		5: {Start: 6, End: 7, Text: "tail"},
	}

	plan, err := BuildPlan(Merge(committed.Segments, buffer), committed, false)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if got := *plan.State.Segments[1].Index; got != (Index{Main: 1}) {
		t.Errorf("segment 1 index churned to %v", got)
	}
	if got := *plan.State.Segments[3].Index; got != (Index{Main: 3}) {
		t.Errorf("segment 3 index churned to %v", got)
	}
	if got := plan.State.Segments[3].Filename; got != "003_C.mp3" {
		t.Errorf("unrelated filename churned to %q", got)
	}
	// The tail insertion takes the next free main slot.
	if got := *plan.State.Segments[5].Index; got != (Index{Main: 4}) {
		t.Errorf("expected (4,0) for tail segment, got %v", got)
	}
}

func TestBuildPlan_force_recreates_everything_without_renumbering(t *testing.T) {
	committed := testCommitted(
		committedSegment(1, 1, 0, 0, 1, "A", "001_A.mp3"),
		committedSegment(2, 2, 0, 2, 3, "B", "002_B.mp3"),
		committedSegment(3, 3, 0, 4, 5, "C", "003_C.mp3"),
	)
	buffer := map[SegmentID]BufferSegment{
		1: {Start: 0, End: 1, Text: "A"},
		2: {Start: 2, End: 3, Text: "B"},
		3: {Start: 4, End: 5, Text: "C"},
	}

	plan, err := BuildPlan(Merge(committed.Segments, buffer), committed, true)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(plan.Actions) != 3 {
		t.Fatalf("expected 3 actions, got %d", len(plan.Actions))
	}
	for _, a := range plan.Actions {
		if a.Type != ActionRecreate && a.Type != ActionCreate {
			t.Errorf("force export must recreate, got %s for segment %d", a.Type, a.ID)
		}
	}
	for id, seg := range plan.State.Segments {
		if *seg.Index != *committed.Segments[id].Index {
			t.Errorf("force export renumbered segment %d to %v", id, seg.Index)
		}
	}
}

func TestBuildPlan_first_export_assigns_sequential_mains(t *testing.T) {
	committed := testCommitted()
	committed.OutputFormat.IndexDigits = 0 // not fixed yet
	buffer := map[SegmentID]BufferSegment{
		1: {Start: 0, End: 1, Text: "one"},
		2: {Start: 2, End: 3, Text: "two"},
		3: {Start: 4, End: 5, Text: "three"},
	}

	plan, err := BuildPlan(Merge(committed.Segments, buffer), committed, false)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if plan.State.OutputFormat.IndexDigits != 3 {
		t.Errorf("digit width should fix at 3, got %d", plan.State.OutputFormat.IndexDigits)
	}
	for i, id := range []SegmentID{1, 2, 3} {
		if got := *plan.State.Segments[id].Index; got != (Index{Main: i + 1}) {
			t.Errorf("segment %d: expected (%d,0), got %v", id, i+1, got)
		}
	}
	if got := plan.State.Segments[1].Filename; got != "001_one.mp3" {
		t.Errorf("expected 001_one.mp3, got %q", got)
	}
}

func TestBuildPlan_digit_width_never_widens(t *testing.T) {
	committed := testCommitted(
		committedSegment(1, 1, 0, 0, 1, "A", "001_A.mp3"),
	)
	buffer := map[SegmentID]BufferSegment{
		1: {Start: 0, End: 1, Text: "A"},
		2: {Start: 2, End: 3, Text: "B"},
	}
	plan, err := BuildPlan(Merge(committed.Segments, buffer), committed, false)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if plan.State.OutputFormat.IndexDigits != 3 {
		t.Errorf("digit width must stay 3 once fixed, got %d", plan.State.OutputFormat.IndexDigits)
	}
}

func TestBuildPlan_batched_insertions_share_allocation(t *testing.T) {
	committed := testCommitted(
		committedSegment(1, 1, 0, 0, 1, "A", "001_A.mp3"),
		committedSegment(2, 2, 0, 10, 11, "B", "002_B.mp3"),
	)
	buffer := map[SegmentID]BufferSegment{
		1: {Start: 0, End: 1, Text: "A"},
		2: {Start: 10, End: 11, Text: "B"},
		3: {Start: 2, End: 3, Text: "x"},
		4: {Start: 4, End: 5, Text: "y"},
		5: {Start: 6, End: 7, Text: "z"},
	}

	plan, err := BuildPlan(Merge(committed.Segments, buffer), committed, false)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	want := map[SegmentID]Index{
		3: {Main: 1, Sub: 250},
		4: {Main: 1, Sub: 500},
		5: {Main: 1, Sub: 750},
	}
	for id, w := range want {
		if got := *plan.State.Segments[id].Index; got != w {
			t.Errorf("segment %d: expected %v, got %v", id, w, got)
		}
	}
}

func TestBuildPlan_tied_indices_reported_not_fatal(t *testing.T) {
	committed := testCommitted(
		committedSegment(1, 1, 500, 0, 1, "A", "001-500_A.mp3"),
		committedSegment(2, 1, 501, 2, 3, "B", "001-501_B.mp3"),
	)
	buffer := map[SegmentID]BufferSegment{
		1: {Start: 0, End: 1, Text: "A"},
		2: {Start: 2, End: 3, Text: "B"},
		3: {Start: 1.2, End: 1.8, Text: "wedged"},
	}

	plan, err := BuildPlan(Merge(committed.Segments, buffer), committed, false)
	if err != nil {
		t.Fatalf("tied allocation must not fail: %v", err)
	}
	if len(plan.Tied) != 1 || plan.Tied[0] != 3 {
		t.Errorf("expected segment 3 reported tied, got %v", plan.Tied)
	}
	if got := *plan.State.Segments[3].Index; got != (Index{Main: 1, Sub: 500}) {
		t.Errorf("expected boundary index (1,500), got %v", got)
	}
}

func TestBuildPlan_inconsistent_state_refused(t *testing.T) {
	committed := testCommitted()
	committed.Segments[1] = Segment{
		ID: 1, Start: 0, End: 1, Text: "A",
		Index: &Index{Main: 1}, // filename missing
	}
	buffer := map[SegmentID]BufferSegment{1: {Start: 0, End: 1, Text: "A"}}

	_, err := BuildPlan(Merge(committed.Segments, buffer), committed, false)
	if !errors.Is(err, ErrStateInconsistent) {
		t.Errorf("expected ErrStateInconsistent, got %v", err)
	}
}

func TestPlanSummarize(t *testing.T) {
	plan := Plan{Actions: []Action{
		{Type: ActionCreate},
		{Type: ActionCreate},
		{Type: ActionDelete},
		{Type: ActionRename},
		{Type: ActionRecreate},
		{Type: ActionNone},
	}}
	sum := plan.Summarize()
	if sum.Created != 2 || sum.Deleted != 1 || sum.Renamed != 1 || sum.Recreated != 1 || sum.Skipped != 1 {
		t.Errorf("unexpected summary: %+v", sum)
	}
}
