package exporter

import "math"

// Change classifies one segment after reconciling committed state against
// the edit buffer.
type Change int

const (
	ChangeUnchanged Change = iota
	ChangeModified
	ChangeAdded
	ChangeRemoved
)

func (c Change) String() string {
	switch c {
	case ChangeUnchanged:
		return "unchanged"
	case ChangeModified:
		return "modified"
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// timeEpsilon absorbs float round-trips through JSON when comparing
// timestamps; text is compared exactly.
const timeEpsilon = 0.001

// MergedSegment is one entry of the reconciled view. Segment holds the
// fields the planner should act on: buffer content for added/modified,
// committed content for unchanged/removed, with the committed index and
// filename preserved on everything that was exported before. Prev is the
// committed snapshot (nil for added entries), kept so the planner can tell
// time changes from text changes and recover the old filename.
type MergedSegment struct {
	Segment
	Change Change
	Prev   *Segment
}

// Merge reconciles the two views into one id-keyed classification. Every
// durable id present in either input appears exactly once:
//
//   - in committed only  -> removed (committed fields retained)
//   - in buffer only     -> added
//   - in both, any of start/end/text differing by value -> modified,
//     buffer content with the committed index and filename carried over
//   - in both, equal by value -> unchanged
//
// The diff is by value, not key presence: a buffer that re-states a
// segment's committed content verbatim is a no-op, not a rewrite.
func Merge(committed map[SegmentID]Segment, buffer map[SegmentID]BufferSegment) map[SegmentID]MergedSegment {
	merged := make(map[SegmentID]MergedSegment, len(committed)+len(buffer))

	for id, prev := range committed {
		prev := prev
		buf, ok := buffer[id]
		if !ok {
			merged[id] = MergedSegment{Segment: prev, Change: ChangeRemoved, Prev: &prev}
			continue
		}
		if sameContent(prev, buf) {
			merged[id] = MergedSegment{Segment: prev, Change: ChangeUnchanged, Prev: &prev}
			continue
		}
		seg := prev
		seg.Start = buf.Start
		seg.End = buf.End
		seg.Text = buf.Text
		merged[id] = MergedSegment{Segment: seg, Change: ChangeModified, Prev: &prev}
	}

	for id, buf := range buffer {
		if _, ok := committed[id]; ok {
			continue
		}
		merged[id] = MergedSegment{
			Segment: Segment{ID: id, Start: buf.Start, End: buf.End, Text: buf.Text},
			Change:  ChangeAdded,
		}
	}

	return merged
}

func sameContent(prev Segment, buf BufferSegment) bool {
	return math.Abs(prev.Start-buf.Start) <= timeEpsilon &&
		math.Abs(prev.End-buf.End) <= timeEpsilon &&
		prev.Text == buf.Text
}

// timeChanged reports whether the reconciled start/end moved relative to
// the committed snapshot.
func (m MergedSegment) timeChanged() bool {
	if m.Prev == nil {
		return true
	}
	return math.Abs(m.Start-m.Prev.Start) > timeEpsilon ||
		math.Abs(m.End-m.Prev.End) > timeEpsilon
}
