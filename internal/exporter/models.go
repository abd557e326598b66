package exporter

import (
	"errors"
	"fmt"
	"math"
)

// SessionID uniquely identifies an editing session (one source audio file).
type SessionID string

// SegmentID is the durable identifier of a segment. IDs are assigned once
// and never reused, so gaps left by deletions are permanent.
type SegmentID int64

// Index is the ordinal key that fixes a segment's position in filename sort
// order. Sub 0 and an omitted sub-index are equivalent.
type Index struct {
	Main int
	Sub  int
}

// Compare returns -1, 0, or +1 ordering by Main first, then Sub.
func (i Index) Compare(o Index) int {
	switch {
	case i.Main < o.Main:
		return -1
	case i.Main > o.Main:
		return 1
	case i.Sub < o.Sub:
		return -1
	case i.Sub > o.Sub:
		return 1
	}
	return 0
}

// Less reports whether i sorts strictly before o.
func (i Index) Less(o Index) bool {
	return i.Compare(o) < 0
}

// Segment is one spoken line. Index and Filename are set together at the
// segment's first export and never change afterward; a segment that has one
// without the other is corrupt.
type Segment struct {
	ID       SegmentID
	Start    float64
	End      float64
	Text     string
	Index    *Index
	Filename string
}

// BufferSegment carries only the user-editable content fields. The edit
// buffer never holds an ordinal index.
type BufferSegment struct {
	Start float64
	End   float64
	Text  string
}

// Margin is the padding applied around a segment when its audio is cut.
type Margin struct {
	Before float64
	After  float64
}

// OutputFormat is the export configuration carried in committed state.
type OutputFormat struct {
	// IndexDigits is fixed at the first export (minimum 3) and never
	// widened afterward, even if later insertions overflow it.
	IndexDigits    int
	IndexSubDigits int
	// FilenameTemplate supports {index} and {basename}.
	FilenameTemplate string
	Margin           Margin
	// MaxTextLength truncates the sanitized text part; 0 means no limit.
	MaxTextLength int
}

// CommittedState is the durable snapshot of the last successful export.
type CommittedState struct {
	Version    int
	SourceFile string
	// SourceDuration in seconds; 0 when unknown (clip upper bound skipped).
	SourceDuration float64
	OutputFormat   OutputFormat
	Segments       map[SegmentID]Segment
}

// EditBuffer is the user's working set. An id present in committed state but
// absent here means the segment was removed. A nil Segments map is a retired
// buffer (no pending edits at all, the state right after a successful
// export); an empty non-nil map means every segment was removed.
type EditBuffer struct {
	Version  int
	Segments map[SegmentID]BufferSegment
}

// SessionState bundles everything the repository tracks for one session.
type SessionState struct {
	ID        SessionID
	Committed CommittedState
	Buffer    EditBuffer
}

// SchemaVersion is the version written into persisted documents.
const SchemaVersion = 2

// Defaults applied by CreateSession when the caller leaves fields zero.
const (
	DefaultSubDigits    = 3
	DefaultMarginBefore = 0.1
	DefaultMarginAfter  = 0.2
	DefaultTemplate     = "{index}_{basename}"
)

var (
	// ErrInvalidSegment reports a malformed segment (start >= end or a
	// non-finite timestamp). Such segments are rejected at the mutation
	// boundary and never reach the reconciler.
	ErrInvalidSegment = errors.New("invalid segment")

	// ErrStateInconsistent reports a committed segment with an ordinal
	// index but no filename, or vice versa. The session document must be
	// repaired before any further planning.
	ErrStateInconsistent = errors.New("committed state inconsistent")
)

// Validate checks a buffer segment's content fields.
func (b BufferSegment) Validate() error {
	if math.IsNaN(b.Start) || math.IsInf(b.Start, 0) ||
		math.IsNaN(b.End) || math.IsInf(b.End, 0) {
		return fmt.Errorf("%w: non-finite timestamp", ErrInvalidSegment)
	}
	if b.Start >= b.End {
		return fmt.Errorf("%w: start %.3f >= end %.3f", ErrInvalidSegment, b.Start, b.End)
	}
	return nil
}

// Validate checks the index/filename pairing invariant on every committed
// segment. A violation is fatal for the document, never patched.
func (c CommittedState) Validate() error {
	for id, seg := range c.Segments {
		if seg.Index == nil {
			return fmt.Errorf("%w: segment %d has no ordinal index", ErrStateInconsistent, id)
		}
		if seg.Filename == "" {
			return fmt.Errorf("%w: segment %d has index %d-%d but no filename",
				ErrStateInconsistent, id, seg.Index.Main, seg.Index.Sub)
		}
	}
	return nil
}

// withDefaults fills zero-value configuration fields.
func (f OutputFormat) withDefaults() OutputFormat {
	if f.IndexSubDigits <= 0 {
		f.IndexSubDigits = DefaultSubDigits
	}
	if f.FilenameTemplate == "" {
		f.FilenameTemplate = DefaultTemplate
	}
	if f.Margin.Before == 0 && f.Margin.After == 0 {
		f.Margin = Margin{Before: DefaultMarginBefore, After: DefaultMarginAfter}
	}
	return f
}

// clone returns a deep copy so callers can hand out snapshots without
// exposing internal maps.
func (c CommittedState) clone() CommittedState {
	out := c
	out.Segments = make(map[SegmentID]Segment, len(c.Segments))
	for id, seg := range c.Segments {
		if seg.Index != nil {
			idx := *seg.Index
			seg.Index = &idx
		}
		out.Segments[id] = seg
	}
	return out
}

func (b EditBuffer) clone() EditBuffer {
	if b.Segments == nil {
		return b
	}
	out := b
	out.Segments = make(map[SegmentID]BufferSegment, len(b.Segments))
	for id, seg := range b.Segments {
		out.Segments[id] = seg
	}
	return out
}
