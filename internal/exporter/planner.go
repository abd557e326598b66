package exporter

import "sort"

// ActionType enumerates the filesystem actions an export plan can emit.
type ActionType int

const (
	ActionNone ActionType = iota
	ActionCreate
	ActionDelete
	ActionRename
	ActionRecreate
)

func (a ActionType) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionCreate:
		return "create"
	case ActionDelete:
		return "delete"
	case ActionRename:
		return "rename"
	case ActionRecreate:
		return "recreate"
	default:
		return "unknown"
	}
}

// Action is one filesystem operation for the audio executor. Actions must be
// applied in emitted order and are individually safe to repeat:
//
//	create:   cut (Start, End) from the source and write Filename,
//	          overwriting any existing file
//	delete:   remove Filename if present
//	rename:   move OldFilename to Filename if the source still exists
//	recreate: delete OldFilename if present and different from Filename,
//	          then create Filename as above
//	none:     nothing to do
//
// Start and End are already margin-adjusted and clipped to the media bounds;
// Format is the encoder format name for the source container.
type Action struct {
	Type        ActionType
	ID          SegmentID
	Filename    string
	OldFilename string
	Start       float64
	End         float64
	Format      string
}

// Plan is the outcome of one export cycle: the ordered action list, the next
// committed snapshot to persist, and the ids whose ordinal allocation
// exhausted sub-index precision (tied keys, reported as warnings).
type Plan struct {
	Actions []Action
	State   CommittedState
	Tied    []SegmentID
}

// Summary counts actions by type.
type Summary struct {
	Created   int
	Deleted   int
	Renamed   int
	Recreated int
	Skipped   int
}

// Summarize tallies the plan's actions.
func (p Plan) Summarize() Summary {
	var s Summary
	for _, a := range p.Actions {
		switch a.Type {
		case ActionCreate:
			s.Created++
		case ActionDelete:
			s.Deleted++
		case ActionRename:
			s.Renamed++
		case ActionRecreate:
			s.Recreated++
		case ActionNone:
			s.Skipped++
		}
	}
	return s
}

// BuildPlan turns a reconciled view into an ordered action list plus the
// next committed state. prior supplies the export configuration and media
// reference; force pushes every surviving segment through the
// create/recreate path regardless of the diff result (ordinal indices still
// never change).
//
// Deletes for removed segments come first so a freed filename can be reused
// by a later create or rename in the same plan. Survivors are walked in
// timeline order (start ascending, id ascending on ties); contiguous runs
// of never-exported segments are allocated indices in one batch between
// their nearest keyed neighbors in that walk.
func BuildPlan(merged map[SegmentID]MergedSegment, prior CommittedState, force bool) (Plan, error) {
	if err := prior.Validate(); err != nil {
		return Plan{}, err
	}
	cfg := prior.OutputFormat.withDefaults()

	var removed, survivors []MergedSegment
	for _, m := range merged {
		if m.Change == ChangeRemoved {
			removed = append(removed, m)
		} else {
			survivors = append(survivors, m)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].ID < removed[j].ID })
	sort.Slice(survivors, func(i, j int) bool {
		if survivors[i].Start != survivors[j].Start {
			return survivors[i].Start < survivors[j].Start
		}
		return survivors[i].ID < survivors[j].ID
	})

	// The main digit width is fixed once, at the first export.
	if cfg.IndexDigits == 0 {
		cfg.IndexDigits = IndexDigits(len(survivors))
	}

	var tied []SegmentID
	for i := 0; i < len(survivors); {
		if survivors[i].Index != nil {
			i++
			continue
		}
		j := i
		for j < len(survivors) && survivors[j].Index == nil {
			j++
		}
		var prev, next *Index
		if i > 0 {
			prev = survivors[i-1].Index
		}
		if j < len(survivors) {
			next = survivors[j].Index
		}
		indices, exhausted := AllocateIndices(prev, next, j-i, cfg.IndexSubDigits)
		for k, idx := range indices {
			idx := idx
			survivors[i+k].Index = &idx
		}
		if exhausted {
			for k := i; k < j; k++ {
				tied = append(tied, survivors[k].ID)
			}
		}
		i = j
	}

	ext := SourceExt(prior.SourceFile)
	enc := EncodeFormat(ext)

	actions := make([]Action, 0, len(merged))
	for _, m := range removed {
		actions = append(actions, Action{Type: ActionDelete, ID: m.ID, Filename: m.Filename})
	}

	state := CommittedState{
		Version:        SchemaVersion,
		SourceFile:     prior.SourceFile,
		SourceDuration: prior.SourceDuration,
		OutputFormat:   cfg,
		Segments:       make(map[SegmentID]Segment, len(survivors)),
	}

	for _, m := range survivors {
		name := BuildFilename(*m.Index, m.Text, cfg, ext)

		start := m.Start - cfg.Margin.Before
		if start < 0 {
			start = 0
		}
		end := m.End + cfg.Margin.After
		if prior.SourceDuration > 0 && end > prior.SourceDuration {
			end = prior.SourceDuration
		}

		a := Action{ID: m.ID, Filename: name, Start: start, End: end, Format: enc}
		switch {
		case force && m.Prev != nil:
			a.Type = ActionRecreate
			a.OldFilename = m.Prev.Filename
		case force || m.Change == ChangeAdded:
			a.Type = ActionCreate
		case m.Change == ChangeModified && m.timeChanged():
			a.Type = ActionRecreate
			a.OldFilename = m.Prev.Filename
		case name != m.Prev.Filename:
			// Text edit or template drift with the cut unchanged: the
			// audio on disk is still valid, only its name moved.
			a.Type = ActionRename
			a.OldFilename = m.Prev.Filename
			a.Start, a.End, a.Format = 0, 0, ""
		default:
			a.Type = ActionNone
			a.Start, a.End, a.Format = 0, 0, ""
		}
		actions = append(actions, a)

		seg := m.Segment
		seg.Filename = name
		state.Segments[m.ID] = seg
	}

	return Plan{Actions: actions, State: state, Tied: tied}, nil
}
