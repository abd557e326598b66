package exporter

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Store is the persistence abstraction for session state. Implementations
// can be in-memory or file-based; the Repository uses Store for all reads
// and writes, so callers never depend on which backend is active.
type Store interface {
	GetSession(id SessionID) (*SessionState, bool, error)
	SetSession(s *SessionState) error
	ListSessionIDs() ([]SessionID, error)
}

// InMemoryStore keeps session state in a map. It is not safe for concurrent
// use on its own; the Repository serializes access.
type InMemoryStore struct {
	sessions map[SessionID]*SessionState
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[SessionID]*SessionState)}
}

func (s *InMemoryStore) GetSession(id SessionID) (*SessionState, bool, error) {
	st, ok := s.sessions[id]
	return st, ok, nil
}

func (s *InMemoryStore) SetSession(st *SessionState) error {
	s.sessions[st.ID] = st
	return nil
}

func (s *InMemoryStore) ListSessionIDs() ([]SessionID, error) {
	ids := make([]SessionID, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

// Document filenames inside a session directory.
const (
	committedFileName = "transcript.json"
	bufferFileName    = "edit_segments.json"
)

// FileStore persists each session as a directory holding the committed
// document (transcript.json) and, while edits are pending, the edit-buffer
// document (edit_segments.json). A successful commit removes the buffer
// file, which is how a retired edit buffer looks on disk.
type FileStore struct {
	root string
}

// NewFileStore returns a store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &FileStore{root: dir}, nil
}

func (s *FileStore) sessionDir(id SessionID) string {
	return filepath.Join(s.root, string(id))
}

func (s *FileStore) GetSession(id SessionID) (*SessionState, bool, error) {
	dir := s.sessionDir(id)

	raw, err := os.ReadFile(filepath.Join(dir, committedFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", committedFileName, err)
	}
	committed, err := DecodeCommitted(raw)
	if err != nil {
		return nil, false, fmt.Errorf("session %s: %w", id, err)
	}

	// No buffer file means a retired buffer (nil segment map).
	buffer := EditBuffer{Version: SchemaVersion}
	raw, err = os.ReadFile(filepath.Join(dir, bufferFileName))
	if err == nil {
		buffer, err = DecodeBuffer(raw)
		if err != nil {
			return nil, false, fmt.Errorf("session %s: %w", id, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, false, fmt.Errorf("read %s: %w", bufferFileName, err)
	}

	return &SessionState{ID: id, Committed: committed, Buffer: buffer}, true, nil
}

func (s *FileStore) SetSession(st *SessionState) error {
	dir := s.sessionDir(st.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	raw, err := EncodeCommitted(st.Committed)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, committedFileName), raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", committedFileName, err)
	}

	bufPath := filepath.Join(dir, bufferFileName)
	if st.Buffer.Segments == nil {
		if err := os.Remove(bufPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", bufferFileName, err)
		}
		return nil
	}
	raw, err = EncodeBuffer(st.Buffer)
	if err != nil {
		return err
	}
	if err := os.WriteFile(bufPath, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", bufferFileName, err)
	}
	return nil
}

func (s *FileStore) ListSessionIDs() ([]SessionID, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list store root: %w", err)
	}
	var ids []SessionID
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, SessionID(e.Name()))
		}
	}
	return ids, nil
}

// Persisted document shapes. Segment maps are keyed by the decimal durable
// id; index_sub is null when the sub-index is absent or zero. Filenames are
// derived, never stored.

type committedDoc struct {
	Version        int                            `json:"version"`
	SourceFile     string                         `json:"source_file"`
	SourceDuration float64                        `json:"source_duration,omitempty"`
	OutputFormat   outputFormatDoc                `json:"output_format"`
	Segments       map[string]committedSegmentDoc `json:"segments"`
}

type outputFormatDoc struct {
	IndexDigits      int       `json:"index_digits"`
	IndexSubDigits   int       `json:"index_sub_digits"`
	FilenameTemplate string    `json:"filename_template"`
	Margin           marginDoc `json:"margin"`
	MaxTextLength    int       `json:"max_text_length,omitempty"`
}

type marginDoc struct {
	Before float64 `json:"before"`
	After  float64 `json:"after"`
}

type committedSegmentDoc struct {
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Text     string  `json:"text"`
	Index    *int    `json:"index"`
	IndexSub *int    `json:"index_sub"`
}

type bufferDoc struct {
	Version  int                         `json:"version"`
	Segments map[string]bufferSegmentDoc `json:"segments"`
}

type bufferSegmentDoc struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// EncodeCommitted renders committed state as its persisted JSON document.
func EncodeCommitted(c CommittedState) ([]byte, error) {
	doc := committedDoc{
		Version:        SchemaVersion,
		SourceFile:     c.SourceFile,
		SourceDuration: c.SourceDuration,
		OutputFormat: outputFormatDoc{
			IndexDigits:      c.OutputFormat.IndexDigits,
			IndexSubDigits:   c.OutputFormat.IndexSubDigits,
			FilenameTemplate: c.OutputFormat.FilenameTemplate,
			Margin:           marginDoc(c.OutputFormat.Margin),
			MaxTextLength:    c.OutputFormat.MaxTextLength,
		},
		Segments: make(map[string]committedSegmentDoc, len(c.Segments)),
	}
	for id, seg := range c.Segments {
		if seg.Index == nil {
			return nil, fmt.Errorf("%w: segment %d has no ordinal index", ErrStateInconsistent, id)
		}
		d := committedSegmentDoc{Start: seg.Start, End: seg.End, Text: seg.Text}
		main := seg.Index.Main
		d.Index = &main
		if seg.Index.Sub != 0 {
			sub := seg.Index.Sub
			d.IndexSub = &sub
		}
		doc.Segments[strconv.FormatInt(int64(id), 10)] = d
	}
	return json.MarshalIndent(doc, "", "  ")
}

// DecodeCommitted parses a committed document and rederives each segment's
// filename from its index, text, and the document's output format.
func DecodeCommitted(raw []byte) (CommittedState, error) {
	var doc committedDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return CommittedState{}, fmt.Errorf("parse committed document: %w", err)
	}
	c := CommittedState{
		Version:        doc.Version,
		SourceFile:     doc.SourceFile,
		SourceDuration: doc.SourceDuration,
		OutputFormat: OutputFormat{
			IndexDigits:      doc.OutputFormat.IndexDigits,
			IndexSubDigits:   doc.OutputFormat.IndexSubDigits,
			FilenameTemplate: doc.OutputFormat.FilenameTemplate,
			Margin:           Margin(doc.OutputFormat.Margin),
			MaxTextLength:    doc.OutputFormat.MaxTextLength,
		},
		Segments: make(map[SegmentID]Segment, len(doc.Segments)),
	}
	ext := SourceExt(doc.SourceFile)
	for key, d := range doc.Segments {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return CommittedState{}, fmt.Errorf("parse committed document: bad segment id %q", key)
		}
		if d.Index == nil {
			return CommittedState{}, fmt.Errorf("%w: segment %s has no ordinal index", ErrStateInconsistent, key)
		}
		idx := Index{Main: *d.Index}
		if d.IndexSub != nil {
			idx.Sub = *d.IndexSub
		}
		c.Segments[SegmentID(id)] = Segment{
			ID:       SegmentID(id),
			Start:    d.Start,
			End:      d.End,
			Text:     d.Text,
			Index:    &idx,
			Filename: BuildFilename(idx, d.Text, c.OutputFormat, ext),
		}
	}
	return c, nil
}

// EncodeBuffer renders an edit buffer as its persisted JSON document.
func EncodeBuffer(b EditBuffer) ([]byte, error) {
	doc := bufferDoc{
		Version:  SchemaVersion,
		Segments: make(map[string]bufferSegmentDoc, len(b.Segments)),
	}
	for id, seg := range b.Segments {
		doc.Segments[strconv.FormatInt(int64(id), 10)] = bufferSegmentDoc(seg)
	}
	return json.MarshalIndent(doc, "", "  ")
}

// DecodeBuffer parses an edit-buffer document.
func DecodeBuffer(raw []byte) (EditBuffer, error) {
	var doc bufferDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return EditBuffer{}, fmt.Errorf("parse buffer document: %w", err)
	}
	b := EditBuffer{
		Version:  doc.Version,
		Segments: make(map[SegmentID]BufferSegment, len(doc.Segments)),
	}
	for key, d := range doc.Segments {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return EditBuffer{}, fmt.Errorf("parse buffer document: bad segment id %q", key)
		}
		b.Segments[SegmentID(id)] = BufferSegment(d)
	}
	return b, nil
}
