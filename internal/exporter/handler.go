package exporter

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"voice-slicer/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

// Recorder persists export history. Implemented by the journal package;
// recording failures are logged, never surfaced to the client.
type Recorder interface {
	Record(sessionID string, forced bool, plan Plan) error
}

// Handler exposes the session and export HTTP endpoints using go-chi.
type Handler struct {
	svc     *Service
	log     *slog.Logger
	metrics *metrics.Metrics
	rec     Recorder
}

// NewHandler returns a Handler over the given Service, Logger, optional
// Metrics, and optional export Recorder. Metrics and rec may be nil.
func NewHandler(svc *Service, log *slog.Logger, m *metrics.Metrics, rec Recorder) *Handler {
	return &Handler{svc: svc, log: log, metrics: m, rec: rec}
}

type createSessionRequest struct {
	SessionID      string  `json:"session_id"`
	SourceFile     string  `json:"source_file"`
	SourceDuration float64 `json:"source_duration"`
	OutputFormat   struct {
		IndexSubDigits   int    `json:"index_sub_digits"`
		FilenameTemplate string `json:"filename_template"`
		Margin           struct {
			Before float64 `json:"before"`
			After  float64 `json:"after"`
		} `json:"margin"`
		MaxTextLength int `json:"max_text_length"`
	} `json:"output_format"`
}

type segmentRequest struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type segmentView struct {
	ID       int64   `json:"id"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Text     string  `json:"text"`
	Change   string  `json:"change"`
	Index    *int    `json:"index,omitempty"`
	IndexSub *int    `json:"index_sub,omitempty"`
	Filename string  `json:"filename,omitempty"`
}

type actionView struct {
	Type        string  `json:"type"`
	ID          int64   `json:"id"`
	Filename    string  `json:"filename"`
	OldFilename string  `json:"old_filename,omitempty"`
	Start       float64 `json:"start,omitempty"`
	End         float64 `json:"end,omitempty"`
	Format      string  `json:"format,omitempty"`
}

type planResponse struct {
	Actions []actionView `json:"actions"`
	Summary struct {
		Created   int `json:"created"`
		Deleted   int `json:"deleted"`
		Renamed   int `json:"renamed"`
		Recreated int `json:"recreated"`
		Skipped   int `json:"skipped"`
	} `json:"summary"`
	TiedSegments []int64 `json:"tied_segments,omitempty"`
}

// CreateSession handles POST /sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid session body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.SessionID == "" || req.SourceFile == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	format := OutputFormat{
		IndexSubDigits:   req.OutputFormat.IndexSubDigits,
		FilenameTemplate: req.OutputFormat.FilenameTemplate,
		Margin:           Margin(req.OutputFormat.Margin),
		MaxTextLength:    req.OutputFormat.MaxTextLength,
	}
	if err := h.svc.CreateSession(SessionID(req.SessionID), req.SourceFile, req.SourceDuration, format); err != nil {
		h.writeError(w, err, "create session", req.SessionID)
		return
	}

	h.log.Info("session created",
		slog.String("session_id", req.SessionID),
		slog.String("source_file", req.SourceFile))
	w.WriteHeader(http.StatusCreated)
}

// GetSegments handles GET /sessions/{session_id}/segments: the reconciled
// view of committed state and edit buffer in timeline order.
func (h *Handler) GetSegments(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if sessionID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	merged, err := h.svc.Segments(SessionID(sessionID))
	if err != nil {
		h.writeError(w, err, "get segments", sessionID)
		return
	}

	views := make([]segmentView, 0, len(merged))
	for _, m := range merged {
		v := segmentView{
			ID:       int64(m.ID),
			Start:    m.Start,
			End:      m.End,
			Text:     m.Text,
			Change:   m.Change.String(),
			Filename: m.Filename,
		}
		if m.Index != nil {
			main := m.Index.Main
			v.Index = &main
			if m.Index.Sub != 0 {
				sub := m.Index.Sub
				v.IndexSub = &sub
			}
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

// AddSegment handles POST /sessions/{session_id}/segments.
// Body: { "start": 1.2, "end": 3.4, "text": "..." }. Returns the durable id.
func (h *Handler) AddSegment(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if sessionID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var req segmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid segment body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	id, err := h.svc.AddSegment(SessionID(sessionID), BufferSegment(req))
	if err != nil {
		h.writeError(w, err, "add segment", sessionID)
		return
	}

	h.log.Debug("segment added",
		slog.String("session_id", sessionID),
		slog.Int64("segment_id", int64(id)))
	writeJSON(w, http.StatusCreated, map[string]int64{"id": int64(id)})
}

// UpdateSegment handles PUT /sessions/{session_id}/segments/{segment_id}.
func (h *Handler) UpdateSegment(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	segID, err := strconv.ParseInt(chi.URLParam(r, "segment_id"), 10, 64)
	if sessionID == "" || err != nil || segID <= 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var req segmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid segment body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.svc.UpdateSegment(SessionID(sessionID), SegmentID(segID), BufferSegment(req)); err != nil {
		h.writeError(w, err, "update segment", sessionID)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// DeleteSegment handles DELETE /sessions/{session_id}/segments/{segment_id}.
// The segment disappears from the buffer; the next export deletes its file.
func (h *Handler) DeleteSegment(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	segID, err := strconv.ParseInt(chi.URLParam(r, "segment_id"), 10, 64)
	if sessionID == "" || err != nil || segID <= 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.svc.RemoveSegment(SessionID(sessionID), SegmentID(segID)); err != nil {
		h.writeError(w, err, "delete segment", sessionID)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ReplaceBuffer handles PUT /sessions/{session_id}/segments with a whole
// edit-buffer document: { "version": 2, "segments": { "<id>": {...} } }.
func (h *Handler) ReplaceBuffer(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if sessionID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	buffer, err := DecodeBuffer(raw)
	if err != nil {
		h.log.Debug("invalid buffer document", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.svc.ReplaceBuffer(SessionID(sessionID), buffer.Segments); err != nil {
		h.writeError(w, err, "replace buffer", sessionID)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// PreviewPlan handles GET /sessions/{session_id}/plan: a dry run of the
// export cycle. ?force=1 previews a force export.
func (h *Handler) PreviewPlan(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if sessionID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	force := parseForce(r)

	plan, err := h.svc.Preview(SessionID(sessionID), force)
	if err != nil {
		h.writeError(w, err, "preview plan", sessionID)
		return
	}
	writeJSON(w, http.StatusOK, planToResponse(plan))
}

// Export handles POST /sessions/{session_id}/export: plans the cycle,
// commits the resulting state, and returns the action list for the audio
// executor. ?force=1 recreates every file regardless of the diff.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if sessionID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	force := parseForce(r)

	plan, err := h.svc.Export(SessionID(sessionID), force)
	if err != nil {
		h.writeError(w, err, "export", sessionID)
		return
	}

	for _, id := range plan.Tied {
		h.log.Warn("ordinal index tied, relative order unstable",
			slog.String("session_id", sessionID),
			slog.Int64("segment_id", int64(id)))
	}

	sum := plan.Summarize()
	h.log.Info("export planned",
		slog.String("session_id", sessionID),
		slog.Bool("force", force),
		slog.Int("created", sum.Created),
		slog.Int("deleted", sum.Deleted),
		slog.Int("renamed", sum.Renamed),
		slog.Int("recreated", sum.Recreated),
		slog.Int("skipped", sum.Skipped))

	if h.metrics != nil {
		h.metrics.IncExports()
		h.metrics.AddActions(sum.Created, sum.Deleted, sum.Renamed, sum.Recreated, sum.Skipped)
		h.metrics.AddIndexTies(len(plan.Tied))
	}
	if h.rec != nil {
		if err := h.rec.Record(sessionID, force, plan); err != nil {
			h.log.Error("journal record failed",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()))
		}
	}

	writeJSON(w, http.StatusOK, planToResponse(plan))
}

func planToResponse(plan Plan) planResponse {
	var resp planResponse
	resp.Actions = make([]actionView, 0, len(plan.Actions))
	for _, a := range plan.Actions {
		resp.Actions = append(resp.Actions, actionView{
			Type:        a.Type.String(),
			ID:          int64(a.ID),
			Filename:    a.Filename,
			OldFilename: a.OldFilename,
			Start:       a.Start,
			End:         a.End,
			Format:      a.Format,
		})
	}
	sum := plan.Summarize()
	resp.Summary.Created = sum.Created
	resp.Summary.Deleted = sum.Deleted
	resp.Summary.Renamed = sum.Renamed
	resp.Summary.Recreated = sum.Recreated
	resp.Summary.Skipped = sum.Skipped
	for _, id := range plan.Tied {
		resp.TiedSegments = append(resp.TiedSegments, int64(id))
	}
	return resp
}

func parseForce(r *http.Request) bool {
	force, err := strconv.ParseBool(r.URL.Query().Get("force"))
	return err == nil && force
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP status codes and logs the rest.
func (h *Handler) writeError(w http.ResponseWriter, err error, stage, sessionID string) {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSegmentNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, ErrSessionExists):
		w.WriteHeader(http.StatusConflict)
	case errors.Is(err, ErrInvalidSegment), errors.Is(err, ErrInvalidSession):
		h.log.Info("request rejected",
			slog.String("stage", stage),
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
	case errors.Is(err, ErrStateInconsistent):
		h.log.Error("committed state inconsistent, refusing to plan",
			slog.String("stage", stage),
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		w.WriteHeader(http.StatusUnprocessableEntity)
	default:
		h.log.Error(stage+" failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
	}
}
