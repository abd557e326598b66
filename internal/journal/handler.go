package journal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type entryView struct {
	ID        int64   `json:"id"`
	SessionID string  `json:"session_id"`
	Forced    bool    `json:"forced"`
	Created   int     `json:"created"`
	Deleted   int     `json:"deleted"`
	Renamed   int     `json:"renamed"`
	Recreated int     `json:"recreated"`
	Skipped   int     `json:"skipped"`
	TiedKeys  int     `json:"tied_keys"`
	CreatedAt float64 `json:"created_at"`
}

// HistoryHandler serves GET /sessions/{session_id}/history: the most recent
// export cycles for a session, newest first. ?limit=n caps the result.
func (j *Journal) HistoryHandler(log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "session_id")
		if sessionID == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		entries, err := j.Recent(sessionID, limit)
		if err != nil {
			log.Error("query export history failed",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		views := make([]entryView, 0, len(entries))
		for _, e := range entries {
			views = append(views, entryView{
				ID:        e.ID,
				SessionID: e.SessionID,
				Forced:    e.Forced,
				Created:   e.Created,
				Deleted:   e.Deleted,
				Renamed:   e.Renamed,
				Recreated: e.Recreated,
				Skipped:   e.Skipped,
				TiedKeys:  e.TiedKeys,
				CreatedAt: float64(e.CreatedAt.UnixNano()) / 1e9,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(views)
	}
}
