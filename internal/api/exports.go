package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/MikeSquared-Agency/rosa/internal/contact"
	"github.com/MikeSquared-Agency/rosa/internal/hermes"
	"github.com/MikeSquared-Agency/rosa/internal/session"
)

// PreviewResponse describes the page an export would produce.
type PreviewResponse struct {
	Filename string           `json:"filename"`
	Count    int              `json:"count"`
	Contacts []contact.Record `json:"contacts"`
	Warning  string           `json:"warning,omitempty"`
}

// HistoryResponse lists the session's committed exports.
type HistoryResponse struct {
	Entries    []session.HistoryEntry `json:"entries"`
	Downloaded int                    `json:"downloaded"`
}

// previewExport handles GET /api/v1/export/preview. It never changes the
// session.
func (s *Server) previewExport(w http.ResponseWriter, r *http.Request) {
	v, ok := s.loadView(w, r)
	if !ok {
		return
	}
	resp := PreviewResponse{Filename: s.deps.ExportFilename, Contacts: []contact.Record{}}
	if len(v.available) == 0 {
		resp.Warning = EmptyWarning
		writeJSON(w, http.StatusOK, resp)
		return
	}

	exp := sessionFrom(r.Context()).Export(v.available, v.selected, v.limit)
	resp.Count = len(exp.Page)
	resp.Contacts = exp.Page
	writeJSON(w, http.StatusOK, resp)
}

// export handles POST /api/v1/export. The CSV is rendered in full before
// anything is sent; the page is committed to the session only after the
// body has been written without error.
func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	v, ok := s.loadView(w, r)
	if !ok {
		return
	}
	st := sessionFrom(r.Context())

	if len(v.available) == 0 {
		s.deps.Metrics.ExportsEmptyTotal.Inc()
		s.logger.Warn("nothing to export", "session_id", st.ID, "statuses", v.selected)
		writeJSON(w, http.StatusOK, map[string]string{"warning": EmptyWarning})
		return
	}

	exp := st.Export(v.available, v.selected, v.limit)

	var buf bytes.Buffer
	if err := contact.WriteCSV(&buf, exp.Page); err != nil {
		s.logger.Error("failed to render export", "session_id", st.ID, "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("render export: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", s.deps.ExportFilename))
	w.Header().Set("X-Export-Count", strconv.Itoa(len(exp.Page)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Warn("export download interrupted, not recorded", "session_id", st.ID, "error", err)
		return
	}

	entry, err := exp.Commit()
	if err != nil {
		s.logger.Error("failed to commit export", "session_id", st.ID, "error", err)
		return
	}

	s.deps.Metrics.ExportsTotal.Inc()
	s.deps.Metrics.ContactsExportedTotal.Add(float64(entry.Count))
	s.logger.Info("contacts exported",
		"session_id", st.ID,
		"export_id", entry.ID,
		"count", entry.Count,
		"statuses", entry.Statuses,
	)
	hermes.Notify(s.deps.Events, s.logger, hermes.SubjectExportCommitted, hermes.ExportCommitted{
		SessionID: st.ID.String(),
		ExportID:  entry.ID.String(),
		Statuses:  entry.Statuses,
		Count:     entry.Count,
		Timestamp: entry.Timestamp,
	})
}

// history handles GET /api/v1/history
func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	st := sessionFrom(r.Context())
	writeJSON(w, http.StatusOK, HistoryResponse{
		Entries:    st.History(),
		Downloaded: st.Downloaded(),
	})
}

// resetSession handles POST /api/v1/session/reset
func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	st := sessionFrom(r.Context())
	st.Reset()

	s.deps.Metrics.ResetsTotal.Inc()
	s.logger.Info("download history reset", "session_id", st.ID)
	hermes.Notify(s.deps.Events, s.logger, hermes.SubjectSessionReset, hermes.SessionReset{
		SessionID: st.ID.String(),
		Policy:    string(s.deps.Sessions.Policy()),
		Timestamp: time.Now().UTC(),
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// endSession handles DELETE /api/v1/session
func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	st := sessionFrom(r.Context())
	s.deps.Sessions.Drop(st.ID)
	s.deps.Metrics.SessionsActive.Set(float64(s.deps.Sessions.Len()))
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
	s.logger.Info("session ended", "session_id", st.ID)
	w.WriteHeader(http.StatusNoContent)
}

// runIngest handles POST /api/v1/ingest
func (s *Server) runIngest(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Ingest(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("ingest failed: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}
