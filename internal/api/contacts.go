package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/MikeSquared-Agency/rosa/internal/contact"
	"github.com/MikeSquared-Agency/rosa/internal/datasource"
	"github.com/MikeSquared-Agency/rosa/internal/session"
)

// EmptyWarning is returned when no contact is left for the active filter.
const EmptyWarning = "no contacts available for download with these filters"

// ContactsResponse is the dashboard view for one filter selection.
type ContactsResponse struct {
	Summary      session.Summary       `json:"summary"`
	Statuses     []string              `json:"statuses"`
	Selected     []string              `json:"selected"`
	StatusCounts []contact.StatusCount `json:"status_counts"`
	Limit        int                   `json:"limit"`
	Contacts     []contact.Record      `json:"contacts"`
	Warning      string                `json:"warning,omitempty"`
}

// view is the per-request recomputation of availability.
type view struct {
	records   []contact.Record
	selected  []string
	available []contact.Record
	limit     int
}

// loadView reads the records and the filter for this request and computes
// availability against the session. On failure it has already written the
// response.
func (s *Server) loadView(w http.ResponseWriter, r *http.Request) (*view, bool) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid form: %v", err))
		return nil, false
	}

	limit := s.deps.DefaultLimit
	if v := r.Form.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v))
			return nil, false
		}
		limit = n
	}

	records, ok := s.loadRecords(w, r)
	if !ok {
		return nil, false
	}

	st := sessionFrom(r.Context())
	selected := r.Form["status"]
	available := st.Available(records, selected)
	return &view{
		records:   records,
		selected:  selected,
		available: available,
		limit:     session.ClampLimit(limit, len(available)),
	}, true
}

// loadRecords converts every load failure into a user-visible message.
func (s *Server) loadRecords(w http.ResponseWriter, r *http.Request) ([]contact.Record, bool) {
	records, err := s.deps.Contacts.Records(r.Context())
	if err != nil {
		s.writeLoadError(w, err)
		return nil, false
	}
	s.deps.Metrics.RecordsLoaded.Set(float64(len(records)))
	return records, true
}

func (s *Server) writeLoadError(w http.ResponseWriter, err error) {
	if errors.Is(err, datasource.ErrSourceMissing) {
		s.deps.Metrics.LoadErrorsTotal.WithLabelValues("missing").Inc()
		s.logger.Error("data source missing", "error", err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.deps.Metrics.LoadErrorsTotal.WithLabelValues("load").Inc()
	s.logger.Error("failed to load contacts", "error", err)
	writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load contacts: %v", err))
}

// listContacts handles GET /api/v1/contacts
func (s *Server) listContacts(w http.ResponseWriter, r *http.Request) {
	v, ok := s.loadView(w, r)
	if !ok {
		return
	}
	st := sessionFrom(r.Context())

	resp := ContactsResponse{
		Summary:      session.Summarize(len(v.records), len(v.available), st.Downloaded()),
		Statuses:     contact.Statuses(v.records),
		Selected:     v.selected,
		StatusCounts: contact.StatusCounts(v.available),
		Limit:        v.limit,
		Contacts:     v.available[:v.limit],
	}
	if len(v.available) == 0 {
		resp.Warning = EmptyWarning
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusChart handles GET /api/v1/charts/status
func (s *Server) statusChart(w http.ResponseWriter, r *http.Request) {
	v, ok := s.loadView(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"buckets": contact.StatusCounts(v.available),
	})
}

// callsChart handles GET /api/v1/charts/calls
func (s *Server) callsChart(w http.ResponseWriter, r *http.Request) {
	v, ok := s.loadView(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"buckets": contact.CallHistogram(v.available),
	})
}

// stats handles GET /api/v1/stats
func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := s.deps.Source.Statistics(ctx)
	if err != nil {
		s.writeLoadError(w, err)
		return
	}
	dups, err := s.deps.Source.Duplicates(ctx)
	if err != nil {
		s.writeLoadError(w, err)
		return
	}
	cols, err := s.deps.Source.Columns(ctx)
	if err != nil {
		s.writeLoadError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"statistics": st,
		"duplicates": dups,
		"columns":    cols,
	})
}
