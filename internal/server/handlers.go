package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/quotio/usage-observer/internal/evidence"
	"github.com/quotio/usage-observer/internal/focus"
	"github.com/quotio/usage-observer/internal/management"
	"github.com/quotio/usage-observer/internal/record"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	connected := false
	if s.deps.Stream != nil {
		connected = s.deps.Stream.IsConnected()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"stream_connected": connected,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.deps.Requests.Stats()
	connected := false
	if s.deps.Stream != nil {
		connected = s.deps.Stream.IsConnected()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":            stats,
		"stream_connected": connected,
	})
}

// requestView is a request record enriched with its correlation, when any.
type requestView struct {
	record.Request
	Evidence *evidence.Record        `json:"evidence,omitempty"`
	Account  *management.AuthAccount `json:"account,omitempty"`
}

func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	cr := s.criteriaFromQuery(r)
	filtered := record.FilterRequests(s.deps.Requests.Items(), cr, s.deps.Engine)

	views := make([]requestView, 0, len(filtered))
	for _, req := range filtered {
		v := requestView{Request: req}
		if s.deps.Engine != nil {
			c := s.deps.Engine.Resolve(req)
			v.Evidence = c.Evidence
			v.Account = c.Account
		}
		views = append(views, v)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"requests": views,
		"total":    len(views),
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	cr := s.criteriaFromQuery(r)
	filtered := record.FilterLogs(s.deps.Logs.Items(), cr, s.deps.Engine)
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":  filtered,
		"total": len(filtered),
	})
}

func (s *Server) handleGetFocus(w http.ResponseWriter, r *http.Request) {
	f, ok := s.deps.Focus.Current()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"focus": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"focus": f})
}

func (s *Server) handleSetFocus(w http.ResponseWriter, r *http.Request) {
	var f focus.Filter
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeError(w, http.StatusBadRequest, "invalid focus payload")
		return
	}
	if f.IsZero() {
		writeError(w, http.StatusBadRequest, "focus carries no matchable field")
		return
	}
	s.deps.Focus.Set(f)
	writeJSON(w, http.StatusOK, map[string]any{"focus": f})
}

func (s *Server) handleClearFocus(w http.ResponseWriter, r *http.Request) {
	s.deps.Focus.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Transfer == nil {
		writeError(w, http.StatusServiceUnavailable, "export unavailable")
		return
	}
	data, err := s.deps.Transfer.ExportUsage(r.Context())
	if err != nil {
		s.logger.Error("usage export failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "export failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="usage-export.json"`)
	w.Write(data)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Transfer == nil {
		writeError(w, http.StatusServiceUnavailable, "import unavailable")
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read import payload")
		return
	}
	if err := s.deps.Transfer.ImportUsage(r.Context(), data); err != nil {
		s.logger.Error("usage import failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "import failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// criteriaFromQuery maps query parameters onto filter criteria. The focus
// stage engages only when the observability feature is enabled and a focus
// is currently set; the focus=off parameter lets a view opt out.
func (s *Server) criteriaFromQuery(r *http.Request) record.Criteria {
	q := r.URL.Query()
	cr := record.Criteria{
		Provider:     q.Get("provider"),
		Source:       q.Get("source"),
		Status:       record.StatusClass(q.Get("status")),
		FallbackOnly: q.Get("fallback_only") == "true",
		Search:       q.Get("q"),
		Level:        q.Get("level"),
	}
	if s.deps.FocusEnabled && q.Get("focus") != "off" {
		if f, ok := s.deps.Focus.Current(); ok {
			cr.Focus = &f
			cr.FocusEnabled = true
		}
	}
	return cr
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
