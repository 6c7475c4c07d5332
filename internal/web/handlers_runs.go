package web

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := s.service.Progress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, progress)
}

// handleProgressStream sends progress as Server-Sent Events until the run
// finishes. Event IDs are the processed row count, so a reconnecting client
// that sends Last-Event-ID only receives newer updates.
func (s *Server) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, r, fmt.Errorf("streaming not supported"))
		return
	}

	updates, unsubscribe, err := s.service.Subscribe(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer unsubscribe()

	lastID := -1
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			lastID = n
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case p, open := <-updates:
			if !open {
				return
			}
			event := "progress"
			if p.Phase.Done() {
				event = "complete"
			} else if p.Processed <= lastID {
				continue
			}
			lastID = p.Processed

			data, err := json.Marshal(p)
			if err != nil {
				return
			}
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", p.Processed, event, data)
			flusher.Flush()
			if event == "complete" {
				return
			}
		}
	}
}

// handleResult returns the finished run. With ?wait=true it blocks until the
// run is done or the client goes away; otherwise a running import is a 409.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))

	lookup := s.service.Lookup
	if wait {
		lookup = s.service.Result
	}
	rec, err := lookup(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, rec)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.service.Cancel(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, map[string]string{"run_id": id, "status": "cancelling"})
}

// handleFailedRows downloads the rows a run rejected, in the format of the
// original file.
func (s *Server) handleFailedRows(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.FailedRows(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", report.Format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.FileName))
	if err := report.WriteTo(w); err != nil {
		// Headers are gone; all that is left is to log.
		respondErrorLate(r, err)
	}
}
