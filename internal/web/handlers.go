package web

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/source"
)

// ImporterResponse describes an importer and its fields.
type ImporterResponse struct {
	core.Importer
	Fields []core.FieldInfo `json:"fields"`
}

// SheetsResponse lists the sheets of an uploaded workbook.
type SheetsResponse struct {
	Format source.Format            `json:"format"`
	Sheets []source.SheetDescriptor `json:"sheets"`
}

// StartResponse is returned when a run has been accepted.
type StartResponse struct {
	RunID string `json:"run_id"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":  "ok",
		"imports": s.service.LimiterStatus(),
	})
}

func (s *Server) handleListImporters(w http.ResponseWriter, r *http.Request) {
	importers := s.service.Importers()
	out := make([]ImporterResponse, len(importers))
	for i, imp := range importers {
		out[i] = ImporterResponse{Importer: imp, Fields: imp.Fields()}
	}
	writeJSON(w, out)
}

func (s *Server) handleGetImporter(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	imp, ok := core.Get(key)
	if !ok {
		respondError(w, r, fmt.Errorf("%w: %s", core.ErrUnknownImporter, key))
		return
	}
	writeJSON(w, ImporterResponse{Importer: imp, Fields: imp.Fields()})
}

// readUpload parses the multipart body and returns the "file" part.
// The caller closes the file.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	maxSize := s.cfg.Import.MaxUploadSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, fmt.Errorf("%w: limit is %d bytes", errFileTooLarge, maxSize)
		}
		return nil, nil, fmt.Errorf("%w: %v", errNoFile, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, errNoFile
	}
	return file, header, nil
}

func (s *Server) handleListSheets(w http.ResponseWriter, r *http.Request) {
	file, header, err := s.readUpload(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer file.Close()

	format, sheets, err := s.service.ListSheets(r.Context(), header.Filename, file, 0)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if sheets == nil {
		sheets = []source.SheetDescriptor{}
	}
	writeJSON(w, SheetsResponse{Format: format, Sheets: sheets})
}

// handleImport spools the upload and starts a run. The run outlives the
// request; clients follow it through /api/runs/{id}.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	file, header, err := s.readUpload(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer file.Close()

	opts, err := parseImportOptions(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	ctx := core.ContextWithClientIP(r.Context(), clientIP(r))
	runID, err := s.service.StartImport(ctx, key, header.Filename, file, opts)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/runs/"+runID)
	writeJSONStatus(w, http.StatusAccepted, StartResponse{RunID: runID})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	file, header, err := s.readUpload(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer file.Close()

	opts, err := parseImportOptions(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	limit := s.cfg.Import.PreviewRows
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < limit {
			limit = n
		}
	}

	preview, err := s.service.Preview(r.Context(), key, header.Filename, file, opts, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, preview)
}
