package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/refimport/internal/ingest"
	"github.com/JonMunkholm/refimport/internal/schools"
	"github.com/JonMunkholm/refimport/internal/source"
)

// errNotChunkUpload rejects requests without the chunk marker header.
var errNotChunkUpload = errors.New("chunk uploads must set X-Chunk-Upload: true")

// errNoFile is returned when the preview form has no file part.
var errNoFile = errors.New("no file provided")

// handleChunkUpload validates and stores one chunk of schools.
func (s *Server) handleChunkUpload(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Chunk-Upload") != "true" {
		s.respondError(w, r, errNotChunkUpload, http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)

	var payload schools.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, source.ErrFileTooLarge, http.StatusRequestEntityTooLarge)
			return
		}
		s.logger.Debug("chunk body not decoded", "error", err)
		s.respondError(w, r, schools.ErrInvalidChunk, http.StatusBadRequest)
		return
	}
	if len(payload.Records) == 0 {
		s.respondError(w, r, schools.ErrInvalidChunk, http.StatusBadRequest)
		return
	}

	if err := s.limiter.Acquire(r.Context()); err != nil {
		if errors.Is(err, schools.ErrTooManyChunks) {
			w.Header().Set("Retry-After", "5")
		}
		s.respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	defer s.limiter.Release()

	res, err := s.processor.ProcessChunk(r.Context(), payload)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, schools.ErrInvalidChunk) {
			status = http.StatusBadRequest
		}
		s.respondError(w, r, err, status)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, res)
}

// handlePreview parses an uploaded file and reports what an import would do,
// without sending anything.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, source.ErrFileTooLarge, http.StatusRequestEntityTooLarge)
			return
		}
		s.respondError(w, r, errNoFile, http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errNoFile, http.StatusBadRequest)
		return
	}
	defer file.Close()

	f, err := source.Open(header.Filename, file, limit)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, source.ErrFileTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		s.respondError(w, r, err, status)
		return
	}

	lenient, _ := strconv.ParseBool(r.FormValue("lenient"))
	im := ingest.NewImporter(nil, ingest.Options{
		ChunkSize:         s.cfg.Import.ChunkSize,
		FallbackChunkSize: s.cfg.Import.FallbackChunkSize,
		Lenient:           lenient,
		Logger:            s.logger,
	})

	ds, err := im.Parse(r.Context(), f.Name, f.Text)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if !ingest.IsStructural(err) && !errors.Is(err, ingest.ErrNoRecords) {
			status = http.StatusInternalServerError
		}
		s.respondError(w, r, err, status)
		return
	}

	sample := ingest.DefaultPreviewSample
	if v, err := strconv.Atoi(r.FormValue("sample")); err == nil && v >= 0 {
		sample = v
	}
	writeJSON(w, ingest.Preview(ds, sample))
}

// healthResponse is the body of GET /api/health.
type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, healthResponse{Status: "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", "error", err)
		writeJSONStatus(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Database: "unreachable"})
		return
	}
	writeJSON(w, healthResponse{Status: "ok", Database: "ok"})
}

func (s *Server) handleUploadStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.limiter.Status())
}
