package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/tiptally/tiptally/constants"
	"github.com/tiptally/tiptally/internal/common"
	"github.com/tiptally/tiptally/internal/normalize"
)

// handleExtract accepts one multipart "file" part and returns the
// extraction result, or a typed error with a mapped status code.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, s.logger, common.NewAppError("BAD_UPLOAD", "parsing multipart form: "+err.Error(), common.ErrInvalidRequest))
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, s.logger, common.NewAppError("BAD_UPLOAD", "no file provided", common.ErrInvalidRequest))
		return
	}
	defer f.Close()

	raw, err := readPart(f, header)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	res, err := s.coordinator.ProcessOne(r.Context(), raw)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleExtractBatch accepts repeated "files" parts, preserving order.
// The response is always 200 with per-item outcomes; only a batch that
// cannot start (no files) is a top-level error.
func (s *Server) handleExtractBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, s.logger, common.NewAppError("BAD_UPLOAD", "parsing multipart form: "+err.Error(), common.ErrInvalidRequest))
		return
	}

	var items []normalize.RawImage
	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["files"] {
			f, err := header.Open()
			if err != nil {
				writeError(w, s.logger, common.NewAppError("BAD_UPLOAD", "opening part "+header.Filename, common.ErrInvalidRequest))
				return
			}
			raw, err := readPart(f, header)
			_ = f.Close()
			if err != nil {
				writeError(w, s.logger, err)
				return
			}
			items = append(items, raw)
		}
	}

	out, err := s.coordinator.ProcessBatch(r.Context(), items)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Stats())
}

func (s *Server) handleCacheFlush(w http.ResponseWriter, _ *http.Request) {
	removed := s.cache.Flush()
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// readPart materializes one upload part. The declared Content-Type wins;
// a missing one falls back to the filename extension.
func readPart(f multipart.File, header *multipart.FileHeader) (normalize.RawImage, error) {
	data, err := io.ReadAll(f)
	if err != nil {
		return normalize.RawImage{}, common.NewAppError("BAD_UPLOAD", "reading "+header.Filename, common.ErrInvalidRequest)
	}

	mediaType := header.Header.Get("Content-Type")
	if mediaType == "" || mediaType == "application/octet-stream" {
		if f := constants.MapExtToFormat(filepath.Ext(header.Filename)); f == constants.PDF {
			mediaType = "application/pdf"
		} else if f == constants.IMAGE {
			mediaType = "image/" + constants.NormalizeExt(filepath.Ext(header.Filename))
		}
	}

	return normalize.RawImage{
		Data:      data,
		MediaType: mediaType,
		Filename:  header.Filename,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("http.encode_response_failed", "error", err)
	}
}

// writeError maps the pipeline taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrUnsupportedMediaType):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, common.ErrNormalizationFailed):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, common.ErrTransientService):
		status = http.StatusServiceUnavailable
	case errors.Is(err, common.ErrAuthentication),
		errors.Is(err, common.ErrMalformedResponse):
		status = http.StatusBadGateway
	}

	logger.Warn("http.error", "status", status, "err", err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
