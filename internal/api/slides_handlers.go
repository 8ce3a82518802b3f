package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"slidecast/internal/models"
	"slidecast/internal/storage"
)

type slideResponse struct {
	ID        int64  `json:"id"`
	SessionID string `json:"sessionId"`
	Type      string `json:"type"`
	ImageURL  string `json:"imageUrl"`
}

func newSlideResponse(slide models.Slide) slideResponse {
	return slideResponse{
		ID:        slide.ID,
		SessionID: slide.SessionID,
		Type:      slide.Type,
		ImageURL:  slide.ImageURL,
	}
}

func (h *Handler) listSlides(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, methodNotAllowed(r.Method))
		return
	}

	slideRecords, err := h.Store.ListSlides(sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		h.Logger.Error("list slides failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to list slides"))
		return
	}

	responses := make([]slideResponse, 0, len(slideRecords))
	for _, slide := range slideRecords {
		responses = append(responses, newSlideResponse(slide))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"slides": responses})
}

func allowedUploadExtension(filename string) bool {
	switch strings.ToLower(path.Ext(filename)) {
	case ".pdf", ".jpg":
		return true
	}
	return false
}

// readUploadFile pulls the multipart part named "file" into memory. Decks
// are bounded by the request body limit, so buffering is acceptable here.
func (h *Handler) readUploadFile(r *http.Request) (string, []byte, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return "", nil, fmt.Errorf("multipart body required: %w", err)
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("read multipart body: %w", err)
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		data, err := io.ReadAll(part)
		closeErr := part.Close()
		if err != nil {
			return "", nil, fmt.Errorf("read file part: %w", err)
		}
		if closeErr != nil {
			return "", nil, fmt.Errorf("close file part: %w", closeErr)
		}
		return part.FileName(), data, nil
	}
	return "", nil, errors.New("file field is required")
}

func (h *Handler) uploadSlides(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, methodNotAllowed(r.Method))
		return
	}

	if _, ok := h.Store.GetSession(sessionID); !ok {
		writeError(w, http.StatusNotFound, storage.ErrSessionNotFound)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes())
	filename, data, err := h.readUploadFile(r)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusBadRequest, fmt.Errorf("file exceeds %d byte limit", maxBytesErr.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !allowedUploadExtension(filename) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("only .pdf and .jpg files are accepted"))
		return
	}

	result, err := h.Slides.Process(r.Context(), sessionID, filename, data)
	if err != nil {
		h.Logger.Error("slide processing failed", "session_id", sessionID, "file", filename, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("unable to process slides"))
		return
	}

	h.metrics().ObserveSlideConversion(result.TotalPages, len(result.ImageURLs))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"totalPages": result.TotalPages,
		"imageUrls":  result.ImageURLs,
	})
}
