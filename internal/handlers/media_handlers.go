package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	maxAudioBytes  = 25 << 20
	maxPromptBytes = 4096
	imageStyle     = "You'll generate an image. It will have a 90's web-design aesthetic. Stylized and cartoonish. Do not render text. Here's your prompt: "
)

// MediaService generates images and transcribes audio
type MediaService interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
	Transcribe(ctx context.Context, audio io.Reader, contentType string) (string, error)
}

// MediaHandler serves the image and audio helper endpoints. A nil service
// answers 503.
type MediaHandler struct {
	media MediaService
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(media MediaService) *MediaHandler {
	return &MediaHandler{media: media}
}

// ImageRequest represents a request to generate a slide image
type ImageRequest struct {
	Prompt string `json:"prompt"`
}

// TranscriptResponse represents the result of an audio upload
type TranscriptResponse struct {
	Success    bool   `json:"success"`
	Transcript string `json:"transcript,omitempty"`
	Error      string `json:"error,omitempty"`
}

// GenerateImage renders an image for a prompt
// POST /api/image {"prompt": "..."}
// GET  /api/image?prompt=...
func (h *MediaHandler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	if h.media == nil {
		http.Error(w, "image generation is not configured", http.StatusServiceUnavailable)
		return
	}

	prompt := r.URL.Query().Get("prompt")
	if r.Method == http.MethodPost {
		var req ImageRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxPromptBytes)).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		prompt = req.Prompt
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		http.Error(w, "prompt is required", http.StatusBadRequest)
		return
	}

	img, err := h.media.GenerateImage(r.Context(), imageStyle+prompt)
	if err != nil {
		slog.Error("image generation failed", "error", err)
		http.Error(w, "image generation failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(img))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(img)
}

// TranscribeAudio transcribes a raw audio body
// POST /api/audio/stream
func (h *MediaHandler) TranscribeAudio(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	if !strings.Contains(contentType, "audio/") {
		writeJSON(w, http.StatusBadRequest, TranscriptResponse{Error: "Expected audio stream"})
		return
	}
	if h.media == nil {
		writeJSON(w, http.StatusServiceUnavailable, TranscriptResponse{Error: "transcription is not configured"})
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxAudioBytes)
	transcript, err := h.media.Transcribe(r.Context(), body, contentType)
	if err != nil {
		slog.Error("transcription failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, TranscriptResponse{Error: "Stream processing error"})
		return
	}

	writeJSON(w, http.StatusOK, TranscriptResponse{Success: true, Transcript: transcript})
}
