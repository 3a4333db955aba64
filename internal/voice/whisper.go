package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultWhisperURL   = "https://api.groq.com/openai/v1"
	DefaultWhisperModel = "whisper-large-v3-turbo"
)

// WhisperRecognizer posts audio to an OpenAI-compatible transcription endpoint.
type WhisperRecognizer struct {
	BaseURL    string
	APIKey     string
	Model      string
	Language   string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

func (w *WhisperRecognizer) Recognize(ctx context.Context, wav []byte) (string, error) {
	if strings.TrimSpace(w.APIKey) == "" {
		return "", fmt.Errorf("transcription api key not configured")
	}
	if len(wav) == 0 {
		return "", ErrNoSpeech
	}

	model := w.Model
	if model == "" {
		model = DefaultWhisperModel
	}
	base := w.BaseURL
	if base == "" {
		base = DefaultWhisperURL
	}
	client := w.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := mw.WriteField("model", model); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if w.Language != "" {
		if err := mw.WriteField("language", w.Language); err != nil {
			return "", fmt.Errorf("write language field: %w", err)
		}
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("write response_format field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/audio/transcriptions", &buf)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		w.Logger.Error().Int("status", resp.StatusCode).Str("body", string(body)).Msg("transcription api error")
		return "", fmt.Errorf("transcription status %d", resp.StatusCode)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", ErrNotUnderstood
	}
	return text, nil
}
