package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gavel/internal/config"
	"gavel/internal/services"
)

const transcribePath = "/v1/transcribe"

// responseDetailLimit caps how much service output lands in error messages.
const responseDetailLimit = 200

var millisPerSecond = decimal.NewFromInt(1000)

// Client submits audio artifacts for transcription.
type Client interface {
	Transcribe(ctx context.Context, req Request) (Response, error)
}

// Request describes one transcription submission.
type Request struct {
	FilePath        string
	Model           string
	Language        string
	DurationSeconds float64
}

// Segment is one transcribed span with millisecond timestamps.
type Segment struct {
	Index   int
	StartMS int64
	EndMS   int64
	Text    string
}

// Response is the parsed transcription service reply.
type Response struct {
	Language string
	Segments []Segment
}

// wireResponse mirrors the service JSON. Timestamps arrive as decimal
// second strings (some deployments send bare numbers); decimal.Decimal
// accepts both without float rounding.
type wireResponse struct {
	Language string        `json:"language"`
	Segments []wireSegment `json:"segments"`
}

type wireSegment struct {
	Text  string          `json:"text"`
	Start decimal.Decimal `json:"start"`
	End   decimal.Decimal `json:"end"`
}

// Option customizes the HTTP client.
type Option func(*HTTPClient)

// WithHTTPClient overrides the underlying HTTP client (for testing).
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		if client != nil {
			c.http = client
		}
	}
}

// HTTPClient calls the external transcription service.
type HTTPClient struct {
	baseURL      string
	token        string
	timeoutBase  time.Duration
	timeoutScale float64
	http         *http.Client
}

// New constructs a client from repository configuration. Deadlines are
// applied per call so they can scale with artifact duration.
func New(cfg *config.Config, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:      strings.TrimRight(strings.TrimSpace(cfg.Transcription.BaseURL), "/"),
		token:        strings.TrimSpace(cfg.Transcription.APIToken),
		timeoutBase:  time.Duration(cfg.Transcription.TimeoutBase) * time.Second,
		timeoutScale: cfg.Transcription.TimeoutScale,
		http:         &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the per-call deadline for an artifact of the given
// duration: the configured base plus the duration scaled by the configured
// factor. Zero means no deadline.
func (c *HTTPClient) Timeout(durationSeconds float64) time.Duration {
	scaled := time.Duration(durationSeconds * c.timeoutScale * float64(time.Second))
	if scaled < 0 {
		scaled = 0
	}
	return c.timeoutBase + scaled
}

// Transcribe uploads the audio artifact and returns parsed segments.
// Transport and 5xx failures are tagged transient for retry; rejected
// requests and malformed replies are tagged validation.
func (c *HTTPClient) Transcribe(ctx context.Context, req Request) (Response, error) {
	if c == nil || c.baseURL == "" {
		return Response{}, services.Wrap(services.ErrConfiguration, "transcribe", "submit audio", "transcription base URL is not configured", nil)
	}
	filePath := strings.TrimSpace(req.FilePath)
	if filePath == "" {
		return Response{}, services.Wrap(services.ErrValidation, "transcribe", "submit audio", "audio path required", nil)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return Response{}, services.Wrap(services.ErrValidation, "transcribe", "submit audio", "open audio artifact", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if model := strings.TrimSpace(req.Model); model != "" {
		if err := writer.WriteField("model", model); err != nil {
			return Response{}, services.Wrap(services.ErrValidation, "transcribe", "submit audio", "write model field", err)
		}
	}
	if language := strings.TrimSpace(req.Language); language != "" {
		if err := writer.WriteField("language", language); err != nil {
			return Response{}, services.Wrap(services.ErrValidation, "transcribe", "submit audio", "write language field", err)
		}
	}
	field, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return Response{}, services.Wrap(services.ErrValidation, "transcribe", "submit audio", "create file field", err)
	}
	if _, err := io.Copy(field, file); err != nil {
		return Response{}, services.Wrap(services.ErrValidation, "transcribe", "submit audio", "copy audio into request", err)
	}
	if err := writer.Close(); err != nil {
		return Response{}, services.Wrap(services.ErrValidation, "transcribe", "submit audio", "close multipart writer", err)
	}

	callCtx := ctx
	if timeout := c.Timeout(req.DurationSeconds); timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	request, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+transcribePath, body)
	if err != nil {
		return Response{}, services.Wrap(services.ErrValidation, "transcribe", "submit audio", "build request", err)
	}
	request.Header.Set("Content-Type", writer.FormDataContentType())
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(request)
	if err != nil {
		return Response{}, services.Wrap(services.ErrTransient, "transcribe", "submit audio", "transcription service unreachable", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, services.Wrap(services.ErrTransient, "transcribe", "read response", "read transcription response", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		message := fmt.Sprintf("transcription service rejected the request (status %d): %s", resp.StatusCode, truncateDetail(payload))
		return Response{}, services.Wrap(services.ErrValidation, "transcribe", "submit audio", message, nil)
	default:
		message := fmt.Sprintf("transcription service error (status %d)", resp.StatusCode)
		return Response{}, services.Wrap(services.ErrTransient, "transcribe", "submit audio", message, nil)
	}

	var wire wireResponse
	if err := json.Unmarshal(payload, &wire); err != nil {
		return Response{}, services.Wrap(services.ErrValidation, "transcribe", "parse response", "malformed transcription response", err)
	}
	return fromWire(wire)
}

// fromWire converts decimal second timestamps into exact milliseconds.
func fromWire(wire wireResponse) (Response, error) {
	response := Response{
		Language: strings.TrimSpace(wire.Language),
		Segments: make([]Segment, len(wire.Segments)),
	}
	for i, seg := range wire.Segments {
		start := seg.Start.Mul(millisPerSecond).BigInt().Int64()
		end := seg.End.Mul(millisPerSecond).BigInt().Int64()
		if start < 0 || end < start {
			message := fmt.Sprintf("segment %d timestamps out of order (%s..%s)", i, seg.Start, seg.End)
			return Response{}, services.Wrap(services.ErrValidation, "transcribe", "parse response", message, nil)
		}
		response.Segments[i] = Segment{
			Index:   i,
			StartMS: start,
			EndMS:   end,
			Text:    seg.Text,
		}
	}
	return response, nil
}

func truncateDetail(payload []byte) string {
	detail := strings.TrimSpace(string(payload))
	if len(detail) > responseDetailLimit {
		detail = detail[:responseDetailLimit] + "..."
	}
	return detail
}
