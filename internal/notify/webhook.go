package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/hgeldenhuys/trak/internal/backoff"
)

// defaultWebhookRPS and defaultWebhookBurst pace outbound webhook requests ahead of
// Discord's own per-webhook rate limit (roughly 5 requests per 2 seconds),
// so this process backs off proactively rather than relying solely on
// reactive 429 handling.
const (
	defaultWebhookRPS   = 2.0
	defaultWebhookBurst = 5
)

// webhookBackoffPolicy reproduces "sleep base*2^attempt with base=1s" as a
// BackoffPolicy: InitialMs=1000, Factor=2, zero jitter so retries stay
// deterministic in tests.
var webhookBackoffPolicy = backoff.BackoffPolicy{InitialMs: 1000, MaxMs: 30000, Factor: 2, Jitter: 0}

// maxAttachmentBytes is the size ceiling past which an audio file is
// omitted and the payload is sent as JSON only.
const maxAttachmentBytes = 25 * 1024 * 1024

// embed colors, chosen by context-usage% threshold.
const (
	colorGreen  = 0x2ecc71
	colorYellow = 0xf1c40f
	colorOrange = 0xe67e22
	colorRed    = 0xe74c3c
)

func embedColor(contextUsagePercent int) int {
	switch {
	case contextUsagePercent >= 80:
		return colorRed
	case contextUsagePercent >= 60:
		return colorOrange
	case contextUsagePercent >= 30:
		return colorYellow
	default:
		return colorGreen
	}
}

// embedField mirrors a Discord embed field.
type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields,omitempty"`
}

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

// WebhookMessage is the content used to build the outgoing embed.
type WebhookMessage struct {
	Project             string
	TaskCompleted       string
	DurationMs          int64
	FilesModifiedCount  int
	ToolsUsed           []string
	KeyOutcomes         []string
	ContextUsagePercent int
	ResponseURL         string
	AudioPath           string
}

func buildPayload(msg WebhookMessage) webhookPayload {
	var fields []embedField
	fields = append(fields, embedField{Name: "Duration", Value: formatDuration(msg.DurationMs), Inline: true})
	fields = append(fields, embedField{Name: "Files modified", Value: strconv.Itoa(msg.FilesModifiedCount), Inline: true})
	if len(msg.ToolsUsed) > 0 {
		fields = append(fields, embedField{Name: "Tools used", Value: joinCapped(msg.ToolsUsed, 6)})
	}
	if len(msg.KeyOutcomes) > 0 {
		fields = append(fields, embedField{Name: "Key outcomes", Value: joinCapped(msg.KeyOutcomes, 6)})
	}
	if msg.ResponseURL != "" {
		fields = append(fields, embedField{Name: "Response", Value: msg.ResponseURL})
	}
	if len(fields) > 6 {
		fields = fields[:6]
	}
	return webhookPayload{Embeds: []embed{{
		Title:       msg.Project,
		Description: msg.TaskCompleted,
		Color:       embedColor(msg.ContextUsagePercent),
		Fields:      fields,
	}}}
}

func joinCapped(items []string, max int) string {
	if len(items) > max {
		items = items[:max]
	}
	out := ""
	for i, v := range items {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out
}

func formatDuration(durationMs int64) string {
	totalSeconds := durationMs / 1000
	if totalSeconds < 60 {
		return fmt.Sprintf("%ds", totalSeconds)
	}
	return fmt.Sprintf("%dm %ds", totalSeconds/60, totalSeconds%60)
}

// WebhookSender delivers a WebhookMessage to a Discord-compatible webhook
// URL, making up to 3 attempts and honoring 429 Retry-After. A token-bucket
// limiter paces requests proactively, ahead of Discord's own throttling.
type WebhookSender struct {
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
}

// NewWebhookSender constructs a WebhookSender with the default request
// pacing (2 req/s, burst 5).
func NewWebhookSender(httpClient *http.Client, logger *slog.Logger) *WebhookSender {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookSender{
		httpClient: httpClient,
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Limit(defaultWebhookRPS), defaultWebhookBurst),
	}
}

// WithRateLimit overrides the default request pacing.
func (w *WebhookSender) WithRateLimit(requestsPerSecond float64, burst int) *WebhookSender {
	w.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	return w
}

const maxWebhookAttempts = 3

// Send delivers msg to url, attaching the audio file at msg.AudioPath when
// present and under maxAttachmentBytes. A non-429 4xx terminates retry
// immediately (permanent error); anything else backs off and retries.
func (w *WebhookSender) Send(ctx context.Context, url string, msg WebhookMessage) error {
	payload := buildPayload(msg)

	var lastErr error
	for attempt := 0; attempt < maxWebhookAttempts; attempt++ {
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}
		status, retryAfter, err := w.attempt(ctx, url, payload, msg.AudioPath)
		if err == nil && status >= 200 && status < 300 {
			return nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("notify: webhook responded %d", status)
		}

		if status == http.StatusTooManyRequests {
			if sleepErr := sleepCtx(ctx, retryAfter); sleepErr != nil {
				return sleepErr
			}
			continue
		}
		if status >= 400 && status < 500 {
			return fmt.Errorf("notify: webhook permanent error: %w", lastErr)
		}

		delay := backoff.ComputeBackoff(webhookBackoffPolicy, attempt+1)
		if sleepErr := sleepCtx(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}
	return fmt.Errorf("notify: webhook exhausted %d attempts: %w", maxWebhookAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// attempt performs exactly one HTTP delivery and returns the status code,
// the Retry-After duration (valid only on 429), and a transport-level error.
func (w *WebhookSender) attempt(ctx context.Context, url string, payload webhookPayload, audioPath string) (status int, retryAfter time.Duration, err error) {
	var body io.Reader
	var contentType string

	if audioPath != "" {
		if info, statErr := os.Stat(audioPath); statErr == nil && info.Size() <= maxAttachmentBytes {
			buf := &bytes.Buffer{}
			writer := multipart.NewWriter(buf)

			payloadPart, _ := writer.CreateFormField("payload_json")
			if jsonErr := json.NewEncoder(payloadPart).Encode(payload); jsonErr != nil {
				return 0, 0, jsonErr
			}

			file, openErr := os.Open(audioPath)
			if openErr == nil {
				defer file.Close()
				filePart, _ := writer.CreateFormFile("file", filepath.Base(audioPath))
				_, _ = io.Copy(filePart, file)
			}
			_ = writer.Close()
			body = buf
			contentType = writer.FormDataContentType()
		}
	}
	if body == nil {
		buf := &bytes.Buffer{}
		if encErr := json.NewEncoder(buf).Encode(payload); encErr != nil {
			return 0, 0, encErr
		}
		body = buf
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return resp.StatusCode, retryAfter, nil
}

func parseRetryAfter(raw string) time.Duration {
	if raw == "" {
		return time.Second
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Second
}
