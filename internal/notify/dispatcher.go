// Package notify implements the three notification channels (audio/TTS,
// webhook, console) and the dispatcher that fans a completed transaction's
// summary out to whichever are enabled.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/hgeldenhuys/trak/internal/metrics"
	"github.com/hgeldenhuys/trak/pkg/models"
)

// TTSGenerator turns a sentence into a playable audio file path. The voice
// id, when non-empty, overrides the provider's default voice; no
// validation is performed here (delegated to the provider).
type TTSGenerator interface {
	Generate(ctx context.Context, text, voiceID string) (audioPath string, err error)
}

// Config toggles the three channels globally; a request's ChannelPrefs may
// override any of these per call.
type Config struct {
	TTSEnabled     bool
	DiscordEnabled bool
	ConsoleEnabled bool
	WebhookURL     string
}

// Dispatcher orchestrates TTS, webhook, and console delivery for one
// completed transaction's summary.
type Dispatcher struct {
	cfg     Config
	tts     TTSGenerator
	audio   *AudioQueue
	webhook *WebhookSender
	console *ConsoleWriter
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewDispatcher constructs a Dispatcher. Any of tts, audio, webhook,
// console may be nil to disable that channel regardless of Config.
func NewDispatcher(cfg Config, tts TTSGenerator, audio *AudioQueue, webhook *WebhookSender, console *ConsoleWriter, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{cfg: cfg, tts: tts, audio: audio, webhook: webhook, console: console, logger: logger}
}

// WithMetrics attaches a metrics sink for per-channel dispatch outcomes and
// audio queue depth. Optional; a Dispatcher works without it.
func (d *Dispatcher) WithMetrics(m *metrics.Metrics) *Dispatcher {
	d.metrics = m
	return d
}

func (d *Dispatcher) recordOutcome(channel string, outcome ChannelOutcomeLabel) {
	if d.metrics == nil {
		return
	}
	d.metrics.NotifyDispatched.WithLabelValues(channel, string(outcome)).Inc()
}

// auditDispatch writes one structured log line per channel dispatch
// attempt, success or failure, so operators can reconstruct delivery
// history from logs alone without a separate audit store.
func (d *Dispatcher) auditDispatch(channel, project string, outcome ChannelOutcomeLabel, latency time.Duration, err error) {
	if err != nil {
		d.logger.Info("notify: dispatch", "channel", channel, "project", project, "outcome", outcome, "latency_ms", latency.Milliseconds(), "error", err)
		return
	}
	d.logger.Info("notify: dispatch", "channel", channel, "project", project, "outcome", outcome, "latency_ms", latency.Milliseconds())
}

// ChannelOutcomeLabel is the Prometheus label value for a dispatch outcome.
type ChannelOutcomeLabel string

const (
	OutcomeSuccess ChannelOutcomeLabel = "success"
	OutcomeError   ChannelOutcomeLabel = "error"
)

// AudioQueueLen reports the number of items currently queued for
// playback, for the /queue diagnostic endpoint.
func (d *Dispatcher) AudioQueueLen() int {
	if d.audio == nil {
		return 0
	}
	return d.audio.Len()
}

// WaitForAudioDrain blocks until the audio queue empties or ctx is done,
// for use during the drain phase of shutdown.
func (d *Dispatcher) WaitForAudioDrain(ctx context.Context) error {
	if d.audio == nil {
		return nil
	}
	return d.audio.WaitForDrain(ctx)
}

// Request bundles what a dispatch needs beyond the summary itself.
type Request struct {
	Project           string
	Summary           models.SummaryResult
	DurationMs        int64
	FilesModified     []string
	ToolsUsed         []string
	DiscordWebhookURL string
	VoiceID           string
	Prefs             *models.ChannelPrefs
	ResponseURL       string
}

func enabled(global bool, override *bool) bool {
	if override != nil {
		return *override
	}
	return global
}

// Dispatch runs TTS generation first (its output feeds the webhook
// attachment and the response audio link), then fires webhook delivery
// fire-and-forget in a goroutine and writes the console line
// synchronously. Every channel's error is logged, never returned to the
// caller as a whole-dispatch failure.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) models.NotifyResponse {
	resp := models.NotifyResponse{Success: true, ResponseURL: req.ResponseURL}

	var prefs models.ChannelPrefs
	if req.Prefs != nil {
		prefs = *req.Prefs
	}

	audioPath := ""
	if d.tts != nil && enabled(d.cfg.TTSEnabled, prefs.TTS) {
		resp.Channels.TTS.Attempted = true
		start := time.Now()
		path, err := d.tts.Generate(ctx, req.Summary.TaskCompleted, req.VoiceID)
		if err != nil {
			resp.Channels.TTS.Error = err.Error()
			d.recordOutcome("tts", OutcomeError)
			d.auditDispatch("tts", req.Project, OutcomeError, time.Since(start), err)
			d.logger.Warn("notify: tts generation failed", "project", req.Project, "error", err)
		} else {
			audioPath = path
			resp.AudioPath = path
			resp.Channels.TTS.Success = true
			d.recordOutcome("tts", OutcomeSuccess)
			d.auditDispatch("tts", req.Project, OutcomeSuccess, time.Since(start), nil)
			if d.audio != nil {
				if pos, qerr := d.audio.Enqueue(path, req.Project, 0); qerr != nil {
					d.logger.Warn("notify: audio enqueue failed", "project", req.Project, "error", qerr)
				} else {
					resp.Queued = true
					resp.QueuePosition = pos
					if d.metrics != nil {
						d.metrics.AudioQueueDepth.Set(float64(d.audio.Len()))
					}
				}
			}
		}
	}

	if d.webhook != nil && enabled(d.cfg.DiscordEnabled, prefs.Discord) {
		resp.Channels.Discord.Attempted = true
		go d.dispatchWebhook(req, audioPath)
		resp.Channels.Discord.Success = true
	}

	if d.console != nil && enabled(d.cfg.ConsoleEnabled, prefs.Console) {
		resp.Channels.Console.Attempted = true
		start := time.Now()
		msg := d.buildMessage(req, audioPath)
		if err := d.console.Write(msg); err != nil {
			resp.Channels.Console.Error = err.Error()
			d.recordOutcome("console", OutcomeError)
			d.auditDispatch("console", req.Project, OutcomeError, time.Since(start), err)
			d.logger.Warn("notify: console write failed", "project", req.Project, "error", err)
		} else {
			resp.Channels.Console.Success = true
			d.recordOutcome("console", OutcomeSuccess)
			d.auditDispatch("console", req.Project, OutcomeSuccess, time.Since(start), nil)
		}
	}

	return resp
}

func (d *Dispatcher) dispatchWebhook(req Request, audioPath string) {
	url, rejected := resolveWebhookURL(d.cfg.WebhookURL, req.DiscordWebhookURL)
	if rejected {
		d.logger.Error("notify: per-project webhook url failed validation, using global", "project", req.Project)
	}
	if url == "" {
		return
	}
	msg := d.buildMessage(req, audioPath)
	start := time.Now()
	if err := d.webhook.Send(context.Background(), url, msg); err != nil {
		d.recordOutcome("discord", OutcomeError)
		d.auditDispatch("discord", req.Project, OutcomeError, time.Since(start), err)
		d.logger.Warn("notify: webhook dispatch failed", "project", req.Project, "error", err)
		return
	}
	d.recordOutcome("discord", OutcomeSuccess)
	d.auditDispatch("discord", req.Project, OutcomeSuccess, time.Since(start), nil)
}

func (d *Dispatcher) buildMessage(req Request, audioPath string) WebhookMessage {
	return WebhookMessage{
		Project:             req.Project,
		TaskCompleted:       req.Summary.TaskCompleted,
		DurationMs:          req.DurationMs,
		FilesModifiedCount:  len(req.FilesModified),
		ToolsUsed:           req.ToolsUsed,
		KeyOutcomes:         req.Summary.KeyOutcomes,
		ContextUsagePercent: req.Summary.ContextUsagePercent,
		ResponseURL:         req.ResponseURL,
		AudioPath:           audioPath,
	}
}
