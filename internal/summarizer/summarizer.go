// Package summarizer turns a session transcript plus run metadata into a
// short human summary, either via an LLM call or a deterministic fallback
// chain. No failure mode here propagates to the caller — every path
// returns a usable SummaryResult.
package summarizer

import (
	"context"
	"log/slog"

	"github.com/hgeldenhuys/trak/internal/metrics"
	"github.com/hgeldenhuys/trak/pkg/models"
)

// Input is the bundle a caller supplies for one summarization.
type Input struct {
	TranscriptPath string
	DurationMs     int64
	FilesModified  []string
	ToolsUsed      []string
	PromptText     string
	Usage          *models.TokenUsage
	Model          string
	Project        string
	SessionName    string
}

// Summarizer produces SummaryResult values from Input bundles.
type Summarizer struct {
	llm             llmClient
	allowedPrefixes []string
	logger          *slog.Logger
	metrics         *metrics.Metrics
}

// Option configures a Summarizer at construction time.
type Option func(*Summarizer)

// WithAllowedPrefixes overrides the transcript-path allowlist (tests may
// need to add a temp directory the default allowlist does not cover).
func WithAllowedPrefixes(prefixes []string) Option {
	return func(s *Summarizer) { s.allowedPrefixes = prefixes }
}

// WithLogger attaches a logger; nil falls back to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Summarizer) { s.logger = logger }
}

// WithMetrics attaches a metrics sink that counts fallback-chain use by
// reason. Optional; a Summarizer works without it.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Summarizer) { s.metrics = m }
}

// New constructs a Summarizer. An empty cfg.APIKey means the LLM call is
// skipped entirely and every summary is produced by the fallback chain.
func New(cfg LLMConfig, opts ...Option) *Summarizer {
	s := &Summarizer{
		llm:             newLLMClient(cfg),
		allowedPrefixes: defaultAllowedPrefixes(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Summarize never returns an error: every failure mode (invalid path,
// missing file, LLM timeout or non-2xx) degrades to the deterministic
// fallback rather than propagating, per the component's failure-mode
// contract.
func (s *Summarizer) Summarize(ctx context.Context, in Input) models.SummaryResult {
	var (
		lines             [][]byte
		aiResponse        string
		lastAssistantText string
		wc                WorkContent
	)

	if err := ValidateTranscriptPath(in.TranscriptPath, s.allowedPrefixes); err != nil {
		s.logger.Warn("summarizer: rejecting transcript path", "path", in.TranscriptPath, "error", err)
	} else if l, err := readLines(in.TranscriptPath); err != nil {
		s.logger.Warn("summarizer: reading transcript", "path", in.TranscriptPath, "error", err)
	} else {
		lines = l
		lastAssistantText = ExtractAIResponse(lines, false)
		aiResponse = ExtractAIResponse(lines, true)
		wc = ExtractWorkContent(lines)
	}

	filesModified := in.FilesModified
	if len(wc.FilesModified) > 0 {
		filesModified = wc.FilesModified
	}

	taskCompleted, fallbackReason := s.callLLM(ctx, wc, lastAssistantText, in)
	if taskCompleted == "" {
		if s.metrics != nil {
			s.metrics.SummarizerFallback.WithLabelValues(fallbackReason).Inc()
		}
		taskCompleted = fallbackTaskCompleted(wc, lastAssistantText, in.PromptText)
	}

	result := models.SummaryResult{
		TaskCompleted:       taskCompleted,
		ProjectName:         in.Project,
		ContextUsagePercent: usagePercent(in.Usage),
		KeyOutcomes:         keyOutcomes(filesModified, in.DurationMs),
	}
	if aiResponse != "" {
		result.AIResponse = aiResponse
	}
	return result
}

// callLLM attempts the provider call within a 15s deadline, returning ""
// and a fallback reason on any failure so the caller falls through to the
// deterministic chain.
func (s *Summarizer) callLLM(ctx context.Context, wc WorkContent, lastAssistantText string, in Input) (text, fallbackReason string) {
	if s.llm == nil {
		return "", "no_llm_configured"
	}
	ctx, cancel := context.WithTimeout(ctx, llmDeadline)
	defer cancel()

	systemPrompt := responseSystemPrompt
	if wc.HasSubstantiveWork {
		systemPrompt = workSystemPrompt
	}
	userPrompt := buildUserPrompt(wc, lastAssistantText, in)

	result, err := s.llm.Summarize(ctx, systemPrompt, userPrompt)
	if err != nil {
		s.logger.Warn("summarizer: llm call failed, falling back", "error", err)
		if ctx.Err() != nil {
			return "", "timeout"
		}
		return "", "llm_error"
	}
	return result, ""
}

func buildUserPrompt(wc WorkContent, lastAssistantText string, in Input) string {
	prompt := "Session prompt: " + in.PromptText + "\n"
	if len(wc.Actions) > 0 {
		prompt += "Actions taken:\n"
		for _, a := range wc.Actions {
			prompt += "- " + a + "\n"
		}
	}
	if lastAssistantText != "" {
		prompt += "Final assistant message: " + lastAssistantText + "\n"
	}
	return prompt
}

func usagePercent(usage *models.TokenUsage) int {
	if usage == nil {
		return 0
	}
	return contextUsagePercent(usage.InputTokens, usage.OutputTokens, usage.CacheReadTokens, usage.CacheWriteTokens)
}
