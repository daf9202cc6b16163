package summarizer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hgeldenhuys/trak/internal/metrics"
)

func writeTranscript(t *testing.T, dir string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, "transcript.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o600); err != nil {
		t.Fatalf("write transcript: %v", err)
	}
	return path
}

// S6 — summarizer fallback.
func TestSummarize_FallbackMentionsWork(t *testing.T) {
	dir := t.TempDir()
	path := writeTranscript(t, dir, []string{
		`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Edit","input":{"file_path":"/a.ts"}}]}}`,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Edit","input":{"file_path":"/b.ts"}}]}}`,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Bash","input":{"command":"bun test","description":"Run tests"}}]}}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"Let me know if you need anything else!"}]}}`,
	})

	s := New(LLMConfig{}, WithAllowedPrefixes([]string{dir}))
	result := s.Summarize(context.Background(), Input{
		TranscriptPath: path,
		DurationMs:     30000,
		Project:        "demo",
	})

	if strings.Contains(result.TaskCompleted, "Let me know") {
		t.Errorf("taskCompleted leaked the friendly phrase: %q", result.TaskCompleted)
	}
	mentionsWork := false
	for _, needle := range []string{"Edit", "a.ts", "b.ts", "Run tests", "file"} {
		if strings.Contains(result.TaskCompleted, needle) {
			mentionsWork = true
			break
		}
	}
	if !mentionsWork {
		t.Errorf("taskCompleted = %q, want it to mention the work performed", result.TaskCompleted)
	}

	joined := strings.Join(result.KeyOutcomes, " ")
	if !strings.Contains(joined, "2 files modified") {
		t.Errorf("keyOutcomes = %v, want \"2 files modified\"", result.KeyOutcomes)
	}
	if !strings.Contains(joined, "30s") {
		t.Errorf("keyOutcomes = %v, want a \"30s\" duration token", result.KeyOutcomes)
	}
}

func TestCallLLM_ReportsNoLLMConfiguredReason(t *testing.T) {
	s := New(LLMConfig{})
	text, reason := s.callLLM(context.Background(), WorkContent{}, "", Input{PromptText: "fix the login bug"})
	if text != "" {
		t.Errorf("text = %q, want empty when no LLM is configured", text)
	}
	if reason != "no_llm_configured" {
		t.Errorf("reason = %q, want \"no_llm_configured\"", reason)
	}
}

func TestSummarize_WithMetricsDoesNotPanicOnFallback(t *testing.T) {
	s := New(LLMConfig{}, WithMetrics(metrics.New()))
	result := s.Summarize(context.Background(), Input{
		TranscriptPath: "relative/path.jsonl",
		PromptText:     "fix the login bug",
		Project:        "demo",
	})
	if result.TaskCompleted == "" {
		t.Fatal("expected a non-empty fallback taskCompleted")
	}
}

func TestSummarize_InvalidPathDegradesToFallback(t *testing.T) {
	s := New(LLMConfig{})
	result := s.Summarize(context.Background(), Input{
		TranscriptPath: "relative/path.jsonl",
		DurationMs:     5000,
		PromptText:     "fix the login bug",
		Project:        "demo",
	})
	if result.TaskCompleted == "" {
		t.Error("expected a non-empty fallback taskCompleted")
	}
	if result.AIResponse != "" {
		t.Errorf("AIResponse = %q, want empty for an invalid path", result.AIResponse)
	}
}

func TestExtractWorkContent_SkipsMalformedLinesAndReadOnlyTools(t *testing.T) {
	lines := [][]byte{
		[]byte(`not json at all`),
		[]byte(`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Grep","input":{}}]}}`),
		[]byte(`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Write","input":{"file_path":"/tmp/x/out.go"}}]}}`),
		[]byte(`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Bash","input":{"command":"ls -la"}}]}}`),
	}
	wc := ExtractWorkContent(lines)
	if !wc.HasSubstantiveWork {
		t.Error("HasSubstantiveWork = false, want true (Write occurred)")
	}
	if len(wc.FilesModified) != 1 || wc.FilesModified[0] != "out.go" {
		t.Errorf("FilesModified = %v, want [out.go]", wc.FilesModified)
	}
	for _, a := range wc.Actions {
		if strings.Contains(a, "ls -la") {
			t.Error("pure inspection command ls produced an action entry")
		}
	}
}

func TestValidateTranscriptPath(t *testing.T) {
	dir := t.TempDir()
	ok := filepath.Join(dir, "t.jsonl")
	prefixes := []string{dir}

	cases := []struct {
		name string
		path string
		ok   bool
	}{
		{"valid", ok, true},
		{"empty", "", false},
		{"relative", "t.jsonl", false},
		{"wrong suffix", filepath.Join(dir, "t.txt"), false},
		{"outside allowlist", "/etc/t.jsonl", false},
		{"dot segment", dir + string(filepath.Separator) + ".." + string(filepath.Separator) + "t.jsonl", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := ValidateTranscriptPath(c.path, prefixes)
			if (err == nil) != c.ok {
				t.Errorf("ValidateTranscriptPath(%q) error = %v, want ok=%v", c.path, err, c.ok)
			}
		})
	}
}

func TestContextUsagePercentClamped(t *testing.T) {
	if got := contextUsagePercent(400_000, 0, 0, 0); got != 100 {
		t.Errorf("got %d, want 100 (clamped)", got)
	}
	if got := contextUsagePercent(0, 0, 0, 0); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
	if got := contextUsagePercent(100_000, 0, 0, 0); got != 50 {
		t.Errorf("got %d, want 50", got)
	}
}
