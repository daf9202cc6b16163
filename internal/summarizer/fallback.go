package summarizer

import (
	"fmt"
	"regexp"
	"strings"
)

// actionVerbPattern heuristically extracts a short sentence describing what
// was done from a free-text assistant response, for fallback priority (2).
var actionVerbPattern = regexp.MustCompile(`(?i)\b(I've|I have|I)\s+(fixed|updated|added|created|implemented|refactored|removed|changed|wrote|built)\b[^.!\n]*`)

const userPromptEchoLimit = 150

// fallbackTaskCompleted implements the deterministic priority chain from
// §4.D: work actions, then an action-verb heuristic on the last assistant
// text, then a truncated echo of the user prompt, then the constant.
func fallbackTaskCompleted(wc WorkContent, lastAssistantText, promptText string) string {
	if len(wc.Actions) > 0 {
		return strings.Join(wc.Actions, ", ")
	}
	if m := actionVerbPattern.FindString(lastAssistantText); m != "" {
		return strings.TrimSpace(m)
	}
	if promptText != "" {
		echo := promptText
		if len(echo) > userPromptEchoLimit {
			echo = echo[:userPromptEchoLimit] + "..."
		}
		return echo
	}
	return "Task completed successfully"
}

// keyOutcomes builds the summary's keyOutcomes list: a file count (when
// nonzero) and a human-readable duration.
func keyOutcomes(filesModified []string, durationMs int64) []string {
	var out []string
	if n := len(filesModified); n > 0 {
		noun := "files"
		if n == 1 {
			noun = "file"
		}
		out = append(out, fmt.Sprintf("%d %s modified", n, noun))
	}
	out = append(out, formatDuration(durationMs))
	return out
}

// formatDuration renders a millisecond duration as "Xs" under a minute, or
// "Xm Ys" otherwise.
func formatDuration(durationMs int64) string {
	totalSeconds := durationMs / 1000
	if totalSeconds < 60 {
		return fmt.Sprintf("%ds", totalSeconds)
	}
	minutes := totalSeconds / 60
	seconds := totalSeconds % 60
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}

// contextUsagePercent implements the §4.D formula, clamped to [0,100].
func contextUsagePercent(inputTokens, outputTokens, cacheRead, cacheCreation int64) int {
	const contextWindow = 200_000
	total := inputTokens + outputTokens + cacheRead + cacheCreation
	pct := int(roundHalfAwayFromZero(float64(total) / contextWindow * 100))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func roundHalfAwayFromZero(f float64) float64 {
	if f >= 0 {
		return float64(int64(f + 0.5))
	}
	return float64(int64(f - 0.5))
}
