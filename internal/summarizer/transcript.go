package summarizer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidTranscriptPath is returned by ValidateTranscriptPath for any
// path that fails the allowlist check.
var ErrInvalidTranscriptPath = errors.New("summarizer: invalid transcript path")

// transcriptSuffix is the only accepted file extension for a transcript.
const transcriptSuffix = ".jsonl"

// defaultAllowedPrefixes returns the directories a transcript path may live
// under. Both must exist as absolute, cleaned paths; callers may replace this
// list (e.g. tests injecting a temp prefix) via WithAllowedPrefixes.
func defaultAllowedPrefixes() []string {
	prefixes := []string{os.TempDir()}
	if home, err := os.UserHomeDir(); err == nil {
		prefixes = append(prefixes, filepath.Join(home, ".claude", "projects"))
	}
	return prefixes
}

// ValidateTranscriptPath rejects anything that is not an absolute, already-
// normalized path under one of allowedPrefixes and ending in the transcript
// suffix. This is the single security-critical gate before any file read.
func ValidateTranscriptPath(path string, allowedPrefixes []string) error {
	if path == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTranscriptPath)
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: not absolute", ErrInvalidTranscriptPath)
	}
	if filepath.Clean(path) != path {
		return fmt.Errorf("%w: not normalized", ErrInvalidTranscriptPath)
	}
	if !strings.HasSuffix(path, transcriptSuffix) {
		return fmt.Errorf("%w: wrong suffix", ErrInvalidTranscriptPath)
	}
	under := false
	for _, prefix := range allowedPrefixes {
		prefix = filepath.Clean(prefix)
		if path == prefix || strings.HasPrefix(path, prefix+string(filepath.Separator)) {
			under = true
			break
		}
	}
	if !under {
		return fmt.Errorf("%w: outside allowlist", ErrInvalidTranscriptPath)
	}
	return nil
}

// transcriptLine is the subset of a transcript record's shape the
// extractors need; unknown fields are ignored by encoding/json.
type transcriptLine struct {
	Type    string `json:"type"`
	Message struct {
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// readLines reads a transcript file into raw lines, skipping blanks. It does
// not itself validate the path — callers must call ValidateTranscriptPath
// first.
func readLines(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		lines = append(lines, append([]byte(nil), line...))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

const aiResponseTruncateLimit = 2000

// ExtractAIResponse scans lines in reverse for the last assistant record
// with text content, concatenating its text blocks. Malformed lines are
// skipped without aborting the scan.
func ExtractAIResponse(lines [][]byte, truncate bool) string {
	for i := len(lines) - 1; i >= 0; i-- {
		var rec transcriptLine
		if err := json.Unmarshal(lines[i], &rec); err != nil {
			continue
		}
		if rec.Type != "assistant" || len(rec.Message.Content) == 0 {
			continue
		}
		var blocks []contentBlock
		if err := json.Unmarshal(rec.Message.Content, &blocks); err != nil {
			continue
		}
		var sb strings.Builder
		for _, b := range blocks {
			if b.Type == "text" && b.Text != "" {
				if sb.Len() > 0 {
					sb.WriteString("\n")
				}
				sb.WriteString(b.Text)
			}
		}
		text := sb.String()
		if text == "" {
			continue
		}
		if truncate && len(text) > aiResponseTruncateLimit {
			text = text[:aiResponseTruncateLimit] + "... [truncated]"
		}
		return text
	}
	return ""
}

// readOnlyTools are ignored for substantive-work purposes.
var readOnlyTools = map[string]bool{
	"Read": true, "Glob": true, "Grep": true, "WebFetch": true, "WebSearch": true,
}

// fileModifyingTools collect a file path from their input.
var fileModifyingTools = map[string]bool{
	"Edit": true, "Write": true, "NotebookEdit": true,
}

// mutatingCommandHeads is the allowlist of head tokens for Bash commands
// that count as state-mutating. Sub-command-sensitive heads (npm, git,
// cargo, go, docker, make) are checked with mutatingSubcommands.
var mutatingCommandHeads = map[string]bool{
	"rm": true, "mv": true, "cp": true, "mkdir": true, "touch": true, "chmod": true,
	"make": true, "bun": true,
}

var mutatingSubcommands = map[string]map[string]bool{
	"npm":    {"install": true, "uninstall": true, "run": true, "ci": true},
	"yarn":   {"add": true, "remove": true},
	"pnpm":   {"add": true, "remove": true, "install": true},
	"pip":    {"install": true, "uninstall": true},
	"cargo":  {"add": true, "build": true, "install": true},
	"go":     {"get": true, "build": true, "install": true},
	"git":    {"commit": true, "push": true, "merge": true, "rebase": true, "add": true, "reset": true, "checkout": true},
	"docker": {"build": true, "run": true, "compose": true},
}

// WorkContent is the result of ExtractWorkContent: the observable effects
// of a session's tool use, in first-seen order.
type WorkContent struct {
	FilesModified      []string
	Actions            []string
	HasSubstantiveWork bool
}

// ExtractWorkContent forward-scans the transcript for tool_use blocks and
// classifies them. Malformed lines are skipped without aborting the scan.
func ExtractWorkContent(lines [][]byte) WorkContent {
	var wc WorkContent
	seenFiles := map[string]bool{}

	for _, line := range lines {
		var rec transcriptLine
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.Type != "assistant" || len(rec.Message.Content) == 0 {
			continue
		}
		var blocks []contentBlock
		if err := json.Unmarshal(rec.Message.Content, &blocks); err != nil {
			continue
		}
		for _, b := range blocks {
			if b.Type != "tool_use" {
				continue
			}
			switch {
			case readOnlyTools[b.Name]:
				continue
			case fileModifyingTools[b.Name]:
				path := toolInputPath(b.Input)
				if path == "" {
					continue
				}
				base := filepath.Base(path)
				if !seenFiles[base] {
					seenFiles[base] = true
					wc.FilesModified = append(wc.FilesModified, base)
					wc.Actions = append(wc.Actions, fmt.Sprintf("%s %s", b.Name, base))
					wc.HasSubstantiveWork = true
				}
			case b.Name == "Bash":
				if action := bashAction(b.Input); action != "" {
					wc.Actions = append(wc.Actions, action)
					wc.HasSubstantiveWork = true
				}
			}
		}
	}
	return wc
}

func toolInputPath(raw json.RawMessage) string {
	var fields struct {
		FilePath     string `json:"file_path"`
		NotebookPath string `json:"notebook_path"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}
	if fields.FilePath != "" {
		return fields.FilePath
	}
	return fields.NotebookPath
}

// bashAction returns a human-readable action string when the command's
// head token is a recognized state-mutating command, or "" for pure
// inspection commands.
func bashAction(raw json.RawMessage) string {
	var fields struct {
		Command     string `json:"command"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}
	cmd := strings.TrimSpace(fields.Command)
	if cmd == "" {
		return ""
	}
	tokens := strings.Fields(cmd)
	head := tokens[0]

	mutating := mutatingCommandHeads[head]
	if !mutating {
		if subs, ok := mutatingSubcommands[head]; ok && len(tokens) > 1 {
			mutating = subs[tokens[1]]
		}
	}
	if !mutating {
		return ""
	}
	if fields.Description != "" {
		return fields.Description
	}
	return cmd
}
