package notify

import (
	"fmt"
	"io"
)

// ConsoleWriter is a synchronous, no-retry console channel.
type ConsoleWriter struct {
	out io.Writer
}

// NewConsoleWriter constructs a ConsoleWriter writing to out.
func NewConsoleWriter(out io.Writer) *ConsoleWriter {
	return &ConsoleWriter{out: out}
}

// Write formats msg and writes it synchronously; any write error is
// returned for the caller to log (console delivery never retries).
func (c *ConsoleWriter) Write(msg WebhookMessage) error {
	_, err := fmt.Fprintf(c.out, "[%s] %s (%s, %d files)\n",
		msg.Project, msg.TaskCompleted, formatDuration(msg.DurationMs), msg.FilesModifiedCount)
	return err
}
