package conversation

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
)

// WriteTranscript renders a topic as the plain-text export format.
func WriteTranscript(w io.Writer, topic string, msgs []Message, now time.Time) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Buddy AI Chat Export - %s\n", topic)
	fmt.Fprintf(bw, "Exported: %s\n", now.Format("2006-01-02 15:04"))
	bw.WriteString(strings.Repeat("=", 60) + "\n\n")
	for _, m := range msgs {
		fmt.Fprintf(bw, "[%s] %s: %s\n\n", m.Timestamp, strings.ToUpper(string(m.Sender)), m.Text)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}
