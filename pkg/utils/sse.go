package utils

import (
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"
)

// SetupSSEHeaders prepares w for a Server-Sent Events stream.
func SetupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// SendSSEEvent writes one named event whose data is data encoded as JSON,
// then flushes.
func SendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	payload, err := sonic.ConfigStd.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal sse %s: %w", event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return fmt.Errorf("write sse %s: %w", event, err)
	}
	flusher.Flush()
	return nil
}
