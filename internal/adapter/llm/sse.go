package llm

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"tutor-ai/internal/domain"
)

// maxSSELine bounds a single SSE line. Audio chunks arrive base64 encoded in
// one line and easily exceed bufio's 64 KiB default.
const maxSSELine = 8 * 1024 * 1024

// parseSSEStream reads SSE-formatted lines from body and converts each data
// payload into a StreamDelta using parseLine. The returned channel is closed
// when the stream ends, the body is closed, or ctx is cancelled. A parseLine
// error or a read error is delivered as a final delta with Err set.
func parseSSEStream(ctx context.Context, body io.ReadCloser, parseLine func(data []byte) (*domain.StreamDelta, error)) <-chan domain.StreamDelta {
	ch := make(chan domain.StreamDelta, 16)
	go func() {
		defer close(ch)
		defer body.Close()

		send := func(d domain.StreamDelta) bool {
			select {
			case ch <- d:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)
		for scanner.Scan() {
			if ctx.Err() != nil {
				send(domain.StreamDelta{Err: ctx.Err()})
				return
			}

			line := scanner.Bytes()
			if len(line) == 0 || line[0] == ':' {
				continue
			}
			data, ok := bytes.CutPrefix(line, []byte("data:"))
			if !ok {
				continue
			}
			data = bytes.TrimSpace(data)
			if bytes.Equal(data, []byte("[DONE]")) {
				return
			}

			delta, err := parseLine(data)
			if err != nil {
				send(domain.StreamDelta{Err: err})
				return
			}
			if delta == nil {
				continue
			}
			if !send(*delta) || delta.Err != nil {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			send(domain.StreamDelta{Err: fmt.Errorf("read stream: %w", err)})
		}
	}()
	return ch
}
