// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
)

// STREAMING: Incremental SSE parsing that tolerates frames split across reads

const (
	// MaxLineSize bounds a single buffered SSE line (64KB).
	MaxLineSize = 64 * 1024

	readChunkSize = 4096
)

// =============================================================================
// LINE BUFFER
// =============================================================================

// lineBuffer splits incoming bytes on newlines and keeps the trailing
// partial line for the next Feed. Splitting raw bytes on '\n' never breaks
// a UTF-8 sequence.
type lineBuffer struct {
	partial []byte
	dropped int
}

// Feed appends chunk and returns every complete line, without line endings.
func (b *lineBuffer) Feed(chunk []byte) []string {
	var lines []string
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			b.partial = append(b.partial, chunk...)
			break
		}
		line := append(b.partial, chunk[:i]...)
		lines = append(lines, strings.TrimRight(string(line), "\r"))
		b.partial = b.partial[:0]
		chunk = chunk[i+1:]
	}
	// SECURITY: an unterminated line past the limit is discarded.
	if len(b.partial) > MaxLineSize {
		b.partial = b.partial[:0]
		b.dropped++
	}
	return lines
}

// Flush returns the buffered partial line, if any.
func (b *lineBuffer) Flush() (string, bool) {
	if len(b.partial) == 0 {
		return "", false
	}
	line := strings.TrimRight(string(b.partial), "\r")
	b.partial = b.partial[:0]
	return line, true
}

// dataPayload extracts the payload of a "data:" line.
func dataPayload(line string) ([]byte, bool) {
	if !strings.HasPrefix(line, "data:") {
		return nil, false
	}
	return []byte(strings.TrimSpace(line[len("data:"):])), true
}

// =============================================================================
// RELAY
// =============================================================================

// frameDecoder interprets one data payload. It returns the text delta, whether
// the payload ends the stream, and an error. A *StreamParseError is skipped;
// any other error ends the stream with EventError.
type frameDecoder func(data []byte) (delta string, done bool, err error)

// relay reads body until a terminal frame or EOF and forwards events.
// It always closes events and body.
func relay(ctx context.Context, provider string, body io.ReadCloser, decode frameDecoder, events chan<- Event) {
	defer close(events)
	defer body.Close()

	var (
		full    strings.Builder
		lines   lineBuffer
		skipped int
		decoded int
		buf     = make([]byte, readChunkSize)
	)

	emit := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	finish := func() {
		if skipped > 0 || lines.dropped > 0 {
			log.Printf("STREAM_DONE | provider=%s chars=%d skipped=%d", provider, full.Len(), skipped+lines.dropped)
		}
		emit(Event{Kind: EventDone, Text: full.String()})
	}

	// handle processes one line; it returns false when the relay must stop.
	handle := func(line string) bool {
		data, ok := dataPayload(line)
		if !ok || len(data) == 0 {
			return true
		}
		delta, done, err := decode(data)
		if err != nil {
			var parseErr *StreamParseError
			if errors.As(err, &parseErr) {
				skipped++
				return true
			}
			emit(Event{Kind: EventError, Err: err})
			return false
		}
		decoded++
		if delta != "" {
			full.WriteString(delta)
			if !emit(Event{Kind: EventChunk, Text: delta}) {
				return false
			}
		}
		if done {
			finish()
			return false
		}
		return true
	}

	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, line := range lines.Feed(buf[:n]) {
				if !handle(line) {
					return
				}
			}
		}
		if err == nil {
			continue
		}

		if ctx.Err() != nil {
			// Consumer is gone; stop without a terminal event.
			return
		}
		if errors.Is(err, io.EOF) {
			if line, ok := lines.Flush(); ok && !handle(line) {
				return
			}
			if decoded == 0 {
				log.Printf("STREAM_ERROR | provider=%s error=%q skipped=%d", provider, "no data frames", skipped+lines.dropped)
				emit(Event{Kind: EventError, Err: malformed(provider, 0, errors.New("response ended without data frames"))})
				return
			}
			// Body ended without a sentinel: complete with what arrived.
			finish()
			return
		}

		log.Printf("STREAM_ERROR | provider=%s chars=%d error=%q", provider, full.Len(), err.Error())
		emit(Event{Kind: EventError, Err: &ProviderError{
			Provider: provider,
			Message:  "stream interrupted",
			Err:      err,
		}})
		return
	}
}

// startStream sends req on the streaming client and starts the relay.
func startStream(ctx context.Context, client *http.Client, provider string, req *http.Request, decode frameDecoder) (<-chan Event, error) {
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := send(client, provider, req)
	if err != nil {
		return nil, err
	}

	events := make(chan Event)
	go relay(ctx, provider, resp.Body, decode, events)
	return events, nil
}
