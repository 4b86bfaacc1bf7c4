// Package stream writes the newline-delimited JSON envelope the frontend
// consumes. Every response stream is: one metadata frame, zero or more text
// frames, then exactly one terminal frame (done or error).
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"chatgate-backend/internal/llm"
	"chatgate-backend/internal/models"
)

// Sink is the write side of a response stream. Tool executors receive it so
// they can emit text without knowing about HTTP.
type Sink interface {
	Metadata(frame models.MetadataFrame) error
	Text(content string) error
	Done() error
	Error(message string, status int) error
}

type textFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type doneFrame struct {
	Type string `json:"type"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// Emitter streams frames over a single HTTP response. Not safe for concurrent
// writers; the handler owns it for the lifetime of the request.
type Emitter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	enc     *json.Encoder
	started bool
}

func NewEmitter(w http.ResponseWriter) *Emitter {
	flusher, _ := w.(http.Flusher)
	return &Emitter{w: w, flusher: flusher, enc: json.NewEncoder(w)}
}

// Started reports whether any frame has been written. Once true, HTTP-level
// error responses are no longer possible and failures must go through Error.
func (e *Emitter) Started() bool {
	return e.started
}

func (e *Emitter) write(frame any) error {
	if !e.started {
		e.w.Header().Set("Content-Type", "application/x-ndjson")
		e.w.Header().Set("Cache-Control", "no-cache")
		e.w.Header().Set("X-Accel-Buffering", "no")
		e.started = true
	}
	if err := e.enc.Encode(frame); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

func (e *Emitter) Metadata(frame models.MetadataFrame) error {
	return e.write(frame)
}

func (e *Emitter) Text(content string) error {
	return e.write(textFrame{Type: "text", Content: content})
}

func (e *Emitter) Done() error {
	return e.write(doneFrame{Type: "done"})
}

func (e *Emitter) Error(message string, status int) error {
	return e.write(errorFrame{Type: "error", Message: message, Status: status})
}

// Pipe drains provider chunks into the stream and writes the terminal frame.
// A mid-stream provider error becomes an error frame; client disconnects just
// stop the drain.
func (e *Emitter) Pipe(ctx context.Context, chunks <-chan llm.StreamChunk) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-chunks:
			if !ok {
				if err := e.Done(); err != nil {
					log.Printf("stream: write done frame: %v", err)
				}
				return
			}
			if chunk.Err != nil {
				log.Printf("stream: provider error mid-stream: %v", chunk.Err)
				status := http.StatusInternalServerError
				var httpErr *llm.HTTPStatusError
				if errors.As(chunk.Err, &httpErr) {
					status = httpErr.HTTPStatusCode()
				}
				if err := e.Error("An error occurred while streaming the response", status); err != nil {
					log.Printf("stream: write error frame: %v", err)
				}
				return
			}
			if content := chunk.Content(); content != "" {
				if err := e.Text(content); err != nil {
					log.Printf("stream: write text frame: %v", err)
					return
				}
			}
		}
	}
}
