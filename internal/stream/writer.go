package stream

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"time"
)

// DefaultFilename is the name offered to clients for downloaded archives.
const DefaultFilename = "archive.zip"

var (
	// ErrClientDisconnected reports that the peer went away mid-stream.
	ErrClientDisconnected = errors.New("client disconnected")

	// ErrClosed reports a write to a Writer that was already closed.
	ErrClosed = errors.New("response stream closed")
)

// Writer sends an archive of unknown length to an HTTP client as a sequence
// of flushed chunks. Writers are not safe for concurrent use.
type Writer struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	closed  bool
	aborted bool
	chunks  int
	bytes   int64
}

// Begin declares an attachment response of unknown length and flushes the
// headers before any body bytes are sent. Without a Content-Length, net/http
// uses chunked transfer encoding for the body.
func Begin(w http.ResponseWriter, filename string) (*Writer, error) {
	if filename == "" {
		filename = DefaultFilename
	}

	h := w.Header()
	h.Set("Content-Type", fmt.Sprintf("attachment; filename=%q", filename))
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	h.Set("Connection", "close")
	h.Del("Content-Length")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		return nil, fmt.Errorf("%w: flushing headers: %v", ErrClientDisconnected, err)
	}

	return &Writer{w: w, rc: rc}, nil
}

// WriteChunk sends p to the client and flushes it. The call blocks while the
// connection is backpressured.
func (sw *Writer) WriteChunk(p []byte) error {
	if sw.closed {
		return ErrClosed
	}
	if len(p) == 0 {
		return nil
	}

	n, err := sw.w.Write(p)
	sw.bytes += int64(n)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrClientDisconnected, err)
	}
	if err := sw.rc.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrClientDisconnected, err)
	}
	sw.chunks++
	return nil
}

// Close ends the stream. It is unconditional and idempotent: later writes
// fail with ErrClosed whichever way the stream ended. With abort set, the
// connection's write deadline is moved to now, so the terminating chunk of
// the body can no longer be sent and the client sees a truncated response.
func (sw *Writer) Close(abort bool) {
	if sw.closed {
		return
	}
	sw.closed = true
	sw.aborted = abort
	if abort {
		sw.interrupt()
	}
}

// Aborted reports whether the stream was closed as failed.
func (sw *Writer) Aborted() bool { return sw.aborted }

// Chunks returns the number of chunks delivered.
func (sw *Writer) Chunks() int { return sw.chunks }

// Bytes returns the number of body bytes handed to the connection.
func (sw *Writer) Bytes() int64 { return sw.bytes }

// interrupt unblocks a pending write. Not every ResponseWriter supports
// deadlines; those simply keep blocking until the connection is torn down.
func (sw *Writer) interrupt() {
	_ = sw.rc.SetWriteDeadline(time.Now())
}
