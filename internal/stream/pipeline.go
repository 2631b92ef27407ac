// Package stream delivers directory archives to HTTP clients chunk by chunk.
//
// A Pipeline validates the requested directory, starts an archiver for it and
// copies the archive to a chunked response, optionally pacing the chunks.
// Whatever ends the stream (completion, client disconnect, cancellation or an
// archiver failure), the archiver is stopped before the response is closed.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"

	"github.com/Linaname/async-download-service/internal/archive"
	"github.com/Linaname/async-download-service/internal/logging"
)

// ErrNotFound reports that the requested archive directory does not exist.
var ErrNotFound = errors.New("archive does not exist or was deleted")

// State is the stage a Pipeline run reached.
type State int

const (
	StateValidating State = iota
	StateStreaming
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateValidating:
		return "validating"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options configures a Pipeline.
type Options struct {
	RootDir   string
	ChunkSize int
	Delay     time.Duration
	Filename  string
}

// Request identifies the directory behind an archive ID.
type Request struct {
	ID   string
	Path string
}

// Result describes how a Pipeline run ended. Aborted is set when the response
// had begun and was closed as failed; the caller must then drop the
// connection rather than finish the body.
type Result struct {
	Request
	State        State
	Disconnected bool
	Aborted      bool
	Chunks       int
	Bytes        int64
	Duration     time.Duration
}

// Pipeline streams archives of directories below a root directory.
type Pipeline struct {
	opts     Options
	producer archive.Producer
	log      logr.Logger
}

// NewPipeline creates a Pipeline. A non-positive chunk size is rejected.
func NewPipeline(opts Options, producer archive.Producer, log logr.Logger) (*Pipeline, error) {
	if opts.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", opts.ChunkSize)
	}
	if opts.Delay < 0 {
		return nil, fmt.Errorf("delay must not be negative, got %s", opts.Delay)
	}
	if opts.Filename == "" {
		opts.Filename = DefaultFilename
	}
	return &Pipeline{opts: opts, producer: producer, log: log}, nil
}

// Resolve maps an archive ID to a directory below the root.
//
// The ID is joined to the root as given. IDs containing ".." can therefore
// name directories outside the root.
func (p *Pipeline) Resolve(id string) (Request, error) {
	req := Request{ID: id, Path: filepath.Join(p.opts.RootDir, id)}
	if _, err := os.Stat(req.Path); err != nil {
		return req, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return req, nil
}

// Serve streams the archive for id to w.
//
// Before anything is written it may fail with ErrNotFound or an
// *archive.LaunchError; the caller owns the response in that case. Once the
// response has begun, a client disconnect is absorbed and Serve returns nil.
// net/http reports a hang-up by canceling the request context without a
// cause, so a plain context.Canceled counts as a disconnect too. Any other
// cancellation of ctx, such as a deadline or a shutdown cause, is returned as
// the context's cause after cleanup. An archiver failure is returned as
// *archive.ExitError. In both error cases the result's State is StateAborted
// and Aborted is set.
func (p *Pipeline) Serve(ctx context.Context, w http.ResponseWriter, id string) (res Result, err error) {
	start := time.Now()
	res.ID = id
	res.State = StateValidating
	defer func() { res.Duration = time.Since(start) }()

	req, err := p.Resolve(id)
	res.Request = req
	if err != nil {
		return res, err
	}

	res.State = StateStreaming
	proc, err := p.producer.Start(ctx, req.Path)
	if err != nil {
		res.State = StateAborted
		return res, err
	}

	var sw *Writer
	defer func() {
		if res.State != StateCompleted {
			res.State = StateAborted
		}
		p.cleanup(proc, sw, res.State)
		if sw != nil {
			res.Aborted = sw.Aborted()
			res.Chunks = sw.Chunks()
			res.Bytes = sw.Bytes()
		}
	}()

	sw, err = Begin(w, p.opts.Filename)
	if err != nil {
		res.Disconnected = true
		p.log.V(logging.DEBUG).Info("Client went away before streaming started", "id", id, "error", err.Error())
		return res, nil
	}

	err = p.stream(ctx, proc, sw)
	switch {
	case err == nil:
		res.State = StateCompleted
		p.log.V(logging.DEBUG).Info("Sending archive finished", "id", id)
		return res, nil
	case errors.Is(err, ErrClientDisconnected):
		res.Disconnected = true
		p.log.V(logging.DEBUG).Info("Sending archive was interrupted", "id", id, "reason", err.Error())
		return res, nil
	default:
		return res, err
	}
}

// stream copies archive chunks from proc to sw until end of stream.
func (p *Pipeline) stream(ctx context.Context, proc archive.Process, sw *Writer) error {
	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(interrupted)
		_ = proc.Terminate()
		sw.interrupt()
	})
	defer func() {
		// The callback touches the connection; it must finish before the
		// handler returns.
		if !stop() {
			<-interrupted
		}
	}()

	buf := make([]byte, p.opts.ChunkSize)
	for {
		n, readErr := proc.ReadChunk(buf)
		if ctx.Err() != nil {
			return cancelErr(ctx)
		}

		if n > 0 {
			p.log.V(logging.DEBUG).Info("Sending archive chunk", "bytes", n)
			if err := sw.WriteChunk(buf[:n]); err != nil {
				if ctx.Err() != nil {
					return cancelErr(ctx)
				}
				return err
			}
		}

		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return fmt.Errorf("reading archive: %w", readErr)
		}

		if p.opts.Delay > 0 {
			if err := sleep(ctx, p.opts.Delay); err != nil {
				return err
			}
		}
	}

	if err := proc.Wait(); err != nil {
		return err
	}
	return nil
}

// cleanup stops the archiver before closing the response, so nothing is
// written after teardown begins.
func (p *Pipeline) cleanup(proc archive.Process, sw *Writer, state State) {
	if proc.Alive() {
		p.log.V(logging.DEBUG).Info("Terminating archiver")
	}
	if err := proc.Terminate(); err != nil {
		p.log.Error(err, "Failed to terminate archiver")
	}
	if sw != nil {
		sw.Close(state != StateCompleted)
	}
}

// cancelErr returns why ctx ended. A cancellation without a cause is how
// net/http signals that the client hung up, so it maps to
// ErrClientDisconnected.
func cancelErr(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == context.Canceled {
		return fmt.Errorf("%w: %v", ErrClientDisconnected, cause)
	}
	return cause
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return cancelErr(ctx)
	case <-timer.C:
		return nil
	}
}
