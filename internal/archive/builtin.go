package archive

import (
	"context"
	"io"
	"sync"
)

// BuiltinProducer encodes archives in-process with archive/zip. It needs no
// external executable; the encoder runs on its own goroutine and hands bytes
// to the reader through a pipe, so only one chunk is buffered at a time.
type BuiltinProducer struct{}

// Start begins encoding dir.
func (BuiltinProducer) Start(ctx context.Context, dir string) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	p := &builtinProcess{
		r:    pr,
		done: make(chan struct{}),
	}
	go func() {
		err := WriteDirectory(pw, dir)
		pw.CloseWithError(err)
		p.err = err
		close(p.done)
	}()
	return p, nil
}

type builtinProcess struct {
	r    *io.PipeReader
	done chan struct{}
	err  error

	terminateOnce sync.Once
}

func (p *builtinProcess) ReadChunk(buf []byte) (int, error) {
	for {
		n, err := p.r.Read(buf)
		if n > 0 || err != nil {
			return n, err
		}
	}
}

func (p *builtinProcess) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Terminate closes the pipe, which makes the encoder's next write fail, and
// waits for the encoder goroutine to return.
func (p *builtinProcess) Terminate() error {
	p.terminateOnce.Do(func() {
		p.r.CloseWithError(errTerminated)
		<-p.done
	})
	return nil
}

func (p *builtinProcess) Wait() error {
	<-p.done
	if p.err != nil {
		return &ExitError{Err: p.err}
	}
	return nil
}
