package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

const (
	// DefaultCommand is the external compressor used by CommandProducer.
	DefaultCommand = "zip"

	// DefaultTerminateGrace is how long Terminate waits after SIGTERM before
	// killing the archiver outright.
	DefaultTerminateGrace = 2 * time.Second

	stderrTailSize = 4 << 10
)

// DefaultArgs makes zip recurse into the target and write the archive to
// stdout. The target's base name is appended by Start.
var DefaultArgs = []string{"-r", "-"}

// CommandProducer runs an external compressor from the parent of the target,
// passing the target's base name as the last argument. Entry names therefore
// start with the base name, and an empty directory still yields its own
// directory entry.
type CommandProducer struct {
	Name  string
	Args  []string
	Env   []string // appended to the server's environment
	Grace time.Duration
}

// NewCommandProducer returns a producer running "zip -r - <name>".
func NewCommandProducer() *CommandProducer {
	return &CommandProducer{
		Name:  DefaultCommand,
		Args:  DefaultArgs,
		Grace: DefaultTerminateGrace,
	}
}

// Start launches the compressor against dir, which may also name a regular
// file. The child is a direct child of
// this process, started without a shell, and is reaped by the returned
// Process.
func (c *CommandProducer) Start(ctx context.Context, dir string) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := c.Name
	if name == "" {
		name = DefaultCommand
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, &LaunchError{Name: name, Err: fmt.Errorf("creating stdout pipe: %w", err)}
	}

	args := append(slices.Clone(c.Args), filepath.Base(dir))
	cmd := exec.Command(name, args...)
	cmd.Dir = filepath.Dir(dir)
	cmd.Stdout = pw
	stderr := &tailBuffer{max: stderrTailSize}
	cmd.Stderr = stderr
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, &LaunchError{Name: name, Err: err}
	}
	// The child holds its own copy of the write end; EOF on pr arrives when the
	// child exits.
	pw.Close()

	grace := c.Grace
	if grace <= 0 {
		grace = DefaultTerminateGrace
	}

	p := &commandProcess{
		cmd:    cmd,
		stdout: pr,
		stderr: stderr,
		grace:  grace,
		done:   make(chan struct{}),
	}
	go p.reap()
	return p, nil
}

type commandProcess struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr *tailBuffer
	grace  time.Duration

	done    chan struct{}
	waitErr error

	terminateOnce sync.Once
	terminateErr  error
	terminated    atomic.Bool
}

// reap collects the exit status as soon as the child exits. Stdout is an
// *os.File, so Wait does not close the read end underneath ReadChunk.
func (p *commandProcess) reap() {
	p.waitErr = p.cmd.Wait()
	close(p.done)
}

func (p *commandProcess) ReadChunk(buf []byte) (int, error) {
	for {
		n, err := p.stdout.Read(buf)
		if n > 0 || err != nil {
			return n, err
		}
	}
}

func (p *commandProcess) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *commandProcess) Terminate() error {
	p.terminateOnce.Do(func() {
		p.terminateErr = p.terminate()
	})
	return p.terminateErr
}

func (p *commandProcess) terminate() error {
	defer p.stdout.Close()

	if !p.Alive() {
		return nil
	}
	p.terminated.Store(true)

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			<-p.done
			return nil
		}
		return p.kill()
	}

	timer := time.NewTimer(p.grace)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
		return p.kill()
	}
}

func (p *commandProcess) kill() error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing archiver (pid %d): %w", p.cmd.Process.Pid, err)
	}
	<-p.done
	return nil
}

func (p *commandProcess) Wait() error {
	<-p.done
	if p.waitErr == nil {
		return nil
	}
	if p.terminated.Load() {
		return errTerminated
	}
	return &ExitError{Err: p.waitErr, Stderr: p.stderr.String()}
}

// Pid returns the operating system process ID of the archiver.
func (p *commandProcess) Pid() int {
	return p.cmd.Process.Pid
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}

var _ io.Writer = (*tailBuffer)(nil)
