// Package transport owns the browser child process lifecycle and the
// bidirectional byte pipe used to talk to it.
package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creack/pty"
	"golang.org/x/time/rate"
)

// defaultSendRateLimit bounds how fast Send will hand lines to the child's
// stdin, as a last line of defense against a runaway caller (e.g. a
// misbehaving repeat loop) saturating the child's input queue.
const defaultSendRateLimit = rate.Limit(200) // lines/sec
const defaultSendBurst = 50

// CmdFactory builds the exec.Cmd used to launch the browser child. A nil
// factory falls back to exec.CommandContext; a non-nil one lets callers
// run the child under a sandbox wrapper.
type CmdFactory func(ctx context.Context, name string, args []string) (*exec.Cmd, error)

// LaunchOptions describes how to spawn the browser child:
// argv = wrapper_args... + [monkey_path] + launch_options.
type LaunchOptions struct {
	MonkeyPath    string
	WrapperArgs   []string
	LaunchOptions []string
	Env           map[string]string // overlaid onto the current environment
	UsePTY        bool              // launch under a pty instead of plain pipes
	CmdFactory    CmdFactory
}

func (o LaunchOptions) argv() (name string, args []string) {
	full := append(append([]string{}, o.WrapperArgs...), o.MonkeyPath)
	full = append(full, o.LaunchOptions...)
	return full[0], full[1:]
}

func (o LaunchOptions) environ() []string {
	env := os.Environ()
	for k, v := range o.Env {
		env = append(env, k+"="+v)
	}
	return env
}

// Transport is a full-duplex byte pipe to a spawned child process. It is
// safe to call Send and IsDead from any goroutine; Close is idempotent.
type Transport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	ptyF   *os.File // set only when launched under a pty
	lines  chan string
	dead   atomic.Bool
	closed atomic.Bool

	mu       sync.Mutex
	closeErr error
	once     sync.Once

	limiter *rate.Limiter
}

// Spawn launches the browser child and begins reading lines from its
// stdout in the background. Spawn failure is a hard error surfaced
// directly to the Session constructor.
func Spawn(ctx context.Context, opts LaunchOptions) (*Transport, error) {
	name, args := opts.argv()

	var cmd *exec.Cmd
	var err error
	if opts.CmdFactory != nil {
		cmd, err = opts.CmdFactory(ctx, name, args)
		if err != nil {
			return nil, fmt.Errorf("sandbox exec: %w", err)
		}
	} else {
		cmd = exec.CommandContext(ctx, name, args...)
	}
	cmd.Env = opts.environ()

	t := &Transport{
		cmd:     cmd,
		lines:   make(chan string, 256),
		limiter: rate.NewLimiter(defaultSendRateLimit, defaultSendBurst),
	}

	if opts.UsePTY {
		f, err := pty.Start(cmd)
		if err != nil {
			return nil, fmt.Errorf("pty start: %w", err)
		}
		t.ptyF = f
		t.stdin = f
		go t.readLoop(f)
		return t, nil
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start monkey child: %w", err)
	}
	t.stdin = stdin

	go t.readLoop(stdout)

	return t, nil
}

func (t *Transport) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		select {
		case t.lines <- line:
		default:
			// Reader outpacing the pump; block until there's room rather
			// than drop a protocol line.
			t.lines <- line
		}
	}
	t.dead.Store(true)
	close(t.lines)
}

// Lines returns the channel of complete inbound lines, in arrival order.
// It is closed when the child dies or EOFs.
func (t *Transport) Lines() <-chan string {
	return t.lines
}

// Send writes a single protocol line (without its trailing LF, which Send
// appends) to the child's stdin. Writes are attempted non-blockingly where
// the platform supports polling for write-readiness (see pollWritable);
// elsewhere the write blocks until the child accepts it.
func (t *Transport) Send(line string) error {
	if t.dead.Load() || t.closed.Load() {
		return fmt.Errorf("transport: child is dead")
	}
	waitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := t.limiter.Wait(waitCtx); err != nil {
		return fmt.Errorf("transport: send rate limit: %w", err)
	}
	if f, ok := t.stdin.(interface{ Fd() uintptr }); ok {
		writable, err := pollWritable(f.Fd(), 2*time.Second)
		if err != nil {
			return fmt.Errorf("transport: poll writable: %w", err)
		}
		if !writable {
			return fmt.Errorf("transport: write timed out")
		}
	}
	if _, err := io.WriteString(t.stdin, line+"\n"); err != nil {
		t.dead.Store(true)
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// IsDead reports whether the child has exited or the transport has
// observed EOF/a write failure.
func (t *Transport) IsDead() bool {
	return t.dead.Load()
}

// Close closes the outbound side, waits up to timeout for the child to
// exit, and force-kills it if it has not exited by the deadline. Close is
// idempotent. It does not read the child's remaining output itself, and it
// does not wait for the background reader to reach EOF before reaping.
func (t *Transport) Close(timeout time.Duration) error {
	t.once.Do(func() {
		t.closed.Store(true)
		t.stdin.Close()

		waitDone := make(chan error, 1)
		go func() { waitDone <- t.cmd.Wait() }()

		select {
		case err := <-waitDone:
			t.closeErr = err
		case <-time.After(timeout):
			if t.cmd.Process != nil {
				_ = t.cmd.Process.Kill()
			}
			t.closeErr = <-waitDone
		}
		t.dead.Store(true)
		if t.ptyF != nil {
			t.ptyF.Close()
		}
	})
	return t.closeErr
}
