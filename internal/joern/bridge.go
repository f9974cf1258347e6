package joern

import (
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	// promptSentinel is printed by the engine after every completed evaluation.
	// The command channel reads until it reappears.
	promptSentinel = "joern> "

	// DefaultCommandTimeout bounds a single command round trip.
	DefaultCommandTimeout = 2 * time.Minute

	startupTimeout  = 30 * time.Second
	drainWindow     = 100 * time.Millisecond
	openRetries     = 3
	openRetryPause  = 1 * time.Second
	healthCheckCmd  = "1 + 1"
	healthCheckWant = "2"
)

var (
	ansiEscape   = regexp.MustCompile(`\x1B(?:[@-Z\\-_]|\[[0-?]*[ -/]*[@-~])`)
	controlChars = regexp.MustCompile(`[\r\x00-\x08\x0b\x0c\x0e-\x1f\x7f]+`)
	multiNewline = regexp.MustCompile(`\n{2,}`)
)

// session is one live transport to the engine process. The bridge owns exactly
// one at a time; tests substitute a scripted implementation.
type session interface {
	// write sends raw bytes to the engine's input.
	write(p []byte) error
	// output yields chunks of engine output. The channel is closed when the
	// remote side terminates.
	output() <-chan []byte
	// close tears the transport down, tolerating an already-dead session.
	close() error
}

// procSession runs the engine as an interactive child process, with stderr
// merged into stdout so diagnostics are visible to sentinel scanning.
type procSession struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	out   chan []byte
}

func spawnProcess(path string, args ...string) (session, error) {
	cmd := exec.Command(path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open engine stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open engine stdout: %w", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start engine process: %w", err)
	}

	s := &procSession{cmd: cmd, stdin: stdin, out: make(chan []byte, 64)}
	go func() {
		defer close(s.out)
		buf := make([]byte, 8192)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				s.out <- chunk
			}
			if err != nil {
				return
			}
		}
	}()
	return s, nil
}

func (s *procSession) write(p []byte) error {
	_, err := s.stdin.Write(p)
	return err
}

func (s *procSession) output() <-chan []byte { return s.out }

func (s *procSession) close() error {
	// Ask the REPL to exit, then make sure the process is gone.
	_, _ = s.stdin.Write([]byte("exit\n"))
	_ = s.stdin.Close()
	done := make(chan struct{})
	go func() {
		_ = s.cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = s.cmd.Process.Kill()
		<-done
	}
	return nil
}

// Bridge owns the lifecycle of one engine session and frames command/response
// cycles over it. One command is in flight at a time; concurrent callers block
// on the session mutex because the remote protocol has no request framing
// beyond "one command, one response".
type Bridge struct {
	joernPath string
	timeout   time.Duration
	logger    hclog.Logger

	// spawn is replaced in tests with a scripted session factory.
	spawn func() (session, error)

	mu           sync.Mutex
	sess         session
	lastActivity time.Time
}

// NewBridge builds a bridge for the engine binary at joernPath. The timeout is
// the per-command default; zero selects DefaultCommandTimeout.
func NewBridge(joernPath string, timeout time.Duration, logger hclog.Logger) *Bridge {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	b := &Bridge{
		joernPath: joernPath,
		timeout:   timeout,
		logger:    logger.Named("joern-bridge"),
	}
	b.spawn = func() (session, error) {
		return spawnProcess(b.joernPath, "--nocolors")
	}
	return b
}

// Open establishes the engine session, waiting for the first prompt sentinel.
// It is idempotent when already connected and retries a bounded number of
// times with a pause between attempts before giving up.
func (b *Bridge) Open() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openLocked()
}

func (b *Bridge) openLocked() error {
	if b.sess != nil {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= openRetries; attempt++ {
		b.logger.Info("starting engine session", "attempt", attempt, "of", openRetries)
		sess, err := b.spawn()
		if err == nil {
			if _, err = waitFor(sess.output(), promptSentinel, startupTimeout); err == nil {
				b.sess = sess
				b.lastActivity = time.Now()
				b.logger.Info("engine session established")
				return nil
			}
			_ = sess.close()
		}
		lastErr = err
		b.logger.Warn("engine session attempt failed", "attempt", attempt, "error", err)
		if attempt < openRetries {
			time.Sleep(openRetryPause)
		}
	}
	return &ConnectionError{Op: "open", Err: lastErr}
}

// Close terminates the session. A session that is already dead is tolerated.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked()
	b.logger.Info("engine session closed")
	return nil
}

func (b *Bridge) closeLocked() {
	if b.sess != nil {
		_ = b.sess.close()
		b.sess = nil
	}
}

// IsConnected reports session liveness without side effects.
func (b *Bridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sess != nil
}

// EnsureConnected reopens the session if it has been lost.
func (b *Bridge) EnsureConnected() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sess != nil {
		return nil
	}
	b.logger.Warn("engine session lost, reconnecting")
	return b.openLocked()
}

// LastActivity reports when the last successful round trip completed.
func (b *Bridge) LastActivity() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastActivity
}

// HealthCheck issues a trivial round trip and validates the echoed result.
// A failure is recoverable: callers are expected to EnsureConnected and retry
// the original operation once.
func (b *Bridge) HealthCheck() bool {
	out, err := b.Send(healthCheckCmd, 10*time.Second)
	if err != nil {
		b.logger.Warn("engine health check failed", "error", err)
		return false
	}
	return strings.Contains(out, healthCheckWant)
}

// Send writes one command and reads until the prompt sentinel reappears or the
// timeout elapses, then returns the cleaned response text. A zero timeout uses
// the bridge default. Remote termination mid-read surfaces as a
// ConnectionError and marks the session dead; the failed command is not
// retried here - retry policy belongs to the caller.
func (b *Bridge) Send(command string, timeout time.Duration) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", nil
	}
	if timeout <= 0 {
		timeout = b.timeout
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.openLocked(); err != nil {
		return "", err
	}

	// Discard stale buffered output from a prior mis-timed read so it cannot
	// be attributed to this command.
	drain(b.sess.output())

	b.logger.Debug("sending engine command", "command", truncate(command, 200))
	if err := b.sess.write([]byte(command + "\n")); err != nil {
		b.closeLocked()
		return "", &ConnectionError{Op: "write", Err: err}
	}

	raw, err := waitFor(b.sess.output(), promptSentinel, timeout)
	if err != nil {
		if _, ok := err.(*closedErr); ok {
			b.logger.Error("engine terminated mid-command")
			b.closeLocked()
			return "", &ConnectionError{Op: "read", Err: io.EOF}
		}
		b.logger.Error("engine command timed out", "timeout", timeout, "command", truncate(command, 200))
		return "", &TimeoutError{Command: command, Timeout: timeout, Partial: CleanOutput(raw)}
	}

	b.lastActivity = time.Now()
	return CleanOutput(raw), nil
}

// CleanOutput strips ANSI escape sequences and control characters and
// collapses redundant blank lines.
func CleanOutput(raw string) string {
	out := ansiEscape.ReplaceAllString(raw, "")
	out = controlChars.ReplaceAllString(out, "")
	out = multiNewline.ReplaceAllString(out, "\n")
	return strings.TrimSpace(out)
}

// closedErr distinguishes remote termination from a timeout inside waitFor.
type closedErr struct{}

func (*closedErr) Error() string { return "session output closed" }

// waitFor accumulates output chunks until the sentinel appears, returning the
// text before the sentinel. On timeout it returns the partial accumulation and
// a generic error; on channel close it returns a closedErr.
func waitFor(out <-chan []byte, sentinel string, timeout time.Duration) (string, error) {
	var buf strings.Builder
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case chunk, ok := <-out:
			if !ok {
				return buf.String(), &closedErr{}
			}
			buf.Write(chunk)
			if idx := strings.LastIndex(buf.String(), sentinel); idx >= 0 {
				return buf.String()[:idx], nil
			}
		case <-timer.C:
			return buf.String(), fmt.Errorf("sentinel not seen within %v", timeout)
		}
	}
}

// drain consumes whatever output is immediately available, with a short grace
// window so a slow flush from the previous command is still caught.
func drain(out <-chan []byte) {
	deadline := time.After(drainWindow)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return
			}
		case <-deadline:
			return
		default:
			// Nothing pending right now; wait out the grace window for
			// stragglers instead of spinning.
			select {
			case _, ok := <-out:
				if !ok {
					return
				}
			case <-deadline:
				return
			}
		}
	}
}
