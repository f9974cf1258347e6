package joern

import (
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptSession is a scripted engine transport. Each write pops the next
// canned response onto the output channel; closeOnWrite simulates the process
// dying mid-command.
type scriptSession struct {
	out          chan []byte
	responses    []string
	writes       []string
	closeOnWrite bool
	closed       bool
}

func newScriptSession(responses ...string) *scriptSession {
	return &scriptSession{out: make(chan []byte, 64), responses: responses}
}

func (s *scriptSession) write(p []byte) error {
	s.writes = append(s.writes, string(p))
	if s.closeOnWrite {
		if !s.closed {
			s.closed = true
			close(s.out)
		}
		return nil
	}
	if len(s.responses) > 0 {
		r := s.responses[0]
		s.responses = s.responses[1:]
		s.out <- []byte(r)
	}
	return nil
}

func (s *scriptSession) output() <-chan []byte { return s.out }

func (s *scriptSession) close() error {
	if !s.closed {
		s.closed = true
		close(s.out)
	}
	return nil
}

func newTestBridge(t *testing.T, sess *scriptSession) *Bridge {
	t.Helper()
	b := NewBridge("joern", 2*time.Second, hclog.NewNullLogger())
	b.spawn = func() (session, error) {
		// Seed the startup prompt the open sequence waits for.
		sess.out <- []byte(promptSentinel)
		return sess, nil
	}
	require.NoError(t, b.Open())
	return b
}

func TestSendReturnsCleanedOutput(t *testing.T) {
	sess := newScriptSession("\x1b[34mres0\x1b[0m: Int = 2\r\n\r\n\r\nextra\r\n" + promptSentinel)
	b := newTestBridge(t, sess)

	out, err := b.Send("1 + 1", 0)
	require.NoError(t, err)
	assert.Equal(t, "res0: Int = 2\nextra", out)
	assert.NotContains(t, out, "\x1b")
	assert.NotContains(t, out, "\r")
}

func TestSendEmptyCommandIsNoop(t *testing.T) {
	sess := newScriptSession()
	b := newTestBridge(t, sess)

	out, err := b.Send("   ", 0)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, sess.writes)
}

func TestSendTimeoutKeepsPartialOutput(t *testing.T) {
	sess := newScriptSession("partial output without a prompt")
	b := newTestBridge(t, sess)

	_, err := b.Send("slow command", 300*time.Millisecond)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Contains(t, timeoutErr.Partial, "partial output")
	// A timeout does not kill the session.
	assert.True(t, b.IsConnected())
}

func TestSendDisconnectMarksSessionDead(t *testing.T) {
	sess := newScriptSession()
	sess.closeOnWrite = true
	b := newTestBridge(t, sess)

	_, err := b.Send("importCode(\"/x\")", 0)
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))
	assert.False(t, b.IsConnected())
}

func TestSendDrainsStaleOutput(t *testing.T) {
	sess := newScriptSession("res1: Int = 7\n" + promptSentinel)
	b := newTestBridge(t, sess)

	// Stale leftovers from a mis-timed earlier read.
	sess.out <- []byte("old noise from a previous command\n" + promptSentinel)

	out, err := b.Send("3 + 4", 0)
	require.NoError(t, err)
	assert.Equal(t, "res1: Int = 7", out)
	assert.NotContains(t, out, "old noise")
}

func TestHealthCheck(t *testing.T) {
	sess := newScriptSession(
		"res2: Int = 2\n"+promptSentinel,
		"res3: Int = 3\n"+promptSentinel,
	)
	b := newTestBridge(t, sess)

	assert.True(t, b.HealthCheck())
	// Echo without the expected result fails the check.
	assert.False(t, b.HealthCheck())
}

func TestEnsureConnectedReopens(t *testing.T) {
	sess := newScriptSession()
	sess.closeOnWrite = true
	b := newTestBridge(t, sess)

	_, err := b.Send("anything", 0)
	require.Error(t, err)
	require.False(t, b.IsConnected())

	fresh := newScriptSession()
	b.spawn = func() (session, error) {
		fresh.out <- []byte(promptSentinel)
		return fresh, nil
	}
	require.NoError(t, b.EnsureConnected())
	assert.True(t, b.IsConnected())
}

func TestOpenIsIdempotent(t *testing.T) {
	sess := newScriptSession()
	b := newTestBridge(t, sess)

	spawned := false
	b.spawn = func() (session, error) {
		spawned = true
		return nil, nil
	}
	require.NoError(t, b.Open())
	assert.False(t, spawned)
}

func TestCleanOutput(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want string
	}{
		{name: "ANSI colors", in: "\x1b[31mred\x1b[0m text", want: "red text"},
		{name: "carriage returns", in: "line one\r\nline two\r\n", want: "line one\nline two"},
		{name: "blank line runs", in: "a\n\n\n\nb", want: "a\nb"},
		{name: "already clean", in: "plain", want: "plain"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CleanOutput(tc.in))
		})
	}
}
