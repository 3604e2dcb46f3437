package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var errTransportClosed = errors.New("transport closed")

// fakeTransport is an in-memory Transport for exercising the manager
// without a network.
type fakeTransport struct {
	mu          sync.Mutex
	writes      [][]byte
	failWrites  bool
	closed      bool
	closeCode   int
	closeReason string

	reads     chan []byte
	readsOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{reads: make(chan []byte, 16)}
}

func (t *fakeTransport) ReadMessage() ([]byte, error) {
	msg, ok := <-t.reads
	if !ok {
		return nil, errTransportClosed
	}
	return msg, nil
}

func (t *fakeTransport) WriteMessage(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.failWrites {
		return errTransportClosed
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	t.writes = append(t.writes, buf)
	return nil
}

func (t *fakeTransport) WriteClose(code int, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeCode = code
	t.closeReason = reason
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.readsOnce.Do(func() { close(t.reads) })
	return nil
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// push queues a frame for ReadMessage.
func (t *fakeTransport) push(raw []byte) {
	t.reads <- raw
}

// sentEnvelope is the decoded shape of captured writes.
type sentEnvelope struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
	ID        string         `json:"id"`
}

func (t *fakeTransport) sent(tb testing.TB) []sentEnvelope {
	tb.Helper()
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]sentEnvelope, 0, len(t.writes))
	for _, raw := range t.writes {
		var env sentEnvelope
		require.NoError(tb, json.Unmarshal(raw, &env))
		out = append(out, env)
	}
	return out
}

// lastSent returns the most recent write, failing the test if none exists.
func (t *fakeTransport) lastSent(tb testing.TB) sentEnvelope {
	tb.Helper()
	envs := t.sent(tb)
	require.NotEmpty(tb, envs)
	return envs[len(envs)-1]
}

// clearWrites drops captured writes (e.g. the connection.established
// greeting) so assertions see only what a test case produced.
func (t *fakeTransport) clearWrites() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes = nil
}
