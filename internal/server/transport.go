package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

// wsTransport adapts a gorilla connection to realtime.Transport. Reads carry
// a rolling deadline so a silent peer fails the read loop without waiting
// for the heartbeat reaper; writes are serialized because broadcasts and
// router replies arrive from different goroutines.
type wsTransport struct {
	conn         *websocket.Conn
	clock        clockwork.Clock
	readTimeout  time.Duration
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newWSTransport(conn *websocket.Conn, clock clockwork.Clock, readTimeout, writeTimeout time.Duration) *wsTransport {
	return &wsTransport{
		conn:         conn,
		clock:        clock,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	if err := t.conn.SetReadDeadline(t.clock.Now().Add(t.readTimeout)); err != nil {
		return nil, err
	}
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	_ = t.conn.SetWriteDeadline(t.clock.Now().Add(t.writeTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) WriteClose(code int, reason string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	msg := websocket.FormatCloseMessage(code, reason)
	_ = t.conn.SetWriteDeadline(t.clock.Now().Add(t.writeTimeout))
	return t.conn.WriteMessage(websocket.CloseMessage, msg)
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.conn.Close()
	})
	return err
}
