package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testutil "github.com/trezcool/tutorias/tests"
)

const waitFor = 2 * time.Second

type testHub struct {
	*Hub
	srv    *httptest.Server
	conns  chan *Conn
	frames chan Frame
}

func newTestHub(t *testing.T) *testHub {
	th := &testHub{
		Hub:    NewHub(new(testutil.Logger), Options{}),
		conns:  make(chan *Conn, 4),
		frames: make(chan Frame, 16),
	}
	th.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := th.Upgrade(w, r)
		if err != nil {
			return
		}
		th.conns <- c
		c.ReadLoop(func(f Frame) { th.frames <- f }, nil)
	}))
	t.Cleanup(func() {
		th.Shutdown()
		th.srv.Close()
	})
	return th
}

func (th *testHub) dial(t *testing.T) (*websocket.Conn, *Conn) {
	url := "ws" + strings.TrimPrefix(th.srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	select {
	case c := <-th.conns:
		return ws, c
	case <-time.After(waitFor):
		t.Fatal("session not registered")
	}
	return nil, nil
}

func readFrame(t *testing.T, ws *websocket.Conn) Frame {
	_ = ws.SetReadDeadline(time.Now().Add(waitFor))
	var f Frame
	require.NoError(t, ws.ReadJSON(&f))
	return f
}

func TestHub_Emit(t *testing.T) {
	th := newTestHub(t)
	ws, c := th.dial(t)

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, 1, th.Len())

	require.NoError(t, th.Emit(c.ID, "saludo", map[string]int{"n": 1}))
	f := readFrame(t, ws)
	assert.Equal(t, "saludo", f.Event)
	assert.JSONEq(t, `{"n":1}`, string(f.Data))

	assert.Equal(t, ErrSessionGone, th.Emit("unknown", "saludo", nil))
}

func TestHub_ReadLoop(t *testing.T) {
	th := newTestHub(t)
	ws, _ := th.dial(t)

	require.NoError(t, ws.WriteJSON(map[string]interface{}{"event": "latido", "data": map[string]int{"x": 2}}))
	select {
	case f := <-th.frames:
		assert.Equal(t, "latido", f.Event)
		assert.JSONEq(t, `{"x":2}`, string(f.Data))
	case <-time.After(waitFor):
		t.Fatal("frame not received")
	}

	tests := []struct {
		name string
		msg  string
	}{
		{name: "not json", msg: "hola"},
		{name: "no event", msg: `{"data":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(tt.msg)))
			f := readFrame(t, ws)
			assert.Equal(t, EventError, f.Event)

			var data ErrorData
			require.NoError(t, json.Unmarshal(f.Data, &data))
			assert.Equal(t, "mensaje inválido", data.Message)
		})
	}
	assert.Empty(t, th.frames)
}

func TestHub_Disconnect(t *testing.T) {
	th := newTestHub(t)
	ws, c := th.dial(t)

	assert.True(t, th.Disconnect(c.ID))
	assert.False(t, th.Disconnect(c.ID))
	assert.Equal(t, 0, th.Len())
	assert.Equal(t, ErrSessionGone, c.Emit("saludo", nil))

	_ = ws.SetReadDeadline(time.Now().Add(waitFor))
	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestHub_ClientClose(t *testing.T) {
	th := newTestHub(t)
	ws, c := th.dial(t)

	require.NoError(t, ws.Close())
	select {
	case <-c.Done():
	case <-time.After(waitFor):
		t.Fatal("session not closed")
	}
	assert.Equal(t, 0, th.Len())
}

func TestConn_UserID(t *testing.T) {
	th := newTestHub(t)
	_, c := th.dial(t)

	assert.Equal(t, 0, c.UserID())
	c.SetUserID(7)
	assert.Equal(t, 7, c.UserID())
}
