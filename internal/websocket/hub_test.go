package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T, source func() interface{}, period time.Duration) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(source, period, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r)
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_ConnectAndPush(t *testing.T) {
	source := func() interface{} { return map[string]string{"status": "in:1"} }
	hub, srv := startHub(t, source, 20*time.Millisecond)

	conn := dial(t, srv)

	assert.Equal(t, MessageTypeConnected, readMessage(t, conn).Type)

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeStatus, msg.Type)
	assert.JSONEq(t, `{"status":"in:1"}`, string(msg.Data))

	// 周期推送
	assert.Equal(t, MessageTypeStatus, readMessage(t, conn).Type)
	assert.Eventually(t, func() bool { return hub.GetOnlineCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestHub_PublishSetting(t *testing.T) {
	hub, srv := startHub(t, nil, time.Hour)
	conn := dial(t, srv)
	assert.Equal(t, MessageTypeConnected, readMessage(t, conn).Type)

	require.Eventually(t, func() bool { return hub.GetOnlineCount() == 1 }, time.Second, 10*time.Millisecond)
	hub.PublishSetting("ENABLE_UDP", "true")

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeSetting, msg.Type)
	assert.JSONEq(t, `{"id":"ENABLE_UDP","value":"true"}`, string(msg.Data))
}

func TestClient_PingPong(t *testing.T) {
	_, srv := startHub(t, nil, time.Hour)
	conn := dial(t, srv)
	assert.Equal(t, MessageTypeConnected, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, MessageTypePong, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	assert.Equal(t, MessageTypeError, readMessage(t, conn).Type)
}

func TestHub_Unregister(t *testing.T) {
	hub, srv := startHub(t, nil, time.Hour)
	conn := dial(t, srv)
	readMessage(t, conn)

	require.Eventually(t, func() bool { return hub.GetOnlineCount() == 1 }, time.Second, 10*time.Millisecond)
	conn.Close()
	assert.Eventually(t, func() bool { return hub.GetOnlineCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
