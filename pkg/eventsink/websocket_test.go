package eventsink

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

	"github.com/aminofox/hlspack/pkg/pipeline"
)

// dialTestSink upgrades an in-process HTTP test server connection and
// returns the client-side sink plus the channel the server delivers
// received messages on.
func dialTestSink(t *testing.T) (*WebSocketSink, <-chan []byte) {
	t.Helper()

	received := make(chan []byte, 16)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- msg
		}
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	sink := NewWebSocketSink(conn, nil)
	t.Cleanup(func() { sink.Close() })
	return sink, received
}

func TestSendDeliversJSONEnvelope(t *testing.T) {
	sink, received := dialTestSink(t)

	err := sink.Send(pipeline.Event{
		Type:         pipeline.EventSegmentProduced,
		SegmentIndex: 7,
		Duration:     6.0,
		ByteSize:     1234,
	})
	require.NoError(t, err)

	select {
	case msg := <-received:
		var env Envelope
		require.NoError(t, json.Unmarshal(msg, &env))
		assert.Equal(t, "segment_produced", env.Type)
		assert.EqualValues(t, 7, env.SegmentIndex)
		assert.EqualValues(t, 1234, env.ByteSize)
	case <-time.After(time.Second):
		t.Fatal("server never received the event")
	}

	assert.EqualValues(t, 1, sink.Stats().MessagesSent)
}

func TestSendStateChangedCarriesStateName(t *testing.T) {
	sink, received := dialTestSink(t)

	require.NoError(t, sink.Send(pipeline.Event{
		Type:  pipeline.EventStateChanged,
		State: pipeline.StateRunning,
	}))

	select {
	case msg := <-received:
		var env Envelope
		require.NoError(t, json.Unmarshal(msg, &env))
		assert.Equal(t, "state_changed", env.Type)
		assert.Equal(t, "running", env.State)
	case <-time.After(time.Second):
		t.Fatal("server never received the event")
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	sink, _ := dialTestSink(t)
	require.NoError(t, sink.Close())

	err := sink.Send(pipeline.Event{Type: pipeline.EventWarning, Message: "late"})
	assert.Error(t, err)
}
