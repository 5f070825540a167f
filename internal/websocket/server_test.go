package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfleet/flightsync/internal/flight"
	"github.com/skyfleet/flightsync/pkg/logger"
)

func startHub(t *testing.T) (*Server, string) {
	t.Helper()
	s := NewServer(logger.NewNop())
	go s.Run()
	t.Cleanup(s.Stop)

	ts := httptest.NewServer(http.HandlerFunc(s.HandleConnection))
	t.Cleanup(ts.Close)
	return s, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *gws.Conn {
	t.Helper()
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *gws.Conn) *Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return &msg
}

func waitForClients(t *testing.T, s *Server, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", want, s.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	s, url := startHub(t)

	c1 := dial(t, url)
	c2 := dial(t, url)
	waitForClients(t, s, 2)

	s.Broadcast(&Message{Type: "test", Data: map[string]any{"n": 1}})

	for _, conn := range []*gws.Conn{c1, c2} {
		msg := readMessage(t, conn)
		assert.Equal(t, "test", msg.Type)
		assert.Equal(t, float64(1), msg.Data["n"])
	}
}

func TestFlightsUpdatedSplitsOwnedAndShadow(t *testing.T) {
	s, url := startHub(t)

	conn := dial(t, url)
	waitForClients(t, s, 1)

	userID := int64(7)
	s.FlightsUpdated(context.Background(), []*flight.Flight{
		{ID: 1, UserID: &userID, Airline: "AC", Number: "856"},
		{ID: 2, UserID: nil, Airline: "AC", Number: "856"},
	})

	first := readMessage(t, conn)
	second := readMessage(t, conn)

	types := []string{first.Type, second.Type}
	assert.Contains(t, types, MessageTypeFlightsUpdated)
	assert.Contains(t, types, MessageTypeShadowsUpdated)

	for _, msg := range []*Message{first, second} {
		flights, ok := msg.Data["flights"].([]any)
		require.True(t, ok)
		assert.Len(t, flights, 1)
	}
}

func TestFlightsUpdatedNoShadowsSingleMessage(t *testing.T) {
	s, url := startHub(t)

	conn := dial(t, url)
	waitForClients(t, s, 1)

	userID := int64(7)
	s.FlightsUpdated(context.Background(), []*flight.Flight{
		{ID: 1, UserID: &userID},
	})

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeFlightsUpdated, msg.Type)

	// No second message should arrive.
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var extra Message
	assert.Error(t, conn.ReadJSON(&extra))
}

func TestClientDisconnectUnregisters(t *testing.T) {
	s, url := startHub(t)

	conn := dial(t, url)
	waitForClients(t, s, 1)

	conn.Close()
	waitForClients(t, s, 0)
}

func TestStopDisconnectsClients(t *testing.T) {
	s, url := startHub(t)

	conn := dial(t, url)
	waitForClients(t, s, 1)

	s.Stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.Equal(t, 0, s.ClientCount())
}
