package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikasavnish/stockmemo/internal/realtime"
	"github.com/vikasavnish/stockmemo/internal/utils"
)

func withUser(userID string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next(w, r.WithContext(utils.SetUserIDToContext(r.Context(), userID)))
	})
}

func TestHubStreamsUserChanges(t *testing.T) {
	bus := realtime.NewBus()
	hub := NewHub(bus, nil)
	srv := httptest.NewServer(withUser("u1", hub.HandleWebSocket))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount("u1") == 1 }, time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, realtime.Change{Table: "memos", Type: realtime.Insert, UserID: "u2", RecordID: "other"}))
	require.NoError(t, bus.Publish(ctx, realtime.Change{Table: "stocks", Type: realtime.Update, UserID: "u1", RecordID: "s1"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got realtime.Change
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "s1", got.RecordID)
	assert.Equal(t, realtime.Update, got.Type)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount("u1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubRejectsAnonymous(t *testing.T) {
	hub := NewHub(realtime.NewBus(), nil)
	rec := httptest.NewRecorder()
	hub.HandleWebSocket(rec, httptest.NewRequest("GET", "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
