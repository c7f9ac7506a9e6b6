package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, c *Client) (Event, bool) {
	t.Helper()
	select {
	case msg, ok := <-c.Send:
		if !ok {
			return Event{}, false
		}
		var evt Event
		require.NoError(t, json.Unmarshal(msg, &evt))
		return evt, true
	case <-time.After(200 * time.Millisecond):
		return Event{}, false
	}
}

func TestHub_PublishTargetsRolesAndUsers(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	manager := &Client{Hub: hub, Send: make(chan []byte, 4), UserID: uuid.New(), Roles: []string{"manager"}}
	dispatcher := &Client{Hub: hub, Send: make(chan []byte, 4), UserID: uuid.New(), Roles: []string{"dispatcher"}}
	hub.Register(manager)
	hub.Register(dispatcher)

	require.NoError(t, hub.Publish(Target{Roles: []string{"manager"}}, Event{Type: "approval.pending", RequestID: "r1"}))

	evt, ok := receive(t, manager)
	require.True(t, ok)
	assert.Equal(t, "approval.pending", evt.Type)
	assert.Equal(t, "r1", evt.RequestID)

	_, ok = receive(t, dispatcher)
	assert.False(t, ok, "dispatcher holds no targeted role")

	require.NoError(t, hub.Publish(Target{Users: []uuid.UUID{dispatcher.UserID}}, Event{Type: "approval.decided"}))
	evt, ok = receive(t, dispatcher)
	require.True(t, ok)
	assert.Equal(t, "approval.decided", evt.Type)
}

func TestHub_ClientCount(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	hub.Register(&Client{Hub: hub, Send: make(chan []byte, 1), UserID: uuid.New()})
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestRolesFromClaims(t *testing.T) {
	assert.Equal(t, []string{"manager", "admin"},
		RolesFromClaims(jwt.MapClaims{"roles": []interface{}{"manager", "", "admin"}}))
	assert.Equal(t, []string{"dispatcher"}, RolesFromClaims(jwt.MapClaims{"role": "dispatcher"}))
	assert.Nil(t, RolesFromClaims(jwt.MapClaims{}))
}
