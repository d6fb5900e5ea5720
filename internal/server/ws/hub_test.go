package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestClient() *client {
	return &client{
		subs:  map[string]bool{"wagers": true},
		watch: make(map[string]bool),
	}
}

func TestWagerIDOf(t *testing.T) {
	assert.Equal(t, "w-1", wagerIDOf([]byte(`{"event":"wager_settled","wager_id":"w-1"}`)))
	assert.Empty(t, wagerIDOf([]byte(`{"event":"heartbeat"}`)))
	assert.Empty(t, wagerIDOf([]byte(`not json`)))
}

func TestWantsChannelFilter(t *testing.T) {
	c := newTestClient()

	assert.True(t, c.wants(eventMsg{channel: "wagers", wagerID: "w-1"}))
	assert.False(t, c.wants(eventMsg{channel: "other", wagerID: "w-1"}))
}

func TestWantsWatchFilter(t *testing.T) {
	c := newTestClient()
	c.handleControl(controlMsg{Action: "watch", WagerIDs: []string{"w-1"}})

	assert.True(t, c.wants(eventMsg{channel: "wagers", wagerID: "w-1"}))
	assert.False(t, c.wants(eventMsg{channel: "wagers", wagerID: "w-2"}))

	// Events without a wager id bypass the watch filter.
	assert.True(t, c.wants(eventMsg{channel: "wagers"}))

	c.handleControl(controlMsg{Action: "unwatch", WagerIDs: []string{"w-1"}})
	assert.True(t, c.wants(eventMsg{channel: "wagers", wagerID: "w-2"}),
		"empty watch list means all wagers")
}

func TestHandleControlSubscriptions(t *testing.T) {
	c := newTestClient()

	c.handleControl(controlMsg{Action: "unsubscribe", Channels: []string{"wagers"}})
	assert.False(t, c.wants(eventMsg{channel: "wagers"}))

	c.handleControl(controlMsg{Action: "subscribe", Channels: []string{"wagers"}})
	assert.True(t, c.wants(eventMsg{channel: "wagers"}))
}
