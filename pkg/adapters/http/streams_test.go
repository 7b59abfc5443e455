package http

import (
	"testing"

	"github.com/aretw0/softbus/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamManager_SubscribeBroadcast(t *testing.T) {
	sm := NewStreamManager(nil)

	ch, cancel := sm.Subscribe("com.demo.chat")
	sm.Broadcast("com.demo.chat", []byte("one"))
	sm.Broadcast("com.other.chat", []byte("two"))

	assert.Equal(t, []byte("one"), <-ch)
	assert.Len(t, ch, 0)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, sm.Subscribers("com.demo.chat"))
}

func TestStreamManager_Close(t *testing.T) {
	sm := NewStreamManager(nil)
	a, cancelA := sm.Subscribe("com.demo.chat")
	b, cancelB := sm.Subscribe("com.demo.chat")
	other, cancelOther := sm.Subscribe("com.other.chat")
	defer cancelOther()

	assert.Equal(t, 2, sm.Close("com.demo.chat"))
	_, open := <-a
	assert.False(t, open)
	_, open = <-b
	assert.False(t, open)
	assert.Equal(t, 0, sm.Subscribers("com.demo.chat"))
	assert.Equal(t, 1, sm.Subscribers("com.other.chat"))

	// Cancelling after Close must not close the channel twice.
	assert.NotPanics(t, cancelA)
	assert.NotPanics(t, cancelB)
	assert.Equal(t, 0, sm.Close("com.demo.chat"))

	sm.Broadcast("com.other.chat", []byte("still here"))
	assert.Equal(t, []byte("still here"), <-other)
}

func TestStreamManager_DropsWhenFull(t *testing.T) {
	sm := NewStreamManager(nil)
	ch, cancel := sm.Subscribe("s")
	defer cancel()

	for i := 0; i < streamBuffer+5; i++ {
		sm.Broadcast("s", []byte{byte(i)})
	}
	assert.Len(t, ch, streamBuffer)
}

func TestStreamManager_Publish(t *testing.T) {
	sm := NewStreamManager(nil)
	ch, cancel := sm.Subscribe("com.demo.chat")
	defer cancel()

	sm.Publish(domain.ChannelEvent{
		Type: domain.EventChannelClosed,
		Info: domain.ChannelInfo{SessionName: "com.demo.chat", Channel: domain.ChannelBinding{ID: 4, Type: domain.ChannelTypeUDP}},
	})
	require.Len(t, ch, 1)
	assert.JSONEq(t,
		`{"type":"channel_closed","info":{"session_name":"com.demo.chat","peer_session_name":"","peer_device_id":"","channel":{"channel_id":4,"channel_type":2}}}`,
		string(<-ch))
}
