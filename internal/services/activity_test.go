package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu     sync.Mutex
	events []ActivityEvent
	fail   bool
	closed bool
}

func (c *fakeClient) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	c.events = append(c.events, v.(ActivityEvent))
	return nil
}

func (c *fakeClient) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeClient) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) received() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestActivityHubDeliversAndDropsBrokenClients(t *testing.T) {
	hub := NewActivityHub()
	good := &fakeClient{}
	bad := &fakeClient{fail: true}
	hub.Add(good)
	hub.Add(bad)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	hub.Publish(ActivityEvent{Kind: ActivityAction, Tag: "login", At: time.Now()})
	require.Eventually(t, func() bool { return good.received() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, bad.closed)

	cancel()
	<-done
	assert.Equal(t, 0, hub.Clients())
}

func TestActivityHubPublishNeverBlocks(t *testing.T) {
	hub := NewActivityHub()
	for i := 0; i < cap(hub.ch)+10; i++ {
		hub.Publish(ActivityEvent{Kind: ActivitySearch})
	}
	assert.Len(t, hub.ch, cap(hub.ch))

	var nilHub *ActivityHub
	nilHub.Publish(ActivityEvent{Kind: ActivitySearch})
}
