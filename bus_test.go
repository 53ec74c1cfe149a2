package responder

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/bamgoo/base"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inbox struct {
	mutex    sync.Mutex
	messages []Message
	notify   chan struct{}
}

func newInbox(t *testing.T, hub *MemoryHub, subject string) *inbox {
	t.Helper()
	in := &inbox{notify: make(chan struct{}, 16)}
	cancel := hub.Subscribe(subject, "", func(msg Message) {
		in.mutex.Lock()
		in.messages = append(in.messages, msg)
		in.mutex.Unlock()
		in.notify <- struct{}{}
	})
	t.Cleanup(cancel)
	return in
}

func (in *inbox) wait(t *testing.T, count int) []Message {
	t.Helper()
	for range count {
		select {
		case <-in.notify:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %d messages", count)
		}
	}
	in.mutex.Lock()
	defer in.mutex.Unlock()
	return append([]Message(nil), in.messages...)
}

func startBus(t *testing.T, hub *MemoryHub, r *Responder) *Bus {
	t.Helper()
	bus := NewBus(r, BusConfigs{
		"local": {Driver: DEFAULT, Setting: base.Map{"hub": hub}},
	}, r.Subscriptions(), nil)
	require.NoError(t, bus.Open())
	require.NoError(t, bus.Start())
	t.Cleanup(func() {
		assert.NoError(t, bus.Stop())
		assert.NoError(t, bus.Close())
	})
	return bus
}

func newBusResponder(t *testing.T) *Responder {
	t.Helper()
	svc, err := NewService(
		Identity{Name: "calculator", Version: "0.1.0"},
		Endpoint{Name: "add", Handler: func(body []byte) ([]byte, error) {
			return append([]byte("sum:"), body...), nil
		}},
	)
	require.NoError(t, err)
	r, err := NewResponder(svc)
	require.NoError(t, err)
	return r
}

func TestBusDiscoveryBroadcast(t *testing.T) {
	hub := NewMemoryHub()
	first := newBusResponder(t)
	second := newBusResponder(t)
	startBus(t, hub, first)
	startBus(t, hub, second)

	replies := newInbox(t, hub, "_INBOX.ping")
	require.NoError(t, hub.Publish(Message{Subject: "$CTL.PING.calculator", Reply: "_INBOX.ping"}))

	msgs := replies.wait(t, 2)
	ids := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		var resp PingResponse
		require.NoError(t, json.Unmarshal(msg.Data, &resp))
		ids = append(ids, resp.ID)
	}
	assert.ElementsMatch(t, []string{first.Service().Identity().ID, second.Service().Identity().ID}, ids)
}

func TestBusQueueGroupDelivery(t *testing.T) {
	hub := NewMemoryHub()
	first := newBusResponder(t)
	second := newBusResponder(t)
	startBus(t, hub, first)
	startBus(t, hub, second)

	replies := newInbox(t, hub, "_INBOX.add")
	for range 4 {
		require.NoError(t, hub.Publish(Message{Subject: "add", Reply: "_INBOX.add", Data: []byte("1 1")}))
	}

	msgs := replies.wait(t, 4)
	for _, msg := range msgs {
		assert.Equal(t, "sum:1 1", string(msg.Data))
	}

	a, _ := first.Stats().Endpoint("add")
	b, _ := second.Stats().Endpoint("add")
	assert.Equal(t, 4, a.NumRequests+b.NumRequests)
	assert.Equal(t, 2, a.NumRequests)
	assert.Equal(t, 2, b.NumRequests)
}

func TestBusScopedToInstance(t *testing.T) {
	hub := NewMemoryHub()
	first := newBusResponder(t)
	second := newBusResponder(t)
	startBus(t, hub, first)
	startBus(t, hub, second)

	id := second.Service().Identity().ID
	replies := newInbox(t, hub, "_INBOX.info")
	require.NoError(t, hub.Publish(Message{Subject: "$CTL.INFO.calculator." + id, Reply: "_INBOX.info"}))

	msgs := replies.wait(t, 1)
	var resp InfoResponse
	require.NoError(t, json.Unmarshal(msgs[0].Data, &resp))
	assert.Equal(t, id, resp.ID)

	select {
	case <-replies.notify:
		t.Fatal("unexpected second reply")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusLifecycle(t *testing.T) {
	r := newBusResponder(t)

	bus := NewBus(r, nil, r.Subscriptions(), nil)
	assert.ErrorIs(t, bus.Start(), errBusNotOpened)
	require.NoError(t, bus.Open())
	require.NoError(t, bus.Start())
	require.NoError(t, bus.Start())
	require.NoError(t, bus.Stop())
	require.NoError(t, bus.Close())

	missing := NewBus(r, BusConfigs{"x": {Driver: "carrier-pigeon"}}, nil, nil)
	assert.Error(t, missing.Open())

	assert.ErrorIs(t, NewBus(nil, nil, nil, nil).Open(), errBusNoHandler)
}

func TestRegisterDriverPanics(t *testing.T) {
	assert.Panics(t, func() { RegisterDriver(DEFAULT, &defaultBusDriver{}) })
	assert.Panics(t, func() { RegisterDriver("empty", nil) })
}

func TestMemoryHubUnsubscribe(t *testing.T) {
	hub := NewMemoryHub()
	got := make(chan Message, 1)
	cancel := hub.Subscribe("greet", "", func(msg Message) { got <- msg })

	require.NoError(t, hub.Publish(Message{Subject: "greet", Data: []byte("hi")}))
	select {
	case msg := <-got:
		assert.Equal(t, "hi", string(msg.Data))
	case <-time.After(time.Second):
		t.Fatal("no delivery")
	}

	cancel()
	require.NoError(t, hub.Publish(Message{Subject: "greet"}))
	select {
	case <-got:
		t.Fatal("delivered after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}

	assert.ErrorIs(t, hub.Publish(Message{}), errBusInvalidTarget)
}
