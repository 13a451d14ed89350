package websocket

import (
	"encoding/json"
	"log/slog"
	"testing"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   nil,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, "u1")
	c2 := mockClient(hub, "u1")

	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount("u1"); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)
	if got := hub.ClientCount("u1"); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)
	if got := hub.ClientCount("u1"); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub, "u1")
	hub.Register(c)
	hub.Unregister(c)
	// Should not panic
	hub.Unregister(c)

	if got := hub.ClientCount("u1"); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestPublishReachesAllUserConnections(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, "u1")
	c2 := mockClient(hub, "u1")
	hub.Register(c1)
	hub.Register(c2)

	hub.Publish("u1", NewEvent("person", "created", "p-1", nil))

	for _, c := range []*Client{c1, c2} {
		select {
		case data := <-c.send:
			var got Event
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Type != "person_created" || got.ID != "p-1" {
				t.Errorf("event = %+v", got)
			}
		default:
			t.Error("client did not receive the event")
		}
	}
}

func TestPublishIsScopedToUser(t *testing.T) {
	hub := NewHub(slog.Default())

	mine := mockClient(hub, "u1")
	theirs := mockClient(hub, "u2")
	hub.Register(mine)
	hub.Register(theirs)

	hub.Publish("u1", NewEvent("reminder", "updated", "r-1", nil))

	select {
	case <-mine.send:
	default:
		t.Error("owner's connection should receive the event")
	}

	select {
	case <-theirs.send:
		t.Error("another user's connection must never receive the event")
	default:
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub, "u1")
	hub.Register(c)

	// Fill the buffer, then publish once more; the extra event is
	// dropped rather than blocking the hub.
	for i := 0; i < sendBufferSize+5; i++ {
		hub.Publish("u1", NewEvent("note", "updated", "n-1", nil))
	}

	if got := len(c.send); got != sendBufferSize {
		t.Errorf("buffered = %d, want %d", got, sendBufferSize)
	}
}
