package ws

import (
	"encoding/json"
	"testing"
	"time"
)

// mockClient creates a client for testing without a real WebSocket connection
func mockClient(hub *Hub, topic string) *Client {
	return &Client{
		hub:   hub,
		topic: topic,
		send:  make(chan []byte, 256),
	}
}

func TestHubRegistration(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := mockClient(hub, TopicPendingOrders)

	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if hub.rooms[TopicPendingOrders] == nil {
		t.Fatal("topic room not created")
	}
	if !hub.rooms[TopicPendingOrders][client] {
		t.Fatal("client not registered in topic room")
	}
}

func TestHubUnregistration(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := mockClient(hub, TopicPendingOrders)

	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	// Room should be cleaned up when empty
	if hub.rooms[TopicPendingOrders] != nil {
		t.Fatal("topic room not cleaned up after last client unregistered")
	}
}

func TestBroadcastTopicIsolation(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	ordersClient := mockClient(hub, TopicPendingOrders)
	syncClient := mockClient(hub, TopicSyncUpdates)

	hub.register <- ordersClient
	hub.register <- syncClient
	time.Sleep(10 * time.Millisecond)

	testPayload := json.RawMessage(`{"order_id":"test-123"}`)
	hub.Broadcast(TopicPendingOrders, Event{
		Type:    "order.received",
		Payload: testPayload,
	})

	select {
	case msg := <-ordersClient.send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("failed to unmarshal message: %v", err)
		}
		if received.Type != "order.received" {
			t.Errorf("expected type 'order.received', got '%s'", received.Type)
		}
		if string(received.Payload) != string(testPayload) {
			t.Errorf("expected payload '%s', got '%s'", testPayload, received.Payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("pending-orders client did not receive message")
	}

	select {
	case <-syncClient.send:
		t.Fatal("sync-updates client should not receive pending-orders events")
	case <-time.After(50 * time.Millisecond):
		// Expected - no message received
	}
}

func TestBroadcastToMultipleClientsInSameTopic(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client1 := mockClient(hub, TopicSyncUpdates)
	client2 := mockClient(hub, TopicSyncUpdates)
	client3 := mockClient(hub, TopicSyncUpdates)

	hub.register <- client1
	hub.register <- client2
	hub.register <- client3
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(TopicSyncUpdates, Event{
		Type:    "sync.created",
		Payload: json.RawMessage(`{"data_types":["customers"]}`),
	})

	clients := []*Client{client1, client2, client3}
	for i, client := range clients {
		select {
		case msg := <-client.send:
			var received Event
			if err := json.Unmarshal(msg, &received); err != nil {
				t.Fatalf("client%d: failed to unmarshal: %v", i+1, err)
			}
			if received.Type != "sync.created" {
				t.Errorf("client%d: expected type 'sync.created', got '%s'", i+1, received.Type)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("client%d did not receive message", i+1)
		}
	}
}

func TestHubCleanupEmptyRoom(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client1 := mockClient(hub, TopicPendingOrders)
	client2 := mockClient(hub, TopicPendingOrders)

	hub.register <- client1
	hub.register <- client2
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	if len(hub.rooms[TopicPendingOrders]) != 2 {
		t.Fatalf("expected 2 clients, got %d", len(hub.rooms[TopicPendingOrders]))
	}
	hub.mu.RUnlock()

	hub.unregister <- client1
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	if len(hub.rooms[TopicPendingOrders]) != 1 {
		t.Fatalf("expected 1 client after first unregister, got %d", len(hub.rooms[TopicPendingOrders]))
	}
	hub.mu.RUnlock()

	hub.unregister <- client2
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	if hub.rooms[TopicPendingOrders] != nil {
		t.Fatal("room should be deleted when last client unregisters")
	}
	hub.mu.RUnlock()
}

func TestBroadcastToEmptyTopic(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := mockClient(hub, TopicPendingOrders)
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	// No one listens on sync-updates
	hub.Broadcast(TopicSyncUpdates, Event{
		Type:    "sync.created",
		Payload: json.RawMessage(`{"test":"data"}`),
	})

	select {
	case <-client.send:
		t.Fatal("client should not receive message for a different topic")
	case <-time.After(50 * time.Millisecond):
		// Expected - no message
	}
}

func TestValidTopic(t *testing.T) {
	if !ValidTopic(TopicPendingOrders) || !ValidTopic(TopicSyncUpdates) {
		t.Error("known topics should be valid")
	}
	if ValidTopic("orders") || ValidTopic("") {
		t.Error("unknown topics should be invalid")
	}
}
