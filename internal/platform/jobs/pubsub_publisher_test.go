package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/northline-logistics/api/internal/services"
)

func newTestTopic(t *testing.T, name string) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, name)
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	t.Cleanup(topic.Stop)
	return srv, topic
}

func TestPubSubOrderEventPublisherPublishesEvent(t *testing.T) {
	srv, topic := newTestTopic(t, "order-events")
	publisher, err := NewPubSubOrderEventPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubOrderEventPublisher: %v", err)
	}

	occurred := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	event := services.OrderEvent{
		Type:           "order.updated",
		OrderID:        "ord_01",
		TrackOrder:     "NL0001",
		PreviousStatus: "unassigned",
		CurrentStatus:  "pickup",
		DriverID:       "usr_driver",
		Message:        "Order picked up",
		OccurredAt:     occurred,
	}
	if err := publisher.PublishOrderEvent(context.Background(), event); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var payload map[string]any
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["trackOrder"] != "NL0001" || payload["currentStatus"] != "pickup" || payload["previousStatus"] != "unassigned" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if _, ok := payload["actorId"]; ok {
		t.Fatalf("empty actor should be omitted, got %#v", payload)
	}
	if got := messages[0].Attributes["status"]; got != "pickup" {
		t.Fatalf("expected status attribute, got %q", got)
	}
	if messages[0].OrderingKey != "ord_01" {
		t.Fatalf("expected ordering key ord_01, got %q", messages[0].OrderingKey)
	}
}

func TestPubSubNotificationPublisher(t *testing.T) {
	srv, topic := newTestTopic(t, "notifications")
	publisher, err := NewPubSubNotificationPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubNotificationPublisher: %v", err)
	}
	ctx := context.Background()

	if err := publisher.SendNotification(ctx, services.Notification{OrderID: "ord_01"}); err == nil {
		t.Fatal("expected error without recipient")
	}

	err = publisher.SendNotification(ctx, services.Notification{
		Kind:       "order.delivered",
		OrderID:    "ord_01",
		TrackOrder: "NL0001",
		Status:     "delivered",
		Recipient:  "wren@example.com",
		Subject:    "Order NL0001 is now delivered",
		Body:       "Order successfully delivered",
	})
	if err != nil {
		t.Fatalf("SendNotification: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var payload notificationMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Recipient != "wren@example.com" || payload.Kind != "order.delivered" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if messages[0].Attributes["kind"] != "order.delivered" {
		t.Fatalf("expected kind attribute, got %v", messages[0].Attributes)
	}
}

func TestPublishersRequireTopic(t *testing.T) {
	if _, err := NewPubSubOrderEventPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
	if _, err := NewPubSubNotificationPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
}
