package pubsub

import (
	"testing"

	"github.com/angelmondragon/inventory-backoffice/pkg/config"
	"github.com/angelmondragon/inventory-backoffice/pkg/outbox"
)

func TestResourceName(t *testing.T) {
	cases := []struct {
		name, kind, in, want string
	}{
		{"short id", "topics", "inventory-stock-events", "projects/p1/topics/inventory-stock-events"},
		{"full name kept", "topics", "projects/other/topics/x", "projects/other/topics/x"},
		{"wrong kind expanded", "subscriptions", "projects/other/topics/x", "projects/p1/subscriptions/projects/other/topics/x"},
		{"blank", "topics", "  ", ""},
	}
	for _, tc := range cases {
		if got := resourceName("p1", tc.kind, tc.in); got != tc.want {
			t.Fatalf("%s: expected %q got %q", tc.name, tc.want, got)
		}
	}
	if got := resourceName("", "topics", "x"); got != "" {
		t.Fatalf("expected empty name without project, got %q", got)
	}
}

func TestSubscriptionNamesSkipsBlank(t *testing.T) {
	names := subscriptionNames(config.PubSubConfig{StockSubscription: " stock ", AlertSubscription: ""})
	if len(names) != 1 || names[0] != "stock" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestClientOptionsPrefersInlineCredentials(t *testing.T) {
	if opts := clientOptions(config.GCPConfig{ProjectID: "p1"}); len(opts) != 0 {
		t.Fatalf("expected default credentials, got %d options", len(opts))
	}
	opts := clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/key.json"})
	if len(opts) != 1 {
		t.Fatalf("expected a single credentials option, got %d", len(opts))
	}
}

func TestToPubSubMessageOrderingKey(t *testing.T) {
	msg := outbox.Message{
		Topic:      "inventory-stock-events",
		Key:        "prod-1",
		Data:       []byte(`{}`),
		Attributes: map[string]string{outbox.AttrEventType: "stock_reserved"},
	}
	if got := toPubSubMessage(msg, true); got.OrderingKey != "prod-1" || got.Attributes[outbox.AttrEventType] != "stock_reserved" {
		t.Fatalf("unexpected ordered message %+v", got)
	}
	if got := toPubSubMessage(msg, false); got.OrderingKey != "" {
		t.Fatalf("unordered message must not carry a key, got %q", got.OrderingKey)
	}
}
