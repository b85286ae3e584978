package core

import "testing"

func TestParseWebhookEvent(t *testing.T) {
	body := []byte(`{
		"id": "evt_123",
		"type": "invoice.paid",
		"livemode": true,
		"created": 1756500000,
		"data": {"object": {"id": "in_456", "status": "paid"}}
	}`)

	event, err := ParseWebhookEvent(body)
	if err != nil {
		t.Fatalf("parse webhook event: %v", err)
	}
	if event.ID != "evt_123" {
		t.Fatalf("expected event id evt_123, got %q", event.ID)
	}
	if event.Type != "invoice.paid" {
		t.Fatalf("expected type invoice.paid, got %q", event.Type)
	}
	if !event.Livemode {
		t.Fatal("expected livemode true")
	}
	if got := event.ObjectID(); got != "in_456" {
		t.Fatalf("expected object id in_456, got %q", got)
	}
}

func TestParseWebhookEventRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		body []byte
	}{
		{"empty", nil},
		{"not json", []byte("not-json")},
		{"missing id", []byte(`{"type": "invoice.paid"}`)},
		{"missing type", []byte(`{"id": "evt_123"}`)},
		{"blank id", []byte(`{"id": "   ", "type": "invoice.paid"}`)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseWebhookEvent(tc.body); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}

func TestWebhookEventObjectIDMissing(t *testing.T) {
	event, err := ParseWebhookEvent([]byte(`{"id": "evt_1", "type": "invoice.paid", "data": {"object": {}}}`))
	if err != nil {
		t.Fatalf("parse webhook event: %v", err)
	}
	if got := event.ObjectID(); got != "" {
		t.Fatalf("expected empty object id, got %q", got)
	}
}

func TestParseEntityKind(t *testing.T) {
	for _, value := range []string{"customer", "subscription", "invoice", "product", "price"} {
		kind, err := ParseEntityKind(value)
		if err != nil {
			t.Fatalf("parse %q: %v", value, err)
		}
		if string(kind) != value {
			t.Fatalf("expected %q, got %q", value, kind)
		}
	}

	if _, err := ParseEntityKind("meter"); err == nil {
		t.Fatal("expected unknown entity kind to fail")
	}
	if kind, err := ParseEntityKind("  Invoice "); err != nil || kind != EntityKindInvoice {
		t.Fatalf("expected trimmed lowercase parse, got %q, %v", kind, err)
	}
}
