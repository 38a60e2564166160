package collaborators

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestFormatMessageIncludesKindAndPayload(t *testing.T) {
	msg := formatMessage(NotifyManualReview, map[string]string{"payment_id": "pay-1"})
	if !strings.Contains(msg, string(NotifyManualReview)) {
		t.Fatalf("message missing event kind: %q", msg)
	}
	if !strings.Contains(msg, "payment_id=pay-1") {
		t.Fatalf("message missing payload: %q", msg)
	}
}

func TestNoticeEnvelopeRoundTrips(t *testing.T) {
	env := noticeEnvelope{
		Kind:       NotifyCollectionDue,
		Recipients: []string{"ar@example.com"},
		Payload:    map[string]string{"invoice_id": "inv-1"},
	}
	body, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded noticeEnvelope
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Kind != NotifyCollectionDue || decoded.Recipients[0] != "ar@example.com" {
		t.Fatalf("round-trip mismatch: %+v", decoded)
	}
}
