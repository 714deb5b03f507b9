package messaging

import "testing"

func TestTopicRegistryResolvesRepliesToBotMessages(t *testing.T) {
	r := newTopicRegistry()
	r.remember(500, 42)

	// Explicit reply to a bot message posted inside topic 42.
	if got := r.resolve(500); got != 42 {
		t.Fatalf("reply to bot message resolved to %d, want 42", got)
	}
	// Plain topic message replies to the opener, whose id is the topic id.
	if got := r.resolve(42); got != 42 {
		t.Fatalf("reply to topic opener resolved to %d, want 42", got)
	}
	// Unknown targets pass through for the dispatcher to validate.
	if got := r.resolve(7); got != 7 {
		t.Fatalf("unknown reply target resolved to %d, want 7", got)
	}
}

func TestTopicRegistryIgnoresZeroIDs(t *testing.T) {
	r := newTopicRegistry()
	r.remember(0, 42)
	r.remember(9, 0)

	if got := r.resolve(0); got != 0 {
		t.Fatalf("zero message id must not be registered, got %d", got)
	}
	if got := r.resolve(9); got != 9 {
		t.Fatalf("general-channel sends must not be registered, got %d", got)
	}
}
