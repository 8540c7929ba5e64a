package token

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
)

type memCache struct {
	valid map[string]bool
	gets  int
	sets  int
}

func newMemCache() *memCache {
	return &memCache{valid: make(map[string]bool)}
}

func (c *memCache) GetValid(tok string) bool {
	c.gets++
	return c.valid[tok]
}

func (c *memCache) SetValid(tok string) {
	c.sets++
	c.valid[tok] = true
}

func TestMintVerifyRoundTrip(t *testing.T) {
	svc := NewService("test-secret", nil)

	tok, err := svc.Mint("ticket-1", "event-1", "254700000001")
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	payload, err := svc.Verify(tok)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if payload.TicketID != "ticket-1" {
		t.Errorf("Expected ticket ID ticket-1, got %s", payload.TicketID)
	}
	if payload.EventID != "event-1" {
		t.Errorf("Expected event ID event-1, got %s", payload.EventID)
	}
	if payload.Phone != "254700000001" {
		t.Errorf("Expected phone 254700000001, got %s", payload.Phone)
	}
	if payload.Nonce == "" || payload.Timestamp == 0 {
		t.Error("Expected nonce and timestamp to be set")
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	svc := NewService("test-secret", nil)

	tok, err := svc.Mint("ticket-1", "event-1", "254700000001")
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(tok)
	if err != nil {
		t.Fatalf("Failed to decode token: %v", err)
	}

	// Swap the ticket id but keep the original signature
	var env map[string]interface{}
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("Failed to unmarshal envelope: %v", err)
	}
	env["ticketId"] = "ticket-2"
	tampered, _ := json.Marshal(env)

	_, err = svc.Verify(base64.StdEncoding.EncodeToString(tampered))
	if err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken for tampered payload, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	minter := NewService("secret-a", nil)
	verifier := NewService("secret-b", nil)

	tok, err := minter.Mint("ticket-1", "event-1", "254700000001")
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	if _, err := verifier.Verify(tok); err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken for wrong secret, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := NewService("test-secret", nil)

	cases := []string{
		"",
		"not-base64!!!",
		base64.StdEncoding.EncodeToString([]byte("not json")),
		base64.StdEncoding.EncodeToString([]byte(`{"ticketId":"x"}`)),
	}
	for _, c := range cases {
		if _, err := svc.Verify(c); err != ErrInvalidToken {
			t.Errorf("Expected ErrInvalidToken for %q, got %v", c, err)
		}
	}
}

func TestVerifyUsesCacheOnSecondCheck(t *testing.T) {
	cache := newMemCache()
	svc := NewService("test-secret", cache)

	tok, err := svc.Mint("ticket-1", "event-1", "254700000001")
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	if _, err := svc.Verify(tok); err != nil {
		t.Fatalf("First verify failed: %v", err)
	}
	if cache.sets != 1 {
		t.Errorf("Expected cache to be populated after first verify, sets=%d", cache.sets)
	}

	payload, err := svc.Verify(tok)
	if err != nil {
		t.Fatalf("Cached verify failed: %v", err)
	}
	if payload.TicketID != "ticket-1" {
		t.Errorf("Cached verify returned wrong payload: %s", payload.TicketID)
	}
}

func TestCacheNeverValidatesBadSignature(t *testing.T) {
	cache := newMemCache()
	svc := NewService("test-secret", cache)

	tok, err := svc.Mint("ticket-1", "event-1", "254700000001")
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if _, err := svc.Verify(tok); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	// A different token string never hits the cached entry even if its
	// payload matches.
	forged := strings.Replace(tok, tok[:4], "AAAA", 1)
	if forged == tok {
		t.Skip("replacement produced identical token")
	}
	if _, err := svc.Verify(forged); err == nil {
		t.Error("Expected forged token to be rejected")
	}
}

func TestMintedTokensAreUnique(t *testing.T) {
	svc := NewService("test-secret", nil)

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		tok, err := svc.Mint("ticket-1", "event-1", "254700000001")
		if err != nil {
			t.Fatalf("Mint failed: %v", err)
		}
		if seen[tok] {
			t.Fatal("Expected every minted token to carry a fresh nonce")
		}
		seen[tok] = true

		if _, err := svc.Verify(tok); err != nil {
			t.Fatalf("Verify failed on iteration %d: %v", i, err)
		}
	}
}
