package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidToken covers malformed encodings and signature mismatches
// alike; scanners get no more detail than that.
var ErrInvalidToken = errors.New("invalid admission token")

// Payload is the signed content of an admission token. Field order is
// fixed by the struct so json.Marshal produces a canonical byte string
// for the MAC on both mint and verify.
type Payload struct {
	TicketID  string `json:"ticketId"`
	EventID   string `json:"eventId"`
	Phone     string `json:"phone"`
	Timestamp int64  `json:"timestamp"`
	Nonce     string `json:"nonce"`
}

type envelope struct {
	Payload
	Signature string `json:"signature"`
}

// Cache memoizes signature validity only. Status-dependent checks
// (redeemed, payment state) must always hit the store.
type Cache interface {
	GetValid(token string) bool
	SetValid(token string)
}

// Service mints and verifies self-contained admission tokens. Verify is
// pure: it never consults ticket state.
type Service struct {
	secret []byte
	cache  Cache
	now    func() time.Time
}

func NewService(secret string, cache Cache) *Service {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Service{secret: hashed[:], cache: cache, now: time.Now}
}

// Mint builds a signed token bound to a ticket, its event and the buyer
// phone, with a fresh nonce and the current timestamp.
func (s *Service) Mint(ticketID, eventID, phone string) (string, error) {
	payload := Payload{
		TicketID:  ticketID,
		EventID:   eventID,
		Phone:     phone,
		Timestamp: s.now().UnixMilli(),
		Nonce:     uuid.NewString(),
	}

	sig, err := s.sign(payload)
	if err != nil {
		return "", err
	}

	raw, err := json.Marshal(envelope{Payload: payload, Signature: sig})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Verify decodes the token, recomputes the MAC over the embedded fields
// and compares in constant time. A cache hit skips only the MAC
// recomputation; a miss always falls back to the full check.
func (s *Service) Verify(tok string) (*Payload, error) {
	raw, err := base64.StdEncoding.DecodeString(tok)
	if err != nil {
		return nil, ErrInvalidToken
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrInvalidToken
	}

	if s.cache != nil && s.cache.GetValid(tok) {
		return &env.Payload, nil
	}

	expected, err := s.sign(env.Payload)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !hmac.Equal([]byte(expected), []byte(env.Signature)) {
		return nil, ErrInvalidToken
	}

	if s.cache != nil {
		s.cache.SetValid(tok)
	}
	return &env.Payload, nil
}

func (s *Service) sign(payload Payload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}
