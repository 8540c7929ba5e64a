package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tikiti/internal/models"
	"tikiti/internal/utils"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL bounds how long a volunteer's scanner session lasts before
// the access code has to be re-entered.
const TokenTTL = 12 * time.Hour

var (
	ErrInvalidCode        = errors.New("invalid or revoked access code")
	ErrInvalidScannerAuth = errors.New("invalid scanner token")
)

type contextKey string

const eventIDKey contextKey = "scan_event_id"

// CodeStore resolves per-event access codes handed to gate volunteers.
type CodeStore interface {
	GetAccessCode(ctx context.Context, code string) (*models.ScanAccessCode, error)
}

// Scanner exchanges access codes for event-scoped JWTs and gates the
// scan routes on them.
type Scanner struct {
	Codes CodeStore
	key   []byte
	now   func() time.Time
}

func NewScanner(codes CodeStore, key string) *Scanner {
	return &Scanner{Codes: codes, key: []byte(key), now: time.Now}
}

// Authenticate trades an access code for a signed scanner token scoped
// to the code's event.
func (s *Scanner) Authenticate(ctx context.Context, code string) (string, error) {
	access, err := s.Codes.GetAccessCode(ctx, code)
	if err != nil {
		return "", ErrInvalidCode
	}

	now := s.now()
	claims := jwt.MapClaims{
		"event_id": access.EventID,
		"iat":      now.Unix(),
		"exp":      now.Add(TokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign scanner token: %w", err)
	}
	return signed, nil
}

// EventID validates a scanner token and returns the event it is scoped to.
func (s *Scanner) EventID(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return "", ErrInvalidScannerAuth
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidScannerAuth
	}
	eventID, ok := claims["event_id"].(string)
	if !ok || eventID == "" {
		return "", ErrInvalidScannerAuth
	}
	return eventID, nil
}

// Middleware requires a valid scanner bearer token and stashes its event
// scope in the request context.
func (s *Scanner) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := extractBearer(r)
		if err != nil {
			utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Scanner authentication required", err.Error()))
			return
		}

		eventID, err := s.EventID(tokenString)
		if err != nil {
			utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Scanner authentication failed", err.Error()))
			return
		}

		ctx := context.WithValue(r.Context(), eventIDKey, eventID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// EventIDFromContext returns the event scope set by Middleware.
func EventIDFromContext(ctx context.Context) string {
	eventID, _ := ctx.Value(eventIDKey).(string)
	return eventID
}

func extractBearer(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}
	return parts[1], nil
}
