package exchange

import (
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestSignSubscribeProducesParsableJWT(t *testing.T) {
	signer := NewJWTSigner("key123", "supersecret")
	fields, err := signer.SignSubscribe("ticker", []string{"BTC-USD"})
	if err != nil {
		t.Fatalf("SignSubscribe: %v", err)
	}
	raw, ok := fields["jwt"].(string)
	if !ok || raw == "" {
		t.Fatal("expected a non-empty jwt field")
	}

	parsed, err := jwt.ParseWithClaims(raw, &subscribeClaims{}, func(tok *jwt.Token) (interface{}, error) {
		return []byte("supersecret"), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("expected token to parse and validate, err=%v", err)
	}
	claims := parsed.Claims.(*subscribeClaims)
	if claims.Issuer != "key123" {
		t.Fatalf("expected issuer key123, got %s", claims.Issuer)
	}
	if claims.URI != "WS:ticker" {
		t.Fatalf("expected uri WS:ticker, got %s", claims.URI)
	}
}

func TestSignRequestProducesBearerHeader(t *testing.T) {
	signer := NewJWTSigner("key123", "supersecret")
	header, err := signer.SignRequest("POST", "/api/v3/brokerage/orders")
	if err != nil {
		t.Fatalf("SignRequest: %v", err)
	}
	if !strings.HasPrefix(header, "Bearer ") {
		t.Fatalf("expected Bearer prefix, got %s", header)
	}
}
