// Package exchange handles everything that talks to the live exchange as
// ground truth: REST/WS auth, the position/order synchronizer, and stop
// order management (§4.7, §6).
package exchange

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// subscribeClaims mirrors the exchange's bearer-JWT shape for authenticated
// WS subscribe requests and REST calls: a short-lived token signed with the
// API secret, naming the API key as subject.
type subscribeClaims struct {
	jwt.RegisteredClaims
	URI string `json:"uri,omitempty"`
}

// JWTSigner signs short-lived bearer tokens with the exchange API secret,
// grounded on the pack's HS256 RegisteredClaims signing pattern
// (abdulloh5007-tradepl/internal/auth/service.go signToken).
type JWTSigner struct {
	apiKey    string
	apiSecret []byte
	ttl       time.Duration
}

// NewJWTSigner builds a signer for the given exchange API credentials.
func NewJWTSigner(apiKey, apiSecret string) *JWTSigner {
	return &JWTSigner{apiKey: apiKey, apiSecret: []byte(apiSecret), ttl: 2 * time.Minute}
}

// SignSubscribe produces the auth fields to merge into a WS subscribe
// message for the given channel. Matches the ws.AuthSigner signature.
func (s *JWTSigner) SignSubscribe(channel string, productIDs []string) (map[string]interface{}, error) {
	now := time.Now().UTC()
	claims := subscribeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.apiKey,
			Subject:   s.apiKey,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		URI: "WS:" + channel,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.apiSecret)
	if err != nil {
		return nil, fmt.Errorf("jwt signer: sign subscribe: %w", err)
	}
	return map[string]interface{}{"jwt": signed}, nil
}

// SignRequest produces a bearer token for a single REST call against the
// given method+path, used as the Authorization header value.
func (s *JWTSigner) SignRequest(method, path string) (string, error) {
	now := time.Now().UTC()
	claims := subscribeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.apiKey,
			Subject:   s.apiKey,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		URI: method + " " + path,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.apiSecret)
	if err != nil {
		return "", fmt.Errorf("jwt signer: sign request: %w", err)
	}
	return "Bearer " + signed, nil
}
