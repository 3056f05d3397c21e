// Package auth gates sensitive operator actions behind a TOTP challenge,
// adapted from the teacher's own use of pquerna/otp/totp for Angel One's
// broker-login 2FA (cmd/mdengine) into an operator-authorization check:
// switching the control file's mode from paper to live requires a valid
// 6-digit code against BOT_TOTP_SECRET, so a compromised or mistaken
// control-file write alone can never arm real money.
package auth

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Gate validates operator-supplied TOTP codes against a shared secret.
type Gate struct {
	secret string
}

// NewGate creates a Gate for the given base32 TOTP secret. An empty secret
// disables live-mode transitions entirely (Validate always fails closed).
func NewGate(secret string) *Gate {
	return &Gate{secret: secret}
}

// Enabled reports whether a secret is configured at all.
func (g *Gate) Enabled() bool {
	return g.secret != ""
}

// Validate checks code against the current 30-second TOTP window. Fails
// closed (returns an error) when no secret is configured, so a blank
// BOT_TOTP_SECRET can never be satisfied by an empty code.
func (g *Gate) Validate(code string) error {
	if g.secret == "" {
		return fmt.Errorf("auth: live-mode transitions disabled, BOT_TOTP_SECRET not set")
	}
	ok, err := totp.ValidateCustom(code, g.secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return fmt.Errorf("auth: validating totp code: %w", err)
	}
	if !ok {
		return fmt.Errorf("auth: invalid totp code")
	}
	return nil
}
