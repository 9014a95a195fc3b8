package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// sessionClaim carries the terminal session that owns the cashier's draft.
const sessionClaim = "sid"

var errMissingIdentity = errors.New("auth: token missing cashier or session")

// TokenValidator checks a parsed access token and extracts the cashier identity from it.
type TokenValidator struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
}

// Validate enforces algorithm, issuer, audience and time bounds, then requires both the
// cashier subject and the session claim.
func (v TokenValidator) Validate(tok jwt.Token, algorithm jwa.SignatureAlgorithm, now time.Time) (Claims, error) {
	if tok == nil {
		return Claims{}, errors.New("auth: token is nil")
	}
	if algorithm == "" {
		return Claims{}, errors.New("auth: token missing algorithm")
	}
	if v.Algorithm != "" && algorithm != v.Algorithm {
		return Claims{}, fmt.Errorf("auth: unexpected token algorithm %s", algorithm)
	}

	opts := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
		jwt.WithAcceptableSkew(v.ClockSkew),
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}
	if err := jwt.Validate(tok, opts...); err != nil {
		return Claims{}, err
	}

	raw, _ := tok.Get(sessionClaim)
	sid, _ := raw.(string)
	if tok.Subject() == "" || sid == "" {
		return Claims{}, errMissingIdentity
	}
	return Claims{OperatorID: tok.Subject(), SessionID: sid}, nil
}
