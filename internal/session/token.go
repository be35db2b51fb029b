// Package session – access token inspection
//
// This file reads the expiry claim of an access token. Signatures are not
// checked here; the upstream API is the only verifier.
package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoExpiry is returned when an access token carries no "exp" claim.
var ErrNoExpiry = errors.New("token has no expiry claim")

var parser = jwt.NewParser()

// Expiry decodes the "exp" claim of a JWT without verifying its signature.
// The gateway never holds the signing key; the upstream API verifies tokens.
func Expiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}

// Valid reports whether token is non-empty and its expiry lies strictly
// after now. Tokens that fail to decode are treated as expired.
func Valid(token string, now time.Time) bool {
	if token == "" {
		return false
	}
	exp, err := Expiry(token)
	if err != nil {
		return false
	}
	return exp.After(now)
}
