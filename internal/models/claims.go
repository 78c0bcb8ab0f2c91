package models

import "github.com/golang-jwt/jwt/v5"

// OwnerClaims are the claims of a caller's access token. The subject is the
// owner identity (phone number) the account directory resolves.
type OwnerClaims struct {
	jwt.RegisteredClaims
}

// Identity returns the owner identity carried in the subject.
func (c *OwnerClaims) Identity() string {
	return c.Subject
}
