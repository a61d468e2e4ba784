package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/storefront-affiliates/pkg/enums"
)

var (
	ErrMissingSubject = errors.New("token subject is required")
	ErrInvalidRole    = errors.New("invalid role")
)

// AccessTokenPayload is what a caller supplies when minting a token.
type AccessTokenPayload struct {
	Subject string
	Role    enums.Role
	JTI     string
}

// AccessTokenClaims is the JWT body presented by admin tools and the storefront.
type AccessTokenClaims struct {
	Role enums.Role `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the registered-claim checks during parsing.
func (c AccessTokenClaims) Validate() error {
	if c.Subject == "" {
		return ErrMissingSubject
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("%w %q", ErrInvalidRole, c.Role)
	}
	return nil
}
