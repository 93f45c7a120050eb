package auth

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenKind distinguishes an Auth token (grants mutation) from a
// Refresh token (grants only re-issuance), per spec §3: "Kinds are
// distinguished by... a reserved bit in flags". Bit 0 of Flags is that
// reserved bit; all other bits are unused and must be zero.
type TokenKind uint8

const (
	KindAuth    TokenKind = 0
	KindRefresh TokenKind = 1

	refreshBit uint8 = 0x01
)

// Claims is the JWT payload (spec §3): `{ sub, iat, exp, nbf, flags }`,
// expressed as jwt.RegisteredClaims plus the one domain field the spec
// adds. Auth.Verify parses with claims validation disabled and checks
// exp/nbf itself, with the configured clock skew; iat is not checked.
type Claims struct {
	jwt.RegisteredClaims
	Flags uint8 `json:"flags"`
}

func (c Claims) Kind() TokenKind {
	if c.Flags&refreshBit != 0 {
		return KindRefresh
	}
	return KindAuth
}

func newClaims(subject uint64, kind TokenKind, issuedAt, expiresAt, notBefore time.Time) Claims {
	var flags uint8
	if kind == KindRefresh {
		flags |= refreshBit
	}
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(subject, 10),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(notBefore),
		},
		Flags: flags,
	}
}

// SubjectID parses the RegisteredClaims.Subject back into the u64
// user ID it was minted from.
func (c Claims) SubjectID() (uint64, error) {
	return strconv.ParseUint(c.Subject, 10, 64)
}
