// Package auth implements the spec's Auth collaborator (§4.7): JWT
// issuance/verification with a fixed per-deployment signing algorithm,
// and login against a static, startup-loaded user table of bcrypt
// password hashes. The live bracket core never sees a plaintext
// password or a raw token past this boundary — only the already-
// validated Claims.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Algorithm is the one JWT signing method a deployment is configured
// with (spec §4.7: "algorithm fixed per deployment"). Verify rejects
// any token whose header names a different algorithm, closing the
// classic alg-confusion attack.
type Algorithm string

const (
	HS256 Algorithm = "HS256"
	HS384 Algorithm = "HS384"
	HS512 Algorithm = "HS512"
)

func (a Algorithm) signingMethod() jwt.SigningMethod {
	switch a {
	case HS384:
		return jwt.SigningMethodHS384
	case HS512:
		return jwt.SigningMethodHS512
	default:
		return jwt.SigningMethodHS256
	}
}

var (
	ErrUnauthorized   = errors.New("auth: unauthorized")
	ErrWrongKind      = errors.New("auth: token kind does not match required operation")
	ErrWrongAlgorithm = errors.New("auth: token signed with an unexpected algorithm")
)

// UserRecord is one row of the static, startup-loaded user table
// (spec §3 supplement): never holds a plaintext password.
type UserRecord struct {
	ID           uint64 `yaml:"id"`
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// Auth is the JWT + login collaborator, constructed once at startup
// and shared read-only thereafter (spec §9: "no ambient mutable
// globals beyond [signing key, user table, LiveRegistry]").
type Auth struct {
	signingKey      []byte
	algorithm       Algorithm
	clockSkew       time.Duration
	usersByID       map[uint64]UserRecord
	usersByUsername map[string]UserRecord
	log             *zap.Logger
}

func New(signingKey []byte, algorithm Algorithm, clockSkew time.Duration, users []UserRecord, log *zap.Logger) *Auth {
	byID := make(map[uint64]UserRecord, len(users))
	byName := make(map[string]UserRecord, len(users))
	for _, u := range users {
		byID[u.ID] = u
		byName[u.Username] = u
	}
	return &Auth{
		signingKey:      signingKey,
		algorithm:       algorithm,
		clockSkew:       clockSkew,
		usersByID:       byID,
		usersByUsername: byName,
		log:             log,
	}
}

// Issue mints a signed token of the given kind for subject, valid from
// now until now+ttl.
func (a *Auth) Issue(subject uint64, kind TokenKind, now time.Time, ttl time.Duration) (string, error) {
	claims := newClaims(subject, kind, now, now.Add(ttl), now)
	tok := jwt.NewWithClaims(a.algorithm.signingMethod(), claims)
	signed, err := tok.SignedString(a.signingKey)
	if err != nil {
		return "", errors.Wrap(err, "auth: sign token")
	}
	return signed, nil
}

// Verify parses and validates tokenString, requiring it to be of
// wantKind and signed with the configured algorithm (spec §4.6/§4.7,
// §8 property 10: exp/nbf/algorithm/kind mismatches are all rejected).
func (a *Auth) Verify(tokenString string, wantKind TokenKind, now time.Time) (Claims, error) {
	var claims Claims
	// Claims validation (exp/nbf) is done explicitly below, with the
	// configured clock skew, rather than through the library's default
	// (zero-skew, wall-clock) check.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{a.algorithm.signingMethod().Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != a.algorithm.signingMethod().Alg() {
			return nil, ErrWrongAlgorithm
		}
		return a.signingKey, nil
	})
	if err != nil {
		return Claims{}, errors.Wrap(ErrUnauthorized, errCause(err))
	}
	if claims.ExpiresAt == nil || claims.NotBefore == nil {
		return Claims{}, ErrUnauthorized
	}
	if now.After(claims.ExpiresAt.Time.Add(a.clockSkew)) {
		return Claims{}, ErrUnauthorized
	}
	if now.Before(claims.NotBefore.Time.Add(-a.clockSkew)) {
		return Claims{}, ErrUnauthorized
	}
	if claims.Kind() != wantKind {
		return Claims{}, ErrWrongKind
	}
	return claims, nil
}

func errCause(err error) string {
	if err == nil {
		return "invalid token"
	}
	return err.Error()
}

// Login compares password against the stored bcrypt hash for
// username, constant-time with respect to the candidate password
// (spec §4.7). Returns the matched UserRecord on success.
func (a *Auth) Login(username, password string) (UserRecord, error) {
	user, ok := a.usersByUsername[username]
	if !ok {
		// Still run a bcrypt comparison against a fixed dummy hash so
		// that an unknown username takes the same time as a wrong
		// password, rather than short-circuiting.
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return UserRecord{}, ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return UserRecord{}, ErrUnauthorized
	}
	return user, nil
}

// dummyHash is a valid bcrypt hash of an unreachable password, used
// only to keep Login's timing shape uniform for unknown usernames.
const dummyHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5iI0n7dW.dX/SZDTzqfuVNW8Nl0vS"
