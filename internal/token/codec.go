// Package token encodes and decodes the signed access and refresh
// tokens. Expiry is self-contained: every token embeds iat and
// expiresIn so validity can be decided from the payload alone.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed        = errors.New("token is malformed")
	ErrInvalidSignature = errors.New("token signature is invalid")
)

// AccessClaims and RefreshClaims list the claims each token kind must
// carry. A missing claim makes the token invalid, never defaulted.
var (
	AccessClaims  = []string{"sub", "loginOrEmail", "iat", "expiresIn"}
	RefreshClaims = []string{"sub", "deviceId", "iat", "expiresIn"}
)

// Codec signs and verifies HS256 tokens with a shared secret.
type Codec struct {
	secret []byte
	now    func() time.Time
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret), now: time.Now}
}

// Issue signs the given claims with iat/exp/expiresIn filled in from
// the current time and ttl.
func (c *Codec) Issue(claims jwt.MapClaims, ttl time.Duration) (string, error) {
	now := c.now()
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(ttl).Unix()
	claims["expiresIn"] = int64(ttl.Seconds())

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(c.secret)
}

// Verify checks signature and structure only. Expiry is deliberately
// not validated here; callers decide it from the payload via IsExpired
// so the checks stay independently observable.
func (c *Codec) Verify(signed string) (jwt.MapClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	t, err := parser.Parse(signed, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, ErrInvalidSignature
		}
		return nil, ErrMalformed
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok || !t.Valid {
		return nil, ErrInvalidSignature
	}
	return claims, nil
}

// IsExpired reports whether now >= iat+expiresIn. A payload missing
// either field counts as expired.
func (c *Codec) IsExpired(claims jwt.MapClaims) bool {
	iat, ok := numericClaim(claims, "iat")
	if !ok {
		return true
	}
	expiresIn, ok := numericClaim(claims, "expiresIn")
	if !ok {
		return true
	}
	return c.now().Unix() >= iat+expiresIn
}

// HasRequiredClaims reports whether every named claim is present.
func HasRequiredClaims(claims jwt.MapClaims, required []string) bool {
	for _, key := range required {
		if _, ok := claims[key]; !ok {
			return false
		}
	}
	return true
}

// StringClaim returns the named claim as a string, empty when absent
// or not a string.
func StringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

func numericClaim(claims jwt.MapClaims, key string) (int64, bool) {
	switch v := claims[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}
