// Package identity verifies bearer ID tokens and manages identity revocation.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ashplayer/backend/internal/secret"
)

// Diagnostic codes reported when verification fails.
const (
	CodeArgumentError    = "auth/argument-error"
	CodeTokenExpired     = "auth/id-token-expired"
	CodeTokenRevoked     = "auth/id-token-revoked"
	CodeInvalidToken     = "auth/invalid-id-token"
	CodeInvalidSignature = "auth/invalid-signature"
	CodeInternal         = "auth/internal-error"
)

// Identity is the verified caller.
type Identity struct {
	UID      string
	Email    string
	Provider string
}

// VerifyError carries the diagnostic code of a failed verification.
type VerifyError struct {
	Code string
	Err  error
}

func (e *VerifyError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *VerifyError) Unwrap() error { return e.Err }

// Claims are the ID token claims understood by the verifier.
type Claims struct {
	jwt.RegisteredClaims
	Email    string         `json:"email,omitempty"`
	Firebase ProviderClaims `json:"firebase"`
}

// ProviderClaims describes how the identity signed in.
type ProviderClaims struct {
	SignInProvider string `json:"sign_in_provider,omitempty"`
}

// RevocationStore persists identity revocations.
type RevocationStore interface {
	Revoke(ctx context.Context, uid string, revokedAt int64) error
	RevokedAt(ctx context.Context, uid string) (int64, bool, error)
}

// Options configure a JWTVerifier.
type Options struct {
	KeyParam string
	Issuer   string
	Audience string
	Now      func() time.Time
}

// JWTVerifier validates HMAC-signed ID tokens. The signing key is resolved
// through a secret.Resolver on each verification.
type JWTVerifier struct {
	secrets     secret.Resolver
	revocations RevocationStore
	opts        Options
}

// NewJWTVerifier constructs a verifier.
func NewJWTVerifier(secrets secret.Resolver, revocations RevocationStore, opts Options) *JWTVerifier {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &JWTVerifier{secrets: secrets, revocations: revocations, opts: opts}
}

// Verify validates token and returns the identity it names.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, &VerifyError{Code: CodeArgumentError, Err: errors.New("empty token")}
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithTimeFunc(v.opts.Now),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if v.opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.opts.Issuer))
	}
	if v.opts.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.opts.Audience))
	}

	var keyErr error
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		key, err := v.secrets.GetSecret(ctx, v.opts.KeyParam)
		if err != nil {
			keyErr = err
			return nil, err
		}
		return []byte(key), nil
	}, parserOpts...)
	if keyErr != nil {
		return Identity{}, &VerifyError{Code: CodeInternal, Err: keyErr}
	}
	if err != nil {
		return Identity{}, &VerifyError{Code: classify(err), Err: err}
	}
	if !parsed.Valid {
		return Identity{}, &VerifyError{Code: CodeInvalidToken, Err: errors.New("token is invalid")}
	}
	if claims.Subject == "" {
		return Identity{}, &VerifyError{Code: CodeInvalidToken, Err: errors.New("token has no subject")}
	}
	if strings.Contains(claims.Subject, ".") {
		return Identity{}, &VerifyError{Code: CodeInvalidToken, Err: errors.New("token subject contains '.'")}
	}

	if v.revocations != nil {
		revokedAt, ok, err := v.revocations.RevokedAt(ctx, claims.Subject)
		if err != nil {
			return Identity{}, &VerifyError{Code: CodeInternal, Err: err}
		}
		if ok && claims.IssuedAt != nil && claims.IssuedAt.Unix() <= revokedAt {
			return Identity{}, &VerifyError{Code: CodeTokenRevoked, Err: errors.New("token issued before revocation")}
		}
	}

	return Identity{
		UID:      claims.Subject,
		Email:    claims.Email,
		Provider: claims.Firebase.SignInProvider,
	}, nil
}

// Delete revokes every token issued to uid so far.
func (v *JWTVerifier) Delete(ctx context.Context, uid string) error {
	if v.revocations == nil {
		return nil
	}
	if err := v.revocations.Revoke(ctx, uid, v.opts.Now().Unix()); err != nil {
		return fmt.Errorf("revoke identity %s: %w", uid, err)
	}
	return nil
}

func classify(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return CodeTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return CodeArgumentError
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return CodeInvalidSignature
	default:
		return CodeInvalidToken
	}
}

// Sign issues an HS256 token for id valid for ttl. Used for local development
// and tests.
func Sign(key []byte, id Identity, issuedAt time.Time, ttl time.Duration, issuer, audience string) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
		Email:    id.Email,
		Firebase: ProviderClaims{SignInProvider: id.Provider},
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
