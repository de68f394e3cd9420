package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultSessionIssuer = "replay-auth"
	defaultClockLeeway   = 5 * time.Second
	bearerPrefix         = "Bearer "
)

var (
	ErrMissingSessionSigningKey = errors.New("auth: signing secret required")
	ErrMissingSessionCookieName = errors.New("auth: session cookie name required")
	ErrMissingSessionToken      = errors.New("auth: no session token presented")
	ErrInvalidSessionToken      = errors.New("auth: session token rejected")
	ErrExpiredSessionToken      = errors.New("auth: session token expired")
	ErrMissingSessionSubject    = errors.New("auth: session token names no user")
)

// SessionClaims is the payload minted by TokenIssuer. Subject and UserID
// always carry the same value.
type SessionClaims struct {
	UserID      string `json:"uid"`
	DisplayName string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// SessionValidatorConfig describes how to validate session JWTs.
type SessionValidatorConfig struct {
	SigningSecret []byte
	// Issuer defaults to "replay-auth".
	Issuer     string
	CookieName string
	// Leeway tolerates clock skew on exp, nbf and iat. Defaults to five seconds.
	Leeway time.Duration
	Clock  func() time.Time
}

// SessionValidator accepts HS256 tokens produced by a TokenIssuer sharing
// the same secret and issuer.
type SessionValidator struct {
	signingSecret []byte
	cookieName    string
	parser        *jwt.Parser
}

func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSessionSigningKey
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		return nil, ErrMissingSessionCookieName
	}
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultClockLeeway
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(resolveIssuer(cfg.Issuer)),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(leeway),
		jwt.WithTimeFunc(resolveClock(cfg.Clock)),
	)
	return &SessionValidator{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		cookieName:    cookieName,
		parser:        parser,
	}, nil
}

// CookieName returns the cookie consulted when no bearer token is sent.
func (v *SessionValidator) CookieName() string {
	return v.cookieName
}

// ValidateToken verifies signature, issuer and lifetime, then checks that
// the token identifies a user.
func (v *SessionValidator) ValidateToken(tokenString string) (SessionClaims, error) {
	raw := strings.TrimSpace(tokenString)
	if raw == "" {
		return SessionClaims{}, ErrMissingSessionToken
	}
	var claims SessionClaims
	if _, err := v.parser.ParseWithClaims(raw, &claims, v.signingKey); err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return SessionClaims{}, ErrExpiredSessionToken
		default:
			return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
		}
	}
	userID := strings.TrimSpace(claims.UserID)
	if userID == "" {
		return SessionClaims{}, ErrMissingSessionSubject
	}
	if claims.Subject != userID {
		return SessionClaims{}, fmt.Errorf("%w: subject %q does not match user %q", ErrInvalidSessionToken, claims.Subject, userID)
	}
	return claims, nil
}

// ValidateRequest validates the token carried by r, see TokenFromRequest.
func (v *SessionValidator) ValidateRequest(r *http.Request) (SessionClaims, error) {
	return v.ValidateToken(TokenFromRequest(r, v.cookieName))
}

func (v *SessionValidator) signingKey(*jwt.Token) (interface{}, error) {
	return v.signingSecret, nil
}

// TokenFromRequest returns the bearer token of r, falling back to the named
// cookie. It returns "" when neither is present.
func TokenFromRequest(r *http.Request, cookieName string) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	}
	if cookieName == "" {
		return ""
	}
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

func resolveIssuer(issuer string) string {
	if trimmed := strings.TrimSpace(issuer); trimmed != "" {
		return trimmed
	}
	return defaultSessionIssuer
}

func resolveClock(clock func() time.Time) func() time.Time {
	if clock == nil {
		return time.Now
	}
	return clock
}
