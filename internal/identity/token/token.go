package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "devportal/pkg/domain"
	dErrors "devportal/pkg/domain-errors"
)

// Claims represents the JWT claims for portal session tokens.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Manager creates and verifies portal session tokens.
type Manager struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

func NewManager(signingKey string, ttl time.Duration) *Manager {
	return &Manager{
		signingKey: []byte(signingKey),
		issuer:     "devportal",
		ttl:        ttl,
	}
}

// TTL returns the configured session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a new session token for the user, valid from now for the
// configured session lifetime.
func (m *Manager) Issue(userID id.UserID, now time.Time) (string, error) {
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			ID:        uuid.NewString(),
		},
	})
	return newToken.SignedString(m.signingKey)
}

// Verify checks the token's signature and expiry and returns the session's
// user ID. This is the authoritative check: any expiry hint a client derives
// locally never substitutes for it.
func (m *Manager) Verify(tokenString string, now time.Time) (id.UserID, error) {
	return m.verify(tokenString, now, 0)
}

// VerifyWithMargin verifies the token and additionally requires that it stays
// valid for at least margin past now. Auto-authorization uses this so a
// session cannot expire between the check and the issued code being redeemed.
func (m *Manager) VerifyWithMargin(tokenString string, now time.Time, margin time.Duration) (id.UserID, error) {
	return m.verify(tokenString, now, margin)
}

func (m *Manager) verify(tokenString string, now time.Time, margin time.Duration) (id.UserID, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return m.signingKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "session has expired")
		}
		return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid session token")
	}
	if !parsed.Valid {
		return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid session token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid session claims")
	}

	if margin > 0 {
		expiry, expErr := claims.GetExpirationTime()
		if expErr != nil || expiry == nil {
			return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid session claims")
		}
		if expiry.Time.Before(now.Add(margin)) {
			return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "session expires too soon")
		}
	}

	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid session claims")
	}
	return userID, nil
}

// PeekExpiry reads the expiry claim without verifying the signature. It
// exists for display hints only; nothing security-relevant may branch on it.
func PeekExpiry(tokenString string) (time.Time, error) {
	parser := jwt.NewParser()
	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "malformed token")
	}
	expiry, err := claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "token has no expiry")
	}
	return expiry.Time, nil
}
