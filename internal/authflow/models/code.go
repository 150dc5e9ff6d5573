package models

import (
	"strings"
	"time"

	id "devportal/pkg/domain"
	dErrors "devportal/pkg/domain-errors"
)

// AuthorizationCode is a one-time code minted after a successful
// authorization and redeemed by the downstream application.
//
// Invariants:
//   - Code is the primary key and never reissued
//   - the record binds (user, application, role, redirect target, challenge)
//     at mint time; redemption re-verifies against these stored values only
//   - Used flips to true exactly once; a used or expired code never redeems
type AuthorizationCode struct {
	Code          string
	ApplicationID id.ApplicationID
	UserID        id.UserID
	Role          id.Role
	RedirectURI   string
	CodeChallenge string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	Used          bool
}

func NewAuthorizationCode(
	code string,
	applicationID id.ApplicationID,
	userID id.UserID,
	role id.Role,
	redirectURI string,
	codeChallenge string,
	now time.Time,
	ttl time.Duration,
) (*AuthorizationCode, error) {
	if code == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "code cannot be empty")
	}
	if applicationID.IsNil() || userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "code must bind a user and an application")
	}
	if role == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "code must bind a role")
	}
	if codeChallenge == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "code must bind a PKCE challenge")
	}
	if ttl <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "code lifetime must be positive")
	}
	return &AuthorizationCode{
		Code:          code,
		ApplicationID: applicationID,
		UserID:        userID,
		Role:          role,
		RedirectURI:   redirectURI,
		CodeChallenge: codeChallenge,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}, nil
}

// MarkUsed flips the single-use flag.
func (c *AuthorizationCode) MarkUsed() {
	c.Used = true
}

// AccessCredential is the only output a downstream application receives from
// a successful redemption.
type AccessCredential struct {
	UserID        id.UserID        `json:"userId"`
	ApplicationID id.ApplicationID `json:"applicationId"`
	Role          id.Role          `json:"role"`
}

// AppendCode attaches the issued code to the redirect target, using ?code=
// when the target has no query string and &code= when it does.
func AppendCode(redirectURL, code string) string {
	separator := "?"
	if strings.Contains(redirectURL, "?") {
		separator = "&"
	}
	return redirectURL + separator + "code=" + code
}
