package models

import (
	"strings"

	dErrors "devportal/pkg/domain-errors"
)

// AuthorizeParams are the four OAuth parameters every authorization
// operation re-validates, whether they arrive as query or body values.
type AuthorizeParams struct {
	ClientID            string `json:"clientId"`
	RedirectURL         string `json:"redirectUrl"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
}

func (p *AuthorizeParams) Normalize() {
	p.ClientID = strings.TrimSpace(p.ClientID)
	p.RedirectURL = strings.TrimSpace(p.RedirectURL)
	p.CodeChallenge = strings.TrimSpace(p.CodeChallenge)
	p.CodeChallengeMethod = strings.TrimSpace(p.CodeChallengeMethod)
}

// Validate checks presence only; method and challenge shape checks belong to
// the PKCE validator and the engine.
func (p *AuthorizeParams) Validate() error {
	if p.ClientID == "" {
		return dErrors.New(dErrors.CodeValidation, "clientId is required")
	}
	if p.RedirectURL == "" {
		return dErrors.New(dErrors.CodeValidation, "redirectUrl is required")
	}
	if p.CodeChallenge == "" {
		return dErrors.New(dErrors.CodeValidation, "code_challenge is required")
	}
	if p.CodeChallengeMethod == "" {
		return dErrors.New(dErrors.CodeValidation, "code_challenge_method is required")
	}
	return nil
}

// CredentialAuthorizeRequest is the interactive authorization body.
type CredentialAuthorizeRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	AuthorizeParams
}

func (r *CredentialAuthorizeRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.AuthorizeParams.Normalize()
}

func (r *CredentialAuthorizeRequest) Validate() error {
	if r.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "password is required")
	}
	return r.AuthorizeParams.Validate()
}

// TokenAuthorizeRequest is the silent authorization body carrying an
// existing portal session token.
type TokenAuthorizeRequest struct {
	Token string `json:"token"`
	AuthorizeParams
}

func (r *TokenAuthorizeRequest) Normalize() {
	r.Token = strings.TrimSpace(r.Token)
	r.AuthorizeParams.Normalize()
}

func (r *TokenAuthorizeRequest) Validate() error {
	if r.Token == "" {
		return dErrors.New(dErrors.CodeValidation, "token is required")
	}
	return r.AuthorizeParams.Validate()
}

// RedeemRequest is the collaborator-facing code exchange body.
type RedeemRequest struct {
	Code     string `json:"code"`
	Verifier string `json:"verifier"`
}

func (r *RedeemRequest) Normalize() {
	r.Code = strings.TrimSpace(r.Code)
	r.Verifier = strings.TrimSpace(r.Verifier)
}

func (r *RedeemRequest) Validate() error {
	if r.Code == "" {
		return dErrors.New(dErrors.CodeValidation, "code is required")
	}
	if r.Verifier == "" {
		return dErrors.New(dErrors.CodeValidation, "verifier is required")
	}
	return nil
}
