// Package pkce implements the Proof Key for Code Exchange checks from
// RFC 7636. Only the S256 transform is supported; "plain" is rejected
// unconditionally.
package pkce

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	dErrors "devportal/pkg/domain-errors"
)

// MethodS256 is the only accepted code_challenge_method.
const MethodS256 = "S256"

const (
	minVerifierLength = 43
	maxVerifierLength = 128
)

// AcceptMethod validates the code_challenge_method parameter. Anything other
// than the literal "S256", including "plain", fails.
func AcceptMethod(method string) error {
	if method == "" {
		return dErrors.New(dErrors.CodeValidation, "code_challenge_method is required")
	}
	if method != MethodS256 {
		return dErrors.Newf(dErrors.CodeValidation, "code_challenge_method %q is not supported, only S256", method)
	}
	return nil
}

// ValidateChallenge checks that the challenge is a plausible S256 output: 43
// characters of the base64url alphabet, no padding.
func ValidateChallenge(challenge string) error {
	if challenge == "" {
		return dErrors.New(dErrors.CodeValidation, "code_challenge is required")
	}
	if len(challenge) != 43 {
		return dErrors.New(dErrors.CodeValidation, "code_challenge must be 43 characters")
	}
	if _, err := base64.RawURLEncoding.DecodeString(challenge); err != nil {
		return dErrors.New(dErrors.CodeValidation, "code_challenge must be base64url without padding")
	}
	return nil
}

// ComputeS256Challenge derives the challenge from a verifier:
// base64url-no-padding(SHA-256(verifier)).
func ComputeS256Challenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// Verify reports whether the presented verifier matches the stored challenge.
// The comparison is constant time. Callers at the redemption boundary must
// map a false result to the same undifferentiated failure as a consumed or
// expired code.
func Verify(verifier, storedChallenge string) bool {
	if len(verifier) < minVerifierLength || len(verifier) > maxVerifierLength {
		return false
	}
	computed := ComputeS256Challenge(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedChallenge)) == 1
}
