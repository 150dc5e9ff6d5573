package pkce

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "devportal/pkg/domain-errors"
)

// Verifier and challenge pair from RFC 7636 appendix B.
const (
	rfcVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	rfcChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

func Test_AcceptMethod(t *testing.T) {
	require.NoError(t, AcceptMethod("S256"))

	for _, method := range []string{"", "plain", "s256", "S512", "none"} {
		t.Run("rejects "+method, func(t *testing.T) {
			err := AcceptMethod(method)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func Test_ComputeS256Challenge(t *testing.T) {
	assert.Equal(t, rfcChallenge, ComputeS256Challenge(rfcVerifier))
}

func Test_ValidateChallenge(t *testing.T) {
	require.NoError(t, ValidateChallenge(rfcChallenge))

	tests := []struct {
		name      string
		challenge string
	}{
		{name: "empty", challenge: ""},
		{name: "too short", challenge: "abc"},
		{name: "padded", challenge: rfcChallenge[:41] + "=="},
		{name: "wrong alphabet", challenge: strings.Repeat("+", 43)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChallenge(tt.challenge)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func Test_Verify(t *testing.T) {
	assert.True(t, Verify(rfcVerifier, rfcChallenge))

	t.Run("wrong verifier", func(t *testing.T) {
		assert.False(t, Verify("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", rfcChallenge))
	})

	t.Run("verifier shorter than RFC minimum", func(t *testing.T) {
		short := "too-short"
		assert.False(t, Verify(short, ComputeS256Challenge(short)))
	})

	t.Run("verifier longer than RFC maximum", func(t *testing.T) {
		long := strings.Repeat("a", 129)
		assert.False(t, Verify(long, ComputeS256Challenge(long)))
	})

	t.Run("challenge is not the verifier itself", func(t *testing.T) {
		assert.False(t, Verify(rfcVerifier, rfcVerifier))
	})
}
