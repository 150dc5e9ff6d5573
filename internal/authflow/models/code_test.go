package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "devportal/pkg/domain"
	dErrors "devportal/pkg/domain-errors"
)

func Test_NewAuthorizationCode(t *testing.T) {
	now := time.Now()
	appID := id.NewApplicationID()
	userID := id.NewUserID()

	code, err := NewAuthorizationCode("c0de", appID, userID, "editor",
		"https://app.example.com/callback", "challenge-value", now, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), code.ExpiresAt)
	assert.False(t, code.Used)

	tests := []struct {
		name string
		run  func() error
	}{
		{name: "empty code", run: func() error {
			_, err := NewAuthorizationCode("", appID, userID, "editor", "u", "ch", now, time.Minute)
			return err
		}},
		{name: "nil user", run: func() error {
			_, err := NewAuthorizationCode("c", appID, id.UserID{}, "editor", "u", "ch", now, time.Minute)
			return err
		}},
		{name: "empty role", run: func() error {
			_, err := NewAuthorizationCode("c", appID, userID, "", "u", "ch", now, time.Minute)
			return err
		}},
		{name: "missing challenge", run: func() error {
			_, err := NewAuthorizationCode("c", appID, userID, "editor", "u", "", now, time.Minute)
			return err
		}},
		{name: "zero ttl", run: func() error {
			_, err := NewAuthorizationCode("c", appID, userID, "editor", "u", "ch", now, 0)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		})
	}
}

func Test_AppendCode(t *testing.T) {
	assert.Equal(t,
		"https://app.example.com/callback?code=abc123",
		AppendCode("https://app.example.com/callback", "abc123"))

	assert.Equal(t,
		"https://app.example.com/callback?env=prod&code=abc123",
		AppendCode("https://app.example.com/callback?env=prod", "abc123"))
}
