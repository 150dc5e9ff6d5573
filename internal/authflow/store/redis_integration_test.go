//go:build integration

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"devportal/internal/authflow/models"
	id "devportal/pkg/domain"
	"devportal/pkg/testutil/containers"
)

type RedisCodeStoreSuite struct {
	suite.Suite
	ctx   context.Context
	redis *containers.RedisContainer
	store *RedisCodeStore
}

func (s *RedisCodeStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.redis = containers.NewRedisContainer(s.T())
	s.store = NewRedisCodes(s.redis.Client)
}

func (s *RedisCodeStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisCodeStoreSuite) newCode(code string, ttl time.Duration) *models.AuthorizationCode {
	record, err := models.NewAuthorizationCode(
		code, id.NewApplicationID(), id.NewUserID(), "viewer",
		"https://example.com/callback", "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		time.Now(), ttl)
	s.Require().NoError(err)
	return record
}

func (s *RedisCodeStoreSuite) TestConsumeRoundTrip() {
	record := s.newCode("code-1", time.Minute)
	s.Require().NoError(s.store.Create(s.ctx, record))

	consumed, err := s.store.Consume(s.ctx, "code-1", time.Now())
	s.Require().NoError(err)
	s.Equal(record.UserID, consumed.UserID)
	s.Equal(record.ApplicationID, consumed.ApplicationID)
	s.Equal(record.Role, consumed.Role)
	s.Equal(record.CodeChallenge, consumed.CodeChallenge)
	s.True(consumed.Used)

	_, err = s.store.Consume(s.ctx, "code-1", time.Now())
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *RedisCodeStoreSuite) TestConsumeUnknownCode() {
	_, err := s.store.Consume(s.ctx, "never-issued", time.Now())
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *RedisCodeStoreSuite) TestKeyExpiry() {
	record := s.newCode("code-1", 500*time.Millisecond)
	s.Require().NoError(s.store.Create(s.ctx, record))

	time.Sleep(time.Second)

	_, err := s.store.Consume(s.ctx, "code-1", time.Now())
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *RedisCodeStoreSuite) TestStoredExpiryCheckedAgainstClock() {
	record := s.newCode("code-1", time.Minute)
	s.Require().NoError(s.store.Create(s.ctx, record))

	_, err := s.store.Consume(s.ctx, "code-1", time.Now().Add(2*time.Minute))
	s.Require().ErrorIs(err, ErrExpired)
}

// TestConsumeRace hammers one code from many goroutines; GETDEL guarantees a
// single winner.
func (s *RedisCodeStoreSuite) TestConsumeRace() {
	s.Require().NoError(s.store.Create(s.ctx, s.newCode("code-1", time.Minute)))

	const redeemers = 16
	var wg sync.WaitGroup
	errs := make([]error, redeemers)
	wg.Add(redeemers)
	for i := 0; i < redeemers; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.store.Consume(s.ctx, "code-1", time.Now())
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			s.Require().ErrorIs(err, ErrNotFound)
		}
	}
	s.Equal(1, wins)
}

func TestRedisCodeStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisCodeStoreSuite))
}
