package authn

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRevocationStore struct {
	mock.Mock
}

func (m *MockRevocationStore) ValidAfter(ctx context.Context, subject string) (time.Time, error) {
	args := m.Called(ctx, subject)
	return args.Get(0).(time.Time), args.Error(1)
}

func TestWithRevocationCheck(t *testing.T) {
	ctx := context.Background()
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	verified := func() *MockVerifier {
		m := new(MockVerifier)
		m.On("Verify", mock.Anything, "tok").
			Return(&VerifiedToken{Subject: "u1", IssuedAt: issued}, nil)
		return m
	}

	t.Run("nil store returns the verifier unchanged", func(t *testing.T) {
		m := new(MockVerifier)
		assert.Same(t, m, WithRevocationCheck(m, nil))
	})

	t.Run("never revoked passes", func(t *testing.T) {
		store := new(MockRevocationStore)
		store.On("ValidAfter", mock.Anything, "u1").Return(time.Time{}, nil)

		got, err := WithRevocationCheck(verified(), store).Verify(ctx, "tok")

		require.NoError(t, err)
		assert.Equal(t, "u1", got.Subject)
		store.AssertExpectations(t)
	})

	t.Run("token issued before revocation is rejected", func(t *testing.T) {
		store := new(MockRevocationStore)
		store.On("ValidAfter", mock.Anything, "u1").Return(issued.Add(time.Minute), nil)

		_, err := WithRevocationCheck(verified(), store).Verify(ctx, "tok")

		assert.ErrorIs(t, err, ErrTokenRevoked)
		assert.ErrorIs(t, err, ErrVerification)
	})

	t.Run("token issued at revocation second is accepted", func(t *testing.T) {
		store := new(MockRevocationStore)
		store.On("ValidAfter", mock.Anything, "u1").Return(issued, nil)

		_, err := WithRevocationCheck(verified(), store).Verify(ctx, "tok")

		assert.NoError(t, err)
	})

	t.Run("store failure is a transport error", func(t *testing.T) {
		store := new(MockRevocationStore)
		store.On("ValidAfter", mock.Anything, "u1").Return(time.Time{}, errors.New("connection reset"))

		_, err := WithRevocationCheck(verified(), store).Verify(ctx, "tok")

		assert.ErrorIs(t, err, ErrTransport)
		assert.Contains(t, err.Error(), "revocation lookup failed")
	})

	t.Run("empty verification result skips the store", func(t *testing.T) {
		m := new(MockVerifier)
		m.On("Verify", mock.Anything, "tok").Return(nil, nil)
		store := new(MockRevocationStore)

		got, err := WithRevocationCheck(m, store).Verify(ctx, "tok")

		assert.Nil(t, got)
		assert.ErrorIs(t, err, ErrVerification)
		assert.ErrorIs(t, err, ErrMissingSubject)
		store.AssertNotCalled(t, "ValidAfter")
	})

	t.Run("verifier failure skips the store", func(t *testing.T) {
		m := new(MockVerifier)
		m.On("Verify", mock.Anything, "tok").Return(nil, errors.New("expired"))
		store := new(MockRevocationStore)

		_, err := WithRevocationCheck(m, store).Verify(ctx, "tok")

		assert.EqualError(t, err, "expired")
		store.AssertNotCalled(t, "ValidAfter")
	})
}
