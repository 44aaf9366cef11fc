package authn

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockVerifier is a mock implementation of Verifier
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, token string) (*VerifiedToken, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*VerifiedToken), args.Error(1)
}

// failingSource always fails to produce a verifier
type failingSource struct{ err error }

func (s failingSource) Verifier(context.Context) (Verifier, error) { return nil, s.err }

func headersWith(authorization string) http.Header {
	h := http.Header{}
	if authorization != "" {
		h.Set("Authorization", authorization)
	}
	return h
}

func TestAuthenticate(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()

	t.Run("missing header yields no credentials", func(t *testing.T) {
		mockVerifier := new(MockVerifier)
		auth := NewAuthenticator(Static(mockVerifier), logger)

		outcome := auth.Authenticate(ctx, http.Header{})

		assert.Equal(t, NoCredentials, outcome.Kind)
		assert.Nil(t, outcome.Principal)
		assert.Empty(t, outcome.Reason)
		mockVerifier.AssertNotCalled(t, "Verify")
	})

	t.Run("non-bearer schemes yield no credentials", func(t *testing.T) {
		for _, header := range []string{"Basic xyz", "bearer abc123", "Bearer", "Token abc", "BearerXYZ"} {
			mockVerifier := new(MockVerifier)
			auth := NewAuthenticator(Static(mockVerifier), logger)

			outcome := auth.Authenticate(ctx, headersWith(header))

			assert.Equal(t, NoCredentials, outcome.Kind, "header %q", header)
			mockVerifier.AssertNotCalled(t, "Verify")
		}
	})

	t.Run("basic auth ignores provider state", func(t *testing.T) {
		auth := NewAuthenticator(failingSource{err: errors.New("no credentials")}, logger)

		outcome := auth.Authenticate(ctx, headersWith("Basic xyz"))

		assert.Equal(t, NoCredentials, outcome.Kind)
	})

	t.Run("valid token yields principal with email", func(t *testing.T) {
		mockVerifier := new(MockVerifier)
		auth := NewAuthenticator(Static(mockVerifier), logger)

		mockVerifier.On("Verify", mock.Anything, "abc123").
			Return(&VerifiedToken{Subject: "u1", Email: "a@b.com", EmailVerified: true}, nil)

		outcome := auth.Authenticate(ctx, headersWith("Bearer abc123"))

		require.Equal(t, Authenticated, outcome.Kind)
		require.NotNil(t, outcome.Principal)
		assert.Equal(t, "u1", outcome.Principal.SubjectID)
		require.NotNil(t, outcome.Principal.Email)
		assert.Equal(t, "a@b.com", *outcome.Principal.Email)
		assert.True(t, outcome.Principal.EmailVerified)
		assert.True(t, outcome.Principal.Authenticated)
		assert.NoError(t, outcome.Err)
		mockVerifier.AssertExpectations(t)
	})

	t.Run("missing email is reported as absent", func(t *testing.T) {
		mockVerifier := new(MockVerifier)
		auth := NewAuthenticator(Static(mockVerifier), logger)

		mockVerifier.On("Verify", mock.Anything, "phone-user").
			Return(&VerifiedToken{Subject: "u2"}, nil)

		outcome := auth.Authenticate(ctx, headersWith("Bearer phone-user"))

		require.Equal(t, Authenticated, outcome.Kind)
		assert.Equal(t, "u2", outcome.Principal.SubjectID)
		assert.Nil(t, outcome.Principal.Email)
		assert.Equal(t, "", outcome.Principal.EmailOrEmpty())
	})

	t.Run("lowercase header name is found", func(t *testing.T) {
		mockVerifier := new(MockVerifier)
		auth := NewAuthenticator(Static(mockVerifier), logger)

		mockVerifier.On("Verify", mock.Anything, "abc123").
			Return(&VerifiedToken{Subject: "u1"}, nil)

		h := http.Header{}
		h.Set("authorization", "Bearer abc123")
		outcome := auth.Authenticate(ctx, h)

		assert.Equal(t, Authenticated, outcome.Kind)
	})

	t.Run("token is passed through unmodified", func(t *testing.T) {
		mockVerifier := new(MockVerifier)
		auth := NewAuthenticator(Static(mockVerifier), logger)

		mockVerifier.On("Verify", mock.Anything, " spaced token ").
			Return(&VerifiedToken{Subject: "u1"}, nil)

		outcome := auth.Authenticate(ctx, headersWith("Bearer  spaced token "))

		assert.Equal(t, Authenticated, outcome.Kind)
		mockVerifier.AssertExpectations(t)
	})

	t.Run("verifier failure yields rejection with reason", func(t *testing.T) {
		mockVerifier := new(MockVerifier)
		auth := NewAuthenticator(Static(mockVerifier), logger)

		mockVerifier.On("Verify", mock.Anything, "bad").
			Return(nil, errors.New("signature invalid"))

		outcome := auth.Authenticate(ctx, headersWith("Bearer bad"))

		assert.Equal(t, Rejected, outcome.Kind)
		assert.Nil(t, outcome.Principal)
		assert.Equal(t, "Invalid token: signature invalid", outcome.Reason)
		assert.ErrorIs(t, outcome.Err, ErrVerification)
		mockVerifier.AssertExpectations(t)
	})

	t.Run("empty token is still sent to the provider", func(t *testing.T) {
		mockVerifier := new(MockVerifier)
		auth := NewAuthenticator(Static(mockVerifier), logger)

		mockVerifier.On("Verify", mock.Anything, "").
			Return(nil, errors.New("id token must be a non-empty string"))

		outcome := auth.Authenticate(ctx, headersWith("Bearer "))

		assert.Equal(t, Rejected, outcome.Kind)
		assert.NotEmpty(t, outcome.Reason)
	})

	t.Run("transport errors keep their kind", func(t *testing.T) {
		mockVerifier := new(MockVerifier)
		auth := NewAuthenticator(Static(mockVerifier), logger)

		mockVerifier.On("Verify", mock.Anything, "tok").
			Return(nil, NewTransportError(errors.New("dial tcp: connection refused")))

		outcome := auth.Authenticate(ctx, headersWith("Bearer tok"))

		assert.Equal(t, Rejected, outcome.Kind)
		assert.Equal(t, ErrorKindTransport, KindOf(outcome.Err))
		assert.Equal(t, "Invalid token: dial tcp: connection refused", outcome.Reason)
	})

	t.Run("initialization failure yields config rejection", func(t *testing.T) {
		auth := NewAuthenticator(failingSource{err: errors.New("no project id")}, logger)

		outcome := auth.Authenticate(ctx, headersWith("Bearer abc123"))

		assert.Equal(t, Rejected, outcome.Kind)
		assert.ErrorIs(t, outcome.Err, ErrConfig)
		assert.Contains(t, outcome.Reason, "no project id")
	})

	t.Run("missing subject is rejected", func(t *testing.T) {
		mockVerifier := new(MockVerifier)
		auth := NewAuthenticator(Static(mockVerifier), logger)

		mockVerifier.On("Verify", mock.Anything, "nosub").
			Return(&VerifiedToken{Email: "a@b.com"}, nil)

		outcome := auth.Authenticate(ctx, headersWith("Bearer nosub"))

		assert.Equal(t, Rejected, outcome.Kind)
		assert.ErrorIs(t, outcome.Err, ErrMissingSubject)
	})

	t.Run("nil static verifier is a config rejection", func(t *testing.T) {
		auth := NewAuthenticator(Static(nil), logger)

		outcome := auth.Authenticate(ctx, headersWith("Bearer abc123"))

		assert.Equal(t, Rejected, outcome.Kind)
		assert.ErrorIs(t, outcome.Err, ErrNoVerifier)
		assert.Equal(t, ProviderFailed, auth.ProviderState())
	})
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		wantOK bool
	}{
		{name: "bearer token", header: "Bearer abc123", want: "abc123", wantOK: true},
		{name: "empty header", header: "", wantOK: false},
		{name: "basic scheme", header: "Basic xyz", wantOK: false},
		{name: "lowercase scheme", header: "bearer abc", wantOK: false},
		{name: "prefix only", header: "Bearer ", want: "", wantOK: true},
		{name: "repeated prefix keeps remainder", header: "Bearer Bearer x", want: "Bearer x", wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := BearerToken(headersWith(tt.header))
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOutcomeKindString(t *testing.T) {
	assert.Equal(t, "no_credentials", NoCredentials.String())
	assert.Equal(t, "authenticated", Authenticated.String())
	assert.Equal(t, "rejected", Rejected.String())
	assert.Equal(t, "OutcomeKind(9)", OutcomeKind(9).String())
}
