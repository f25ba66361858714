package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"aliasmail/backend/internal/auth/jwt"
	"aliasmail/backend/internal/domain"
	"aliasmail/backend/internal/service"
	"aliasmail/backend/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T, withTokens bool) (*Service, *memory.Store, *jwt.Manager) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := memory.NewStore()
	apiKeys := service.NewAPIKeyService(ctx, store, time.Minute, zap.NewNop())

	var tokens *jwt.Manager
	if withTokens {
		tokens = jwt.NewManager(strings.Repeat("a", 32), "test")
	}
	return NewService(apiKeys, tokens, store), store, tokens
}

func TestParseCredentials(t *testing.T) {
	tests := []struct {
		name           string
		authentication string
		apiKey         string
		authorization  string
		want           Credentials
		wantErr        error
	}{
		{"authentication header", "k1", "", "", Credentials{MethodAPIKey, "k1"}, nil},
		{"authentication wins", "k1", "k2", "Bearer t", Credentials{MethodAPIKey, "k1"}, nil},
		{"x-api-key", "", "k2", "", Credentials{MethodAPIKey, "k2"}, nil},
		{"bearer", "", "", "Bearer tok", Credentials{MethodBearer, "tok"}, nil},
		{"bearer lowercase", "", "", "bearer tok", Credentials{MethodBearer, "tok"}, nil},
		{"basic rejected", "", "", "Basic abc", Credentials{}, ErrInvalidCredentials},
		{"empty bearer", "", "", "Bearer  ", Credentials{}, ErrInvalidCredentials},
		{"nothing", "", "", "", Credentials{}, ErrMissingCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCredentials(tt.authentication, tt.apiKey, tt.authorization)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthService_APIKey(t *testing.T) {
	svc, store, _ := newTestService(t, false)
	ctx := context.Background()

	user := &domain.User{Email: "u@example.com", IsActive: true}
	require.NoError(t, store.CreateUser(ctx, user))
	require.NoError(t, store.SaveAPIKey(ctx, &domain.APIKey{UserID: user.ID, CodeHash: service.HashAPIKey("good")}))

	got, err := svc.Authenticate(ctx, Credentials{Method: MethodAPIKey, Value: "good"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = svc.Authenticate(ctx, Credentials{Method: MethodAPIKey, Value: "bad"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.True(t, IsCredentialError(err))
}

func TestAuthService_Bearer(t *testing.T) {
	svc, store, tokens := newTestService(t, true)
	ctx := context.Background()

	active := &domain.User{Email: "a@example.com", IsActive: true}
	inactive := &domain.User{Email: "i@example.com", IsActive: false}
	require.NoError(t, store.CreateUser(ctx, active))
	require.NoError(t, store.CreateUser(ctx, inactive))

	token, err := tokens.GenerateToken(active.ID, active.Email, time.Minute)
	require.NoError(t, err)
	got, err := svc.Authenticate(ctx, Credentials{Method: MethodBearer, Value: token})
	require.NoError(t, err)
	assert.Equal(t, active.ID, got.ID)

	token, err = tokens.GenerateToken(inactive.ID, inactive.Email, time.Minute)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, Credentials{Method: MethodBearer, Value: token})
	assert.ErrorIs(t, err, ErrUserInactive)

	token, err = tokens.GenerateToken(999, "", time.Minute)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, Credentials{Method: MethodBearer, Value: token})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, Credentials{Method: MethodBearer, Value: "not-a-jwt"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_BearerDisabled(t *testing.T) {
	svc, _, _ := newTestService(t, false)

	_, err := svc.Authenticate(context.Background(), Credentials{Method: MethodBearer, Value: "x"})
	assert.ErrorIs(t, err, ErrBearerDisabled)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
