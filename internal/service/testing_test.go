package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"aliasmail/backend/internal/config"
	"aliasmail/backend/internal/domain"
	"aliasmail/backend/internal/storage/memory"
)

var testAliasConfig = config.AliasConfig{
	EmailDomain:         "sl.local",
	ReversePrefix:       "ra+",
	TokenLength:         25,
	MaxGenerateAttempts: 1000,
	PageLimit:           20,
}

type fixture struct {
	store    *memory.Store
	aliases  *AliasService
	contacts *ContactService
	activity *ActivityService
	owner    *domain.User
	stranger *domain.User
	alias    *domain.Alias
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := zap.NewNop()
	store := memory.NewStore()

	owner := &domain.User{Email: "owner@example.com", IsActive: true}
	stranger := &domain.User{Email: "stranger@example.com", IsActive: true}
	require.NoError(t, store.CreateUser(ctx, owner))
	require.NoError(t, store.CreateUser(ctx, stranger))

	alias := &domain.Alias{UserID: owner.ID, Email: "shop.x@sl.local", Enabled: true}
	require.NoError(t, store.CreateAlias(ctx, alias))

	aliases := NewAliasService(store, testAliasConfig, nil, log)
	generator := NewReverseAliasGenerator(testAliasConfig, nil)
	return &fixture{
		store:    store,
		aliases:  aliases,
		contacts: NewContactService(aliases, store, generator, testAliasConfig, nil, log),
		activity: NewActivityService(aliases, store, testAliasConfig, nil, log),
		owner:    owner,
		stranger: stranger,
		alias:    alias,
	}
}

// addLog 写入一条指定标志位的日志
func (f *fixture) addLog(t *testing.T, contact *domain.Contact, at time.Time, isReply, blocked, bounced bool) {
	t.Helper()
	entry := &domain.EmailLog{
		UserID:    f.owner.ID,
		AliasID:   f.alias.ID,
		IsReply:   isReply,
		Blocked:   blocked,
		Bounced:   bounced,
		CreatedAt: at,
	}
	if contact != nil {
		entry.ContactID = &contact.ID
	}
	require.NoError(t, f.store.CreateEmailLog(context.Background(), entry))
}

func aliasConfigWith(tokenLength, maxAttempts int) config.AliasConfig {
	cfg := testAliasConfig
	cfg.TokenLength = tokenLength
	cfg.MaxGenerateAttempts = maxAttempts
	return cfg
}
