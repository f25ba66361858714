package postgres

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"aliasmail/backend/internal/config"
	"aliasmail/backend/internal/domain"
	"aliasmail/backend/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "aliasmail.db") + "?_busy_timeout=5000"
	store, err := Open(context.Background(), config.DatabaseConfig{
		Type:         config.DatabaseSQLite,
		DSN:          dsn,
		MaxOpenConns: 1,
		AutoMigrate:  true,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedAlias(t *testing.T, store *Store, userID uint, email string) *domain.Alias {
	t.Helper()
	alias := &domain.Alias{UserID: userID, Email: email, Enabled: true}
	require.NoError(t, store.CreateAlias(context.Background(), alias))
	return alias
}

func TestStore_AliasMutationsRequireOwner(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	alias := seedAlias(t, store, 1, "a1@sl.local")

	assert.ErrorIs(t, store.CreateAlias(ctx, &domain.Alias{UserID: 2, Email: "a1@sl.local"}), storage.ErrAliasExists)

	_, err := store.ToggleAlias(ctx, alias.ID, 2)
	assert.ErrorIs(t, err, storage.ErrAliasNotFound)
	note := "hijack"
	_, err = store.UpdateAliasNote(ctx, alias.ID, 2, &note)
	assert.ErrorIs(t, err, storage.ErrAliasNotFound)
	assert.ErrorIs(t, store.DeleteAlias(ctx, alias.ID, 2), storage.ErrAliasNotFound)

	got, err := store.GetAlias(ctx, alias.ID)
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.Nil(t, got.Note)
}

func TestStore_ToggleAndNote(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	alias := seedAlias(t, store, 1, "a1@sl.local")

	toggled, err := store.ToggleAlias(ctx, alias.ID, 1)
	require.NoError(t, err)
	assert.False(t, toggled.Enabled)

	toggled, err = store.ToggleAlias(ctx, alias.ID, 1)
	require.NoError(t, err)
	assert.True(t, toggled.Enabled)

	note := "vip"
	updated, err := store.UpdateAliasNote(ctx, alias.ID, 1, &note)
	require.NoError(t, err)
	require.NotNil(t, updated.Note)
	assert.Equal(t, "vip", *updated.Note)

	// 相同的值再次写入也应成功
	_, err = store.UpdateAliasNote(ctx, alias.ID, 1, &note)
	require.NoError(t, err)

	cleared, err := store.UpdateAliasNote(ctx, alias.ID, 1, nil)
	require.NoError(t, err)
	assert.Nil(t, cleared.Note)
}

func TestStore_ListAliasesByUser(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.CreateAlias(ctx, &domain.Alias{
			UserID:    1,
			Email:     fmt.Sprintf("a%d@sl.local", i),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	seedAlias(t, store, 2, "other@sl.local")

	aliases, err := store.ListAliasesByUser(ctx, 1, 0, 20)
	require.NoError(t, err)
	require.Len(t, aliases, 3)
	assert.Equal(t, "a2@sl.local", aliases[0].Email)
	assert.Equal(t, "a0@sl.local", aliases[2].Email)

	aliases, err = store.ListAliasesByUser(ctx, 1, 20, 20)
	require.NoError(t, err)
	assert.Empty(t, aliases)
}

func TestStore_ContactUniqueIndexes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	alias := seedAlias(t, store, 1, "a1@sl.local")
	other := seedAlias(t, store, 1, "a2@sl.local")

	require.NoError(t, store.CreateContact(ctx, &domain.Contact{AliasID: alias.ID, WebsiteEmail: "bob@x.com", ReplyEmail: "ra+one@sl.local"}))

	err := store.CreateContact(ctx, &domain.Contact{AliasID: alias.ID, WebsiteEmail: "bob@x.com", ReplyEmail: "ra+two@sl.local"})
	assert.ErrorIs(t, err, storage.ErrContactExists)

	err = store.CreateContact(ctx, &domain.Contact{AliasID: other.ID, WebsiteEmail: "carol@x.com", ReplyEmail: "ra+one@sl.local"})
	assert.ErrorIs(t, err, storage.ErrReplyEmailExists)

	require.NoError(t, store.CreateContact(ctx, &domain.Contact{AliasID: other.ID, WebsiteEmail: "bob@x.com", ReplyEmail: "ra+three@sl.local"}))

	exists, err := store.ReplyEmailExists(ctx, "ra+one@sl.local")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = store.ReplyEmailExists(ctx, "ra+missing@sl.local")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.GetContactByAliasAndEmail(ctx, alias.ID, "carol@x.com")
	assert.ErrorIs(t, err, storage.ErrContactNotFound)

	contacts, err := store.ListContactsByAlias(ctx, other.ID, 0, 20)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "ra+three@sl.local", contacts[0].ReplyEmail)
}

func TestStore_CreateContactForDeletedAlias(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	alias := seedAlias(t, store, 1, "a1@sl.local")
	require.NoError(t, store.DeleteAlias(ctx, alias.ID, 1))

	err := store.CreateContact(ctx, &domain.Contact{AliasID: alias.ID, WebsiteEmail: "bob@x.com", ReplyEmail: "ra+one@sl.local"})
	assert.ErrorIs(t, err, storage.ErrAliasNotFound)

	exists, err := store.ReplyEmailExists(ctx, "ra+one@sl.local")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestContactError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"postgres 外键", &pgconn.PgError{Code: "23503"}, storage.ErrAliasNotFound},
		{"mysql 外键", &mysql.MySQLError{Number: 1452}, storage.ErrAliasNotFound},
		{"sqlite 外键", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey}, storage.ErrAliasNotFound},
		{"postgres 反向别名唯一", &pgconn.PgError{Code: "23505", ConstraintName: "idx_contacts_reply_email"}, storage.ErrReplyEmailExists},
		{"postgres 联系人唯一", &pgconn.PgError{Code: "23505", ConstraintName: "idx_contacts_alias_email"}, storage.ErrContactExists},
		{"mysql 反向别名唯一", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key 'contacts.idx_contacts_reply_email'"}, storage.ErrReplyEmailExists},
		{"别名不存在", fmt.Errorf("tx: %w", storage.ErrAliasNotFound), storage.ErrAliasNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, contactError(tt.err), tt.want)
		})
	}

	other := errors.New("connection reset")
	assert.Equal(t, other, contactError(other))
}

func TestStore_ConcurrentCreateContact(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	alias := seedAlias(t, store, 1, "a1@sl.local")

	const workers = 8
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results <- store.CreateContact(ctx, &domain.Contact{
				AliasID:      alias.ID,
				WebsiteEmail: "bob@x.com",
				ReplyEmail:   fmt.Sprintf("ra+%d@sl.local", i),
			})
		}(i)
	}
	wg.Wait()
	close(results)

	var success, conflict int
	for err := range results {
		if err == nil {
			success++
			continue
		}
		require.ErrorIs(t, err, storage.ErrContactExists)
		conflict++
	}
	assert.Equal(t, 1, success)
	assert.Equal(t, workers-1, conflict)
}

func TestStore_AliasLogsAndCounts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	alias := seedAlias(t, store, 1, "a1@sl.local")
	contact := &domain.Contact{AliasID: alias.ID, WebsiteEmail: "bob@x.com", WebsiteFrom: "Bob <bob@x.com>", ReplyEmail: "ra+one@sl.local"}
	require.NoError(t, store.CreateContact(ctx, contact))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	logs := []*domain.EmailLog{
		{UserID: 1, AliasID: alias.ID, ContactID: &contact.ID, CreatedAt: base},
		{UserID: 1, AliasID: alias.ID, ContactID: &contact.ID, IsReply: true, CreatedAt: base.Add(time.Hour)},
		{UserID: 1, AliasID: alias.ID, ContactID: &contact.ID, Blocked: true, CreatedAt: base.Add(2 * time.Hour)},
		{UserID: 1, AliasID: alias.ID, CreatedAt: base.Add(3 * time.Hour)},
	}
	for _, l := range logs {
		require.NoError(t, store.CreateEmailLog(ctx, l))
	}

	rows, err := store.ListAliasLogs(ctx, alias.ID, 0, 20)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Empty(t, rows[0].WebsiteEmail, "日志没有联系人时通信方为空")
	assert.True(t, rows[1].Blocked)
	assert.True(t, rows[2].IsReply)
	assert.Equal(t, "Bob <bob@x.com>", rows[3].WebsiteFrom)
	assert.True(t, base.Equal(rows[3].When))

	rows, err = store.ListAliasLogs(ctx, alias.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].IsReply)

	rows, err = store.ListAliasLogs(ctx, alias.ID, 40, 20)
	require.NoError(t, err)
	assert.Empty(t, rows)

	last, err := store.LastReplyLog(ctx, contact.ID)
	require.NoError(t, err)
	assert.Equal(t, logs[1].ID, last.ID)

	counts, err := store.CountLogFlags(ctx, []uint{alias.ID})
	require.NoError(t, err)
	var total int64
	for _, c := range counts {
		assert.Equal(t, alias.ID, c.AliasID)
		total += c.Count
	}
	assert.Equal(t, int64(4), total)
	assert.Len(t, counts, 3)
}

func TestStore_DeleteAliasCascades(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	alias := seedAlias(t, store, 1, "a1@sl.local")
	contact := &domain.Contact{AliasID: alias.ID, WebsiteEmail: "bob@x.com", ReplyEmail: "ra+one@sl.local"}
	require.NoError(t, store.CreateContact(ctx, contact))
	require.NoError(t, store.CreateEmailLog(ctx, &domain.EmailLog{UserID: 1, AliasID: alias.ID, ContactID: &contact.ID}))

	require.NoError(t, store.DeleteAlias(ctx, alias.ID, 1))

	_, err := store.GetAlias(ctx, alias.ID)
	assert.ErrorIs(t, err, storage.ErrAliasNotFound)
	contacts, err := store.ListContactsByAlias(ctx, alias.ID, 0, 20)
	require.NoError(t, err)
	assert.Empty(t, contacts)
	_, err = store.LastReplyLog(ctx, contact.ID)
	assert.ErrorIs(t, err, storage.ErrEmailLogNotFound)
}

func TestStore_UsersAndAPIKeys(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	user := &domain.User{Email: "u1@example.com", IsActive: true}
	require.NoError(t, store.CreateUser(ctx, user))
	assert.ErrorIs(t, store.CreateUser(ctx, &domain.User{Email: "u1@example.com"}), storage.ErrUserExists)

	got, err := store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	key := &domain.APIKey{UserID: user.ID, CodeHash: "deadbeef", Name: "cli"}
	require.NoError(t, store.SaveAPIKey(ctx, key))
	assert.ErrorIs(t, store.SaveAPIKey(ctx, &domain.APIKey{UserID: user.ID, CodeHash: "deadbeef"}), storage.ErrAPIKeyExists)

	require.NoError(t, store.UpdateAPIKeyLastUsed(ctx, key.ID, time.Now()))
	found, err := store.GetAPIKeyByHash(ctx, "deadbeef")
	require.NoError(t, err)
	assert.NotNil(t, found.LastUsedAt)

	_, err = store.GetAPIKeyByHash(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrAPIKeyNotFound)
	assert.NoError(t, store.Health(ctx))
}
