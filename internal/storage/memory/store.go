package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"aliasmail/backend/internal/domain"
	"aliasmail/backend/internal/storage"
)

// Store 使用内存保存别名、联系人与日志，主要用于开发验证和测试。
// 所有检查与写入都在同一把锁内完成，唯一约束与 SQL 存储一致。
type Store struct {
	mu sync.RWMutex

	aliases      map[uint]*domain.Alias
	aliasByEmail map[string]uint

	contacts       map[uint]*domain.Contact
	byReplyEmail   map[string]uint          // reply_email -> contactID
	byAliasWebsite map[uint]map[string]uint // aliasID -> website_email -> contactID

	logs []*domain.EmailLog

	users   map[uint]*domain.User
	byEmail map[string]uint

	apiKeys    map[uint]*domain.APIKey
	byCodeHash map[string]uint

	nextAliasID   uint
	nextContactID uint
	nextLogID     uint
	nextUserID    uint
	nextAPIKeyID  uint
}

var _ storage.Store = (*Store)(nil)

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		aliases:        make(map[uint]*domain.Alias),
		aliasByEmail:   make(map[string]uint),
		contacts:       make(map[uint]*domain.Contact),
		byReplyEmail:   make(map[string]uint),
		byAliasWebsite: make(map[uint]map[string]uint),
		users:          make(map[uint]*domain.User),
		byEmail:        make(map[string]uint),
		apiKeys:        make(map[uint]*domain.APIKey),
		byCodeHash:     make(map[string]uint),
	}
}

// ========== Alias Repository ==========

// CreateAlias 保存别名并分配ID
func (s *Store) CreateAlias(_ context.Context, alias *domain.Alias) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.aliasByEmail[alias.Email]; ok {
		return storage.ErrAliasExists
	}

	if alias.ID == 0 {
		s.nextAliasID++
		alias.ID = s.nextAliasID
	} else if _, ok := s.aliases[alias.ID]; ok {
		return storage.ErrAliasExists
	} else if alias.ID > s.nextAliasID {
		s.nextAliasID = alias.ID
	}
	if alias.CreatedAt.IsZero() {
		alias.CreatedAt = time.Now()
	}

	cp := *alias
	s.aliases[cp.ID] = &cp
	s.aliasByEmail[cp.Email] = cp.ID
	return nil
}

// GetAlias 根据ID获取别名
func (s *Store) GetAlias(_ context.Context, id uint) (*domain.Alias, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alias, ok := s.aliases[id]
	if !ok {
		return nil, storage.ErrAliasNotFound
	}
	cp := *alias
	return &cp, nil
}

// ListAliasesByUser 按创建时间倒序列出用户的别名
func (s *Store) ListAliasesByUser(_ context.Context, userID uint, offset, limit int) ([]*domain.Alias, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Alias, 0)
	for _, alias := range s.aliases {
		if alias.UserID == userID {
			cp := *alias
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	return paginate(result, offset, limit), nil
}

// ToggleAlias 翻转启用状态
func (s *Store) ToggleAlias(_ context.Context, id, userID uint) (*domain.Alias, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alias, ok := s.ownedAliasLocked(id, userID)
	if !ok {
		return nil, storage.ErrAliasNotFound
	}
	alias.Enabled = !alias.Enabled
	cp := *alias
	return &cp, nil
}

// UpdateAliasNote 替换备注
func (s *Store) UpdateAliasNote(_ context.Context, id, userID uint, note *string) (*domain.Alias, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alias, ok := s.ownedAliasLocked(id, userID)
	if !ok {
		return nil, storage.ErrAliasNotFound
	}
	if note != nil {
		n := *note
		note = &n
	}
	alias.Note = note
	cp := *alias
	return &cp, nil
}

// DeleteAlias 删除别名及其联系人和日志
func (s *Store) DeleteAlias(_ context.Context, id, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alias, ok := s.ownedAliasLocked(id, userID)
	if !ok {
		return storage.ErrAliasNotFound
	}

	for contactID, contact := range s.contacts {
		if contact.AliasID == id {
			delete(s.byReplyEmail, contact.ReplyEmail)
			delete(s.contacts, contactID)
		}
	}
	delete(s.byAliasWebsite, id)

	kept := s.logs[:0]
	for _, l := range s.logs {
		if l.AliasID != id {
			kept = append(kept, l)
		}
	}
	s.logs = kept

	delete(s.aliasByEmail, alias.Email)
	delete(s.aliases, id)
	return nil
}

func (s *Store) ownedAliasLocked(id, userID uint) (*domain.Alias, bool) {
	alias, ok := s.aliases[id]
	if !ok || alias.UserID != userID {
		return nil, false
	}
	return alias, true
}

// ========== Contact Repository ==========

// CreateContact 在同一把锁内检查两个唯一约束并写入
func (s *Store) CreateContact(_ context.Context, contact *domain.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.aliases[contact.AliasID]; !ok {
		return storage.ErrAliasNotFound
	}
	if _, ok := s.byAliasWebsite[contact.AliasID][contact.WebsiteEmail]; ok {
		return storage.ErrContactExists
	}
	if _, ok := s.byReplyEmail[contact.ReplyEmail]; ok {
		return storage.ErrReplyEmailExists
	}

	s.nextContactID++
	contact.ID = s.nextContactID
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = time.Now()
	}

	cp := *contact
	s.contacts[cp.ID] = &cp
	s.byReplyEmail[cp.ReplyEmail] = cp.ID
	if s.byAliasWebsite[cp.AliasID] == nil {
		s.byAliasWebsite[cp.AliasID] = make(map[string]uint)
	}
	s.byAliasWebsite[cp.AliasID][cp.WebsiteEmail] = cp.ID
	return nil
}

// GetContactByAliasAndEmail 按 (别名, 通信方地址) 查找联系人
func (s *Store) GetContactByAliasAndEmail(_ context.Context, aliasID uint, websiteEmail string) (*domain.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byAliasWebsite[aliasID][websiteEmail]
	if !ok {
		return nil, storage.ErrContactNotFound
	}
	cp := *s.contacts[id]
	return &cp, nil
}

// ReplyEmailExists 检查反向别名是否已被占用
func (s *Store) ReplyEmailExists(_ context.Context, replyEmail string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byReplyEmail[replyEmail]
	return ok, nil
}

// ListContactsByAlias 按ID倒序列出别名的联系人
func (s *Store) ListContactsByAlias(_ context.Context, aliasID uint, offset, limit int) ([]*domain.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Contact, 0)
	for _, id := range s.byAliasWebsite[aliasID] {
		cp := *s.contacts[id]
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })

	return paginate(result, offset, limit), nil
}

// ========== EmailLog Repository ==========

// CreateEmailLog 追加一条日志
func (s *Store) CreateEmailLog(_ context.Context, log *domain.EmailLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextLogID++
	log.ID = s.nextLogID
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	cp := *log
	s.logs = append(s.logs, &cp)
	return nil
}

// ListAliasLogs 返回别名日志，最近的在前
func (s *Store) ListAliasLogs(_ context.Context, aliasID uint, offset, limit int) ([]domain.AliasLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*domain.EmailLog, 0)
	for _, l := range s.logs {
		if l.AliasID == aliasID {
			matched = append(matched, l)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	matched = paginate(matched, offset, limit)

	result := make([]domain.AliasLog, 0, len(matched))
	for _, l := range matched {
		row := domain.AliasLog{
			ID:      l.ID,
			When:    l.CreatedAt,
			IsReply: l.IsReply,
			Blocked: l.Blocked,
			Bounced: l.Bounced,
		}
		if l.ContactID != nil {
			if c, ok := s.contacts[*l.ContactID]; ok {
				row.WebsiteEmail = c.WebsiteEmail
				row.WebsiteFrom = c.WebsiteFrom
			}
		}
		result = append(result, row)
	}
	return result, nil
}

// LastReplyLog 返回联系人最近一条回复日志
func (s *Store) LastReplyLog(_ context.Context, contactID uint) (*domain.EmailLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *domain.EmailLog
	for _, l := range s.logs {
		if !l.IsReply || l.ContactID == nil || *l.ContactID != contactID {
			continue
		}
		if last == nil || l.CreatedAt.After(last.CreatedAt) ||
			(l.CreatedAt.Equal(last.CreatedAt) && l.ID > last.ID) {
			last = l
		}
	}
	if last == nil {
		return nil, storage.ErrEmailLogNotFound
	}
	cp := *last
	return &cp, nil
}

// CountLogFlags 按别名和标志位分组计数
func (s *Store) CountLogFlags(_ context.Context, aliasIDs []uint) ([]domain.LogFlagCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[uint]struct{}, len(aliasIDs))
	for _, id := range aliasIDs {
		wanted[id] = struct{}{}
	}

	type key struct {
		aliasID uint
		flags   domain.LogFlags
	}
	counts := make(map[key]int64)
	for _, l := range s.logs {
		if _, ok := wanted[l.AliasID]; !ok {
			continue
		}
		counts[key{l.AliasID, domain.LogFlags{IsReply: l.IsReply, Bounced: l.Bounced, Blocked: l.Blocked}}]++
	}

	result := make([]domain.LogFlagCount, 0, len(counts))
	for k, n := range counts {
		result = append(result, domain.LogFlagCount{
			AliasID: k.aliasID,
			IsReply: k.flags.IsReply,
			Bounced: k.flags.Bounced,
			Blocked: k.flags.Blocked,
			Count:   n,
		})
	}
	return result, nil
}

// ========== User Repository ==========

// CreateUser 创建用户
func (s *Store) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[user.Email]; ok {
		return storage.ErrUserExists
	}

	s.nextUserID++
	user.ID = s.nextUserID
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	cp := *user
	s.users[cp.ID] = &cp
	s.byEmail[cp.Email] = cp.ID
	return nil
}

// GetUserByID 根据ID获取用户
func (s *Store) GetUserByID(_ context.Context, id uint) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

// ========== APIKey Repository ==========

// SaveAPIKey 保存API Key
func (s *Store) SaveAPIKey(_ context.Context, apiKey *domain.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byCodeHash[apiKey.CodeHash]; ok {
		return storage.ErrAPIKeyExists
	}

	s.nextAPIKeyID++
	apiKey.ID = s.nextAPIKeyID
	if apiKey.CreatedAt.IsZero() {
		apiKey.CreatedAt = time.Now()
	}
	cp := *apiKey
	s.apiKeys[cp.ID] = &cp
	s.byCodeHash[cp.CodeHash] = cp.ID
	return nil
}

// GetAPIKeyByHash 按密钥哈希查找
func (s *Store) GetAPIKeyByHash(_ context.Context, codeHash string) (*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byCodeHash[codeHash]
	if !ok {
		return nil, storage.ErrAPIKeyNotFound
	}
	cp := *s.apiKeys[id]
	return &cp, nil
}

// UpdateAPIKeyLastUsed 更新最后使用时间
func (s *Store) UpdateAPIKeyLastUsed(_ context.Context, id uint, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	apiKey, ok := s.apiKeys[id]
	if !ok {
		return storage.ErrAPIKeyNotFound
	}
	apiKey.LastUsedAt = &at
	return nil
}

// ========== 工具方法 ==========

// Close 关闭存储连接
func (s *Store) Close() error {
	// 内存存储不需要关闭连接
	return nil
}

// Health 健康检查
func (s *Store) Health(context.Context) error {
	return nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return items[:0]
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
