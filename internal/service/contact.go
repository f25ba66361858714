package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"aliasmail/backend/internal/config"
	"aliasmail/backend/internal/domain"
	"aliasmail/backend/internal/monitoring"
	"aliasmail/backend/internal/storage"
)

// DateLayout 日期字段的输出格式
const DateLayout = "2006-01-02 15:04:05-07:00"

// ContactStore 联系人服务依赖的存储
type ContactStore interface {
	storage.ContactRepository
	LastReplyLog(ctx context.Context, contactID uint) (*domain.EmailLog, error)
}

// ContactView 联系人的对外表示
type ContactView struct {
	CreationDate           string  `json:"creation_date"`
	CreationTimestamp      int64   `json:"creation_timestamp"`
	LastEmailSentDate      *string `json:"last_email_sent_date"`
	LastEmailSentTimestamp *int64  `json:"last_email_sent_timestamp"`
	Contact                string  `json:"contact"`
	ReverseAlias           string  `json:"reverse_alias"`
}

// ContactService 负责联系人的创建、去重与序列化。
type ContactService struct {
	guard     AliasGuard
	store     ContactStore
	generator *ReverseAliasGenerator
	pageLimit int
	metrics   *monitoring.Metrics
	log       *zap.Logger
}

// NewContactService 创建联系人服务
func NewContactService(guard AliasGuard, store ContactStore, generator *ReverseAliasGenerator, cfg config.AliasConfig, metrics *monitoring.Metrics, log *zap.Logger) *ContactService {
	return &ContactService{
		guard:     guard,
		store:     store,
		generator: generator,
		pageLimit: pageLimitOrDefault(cfg.PageLimit),
		metrics:   metrics,
		log:       log,
	}
}

// Create 为别名添加通信方并分配反向别名。
//
// 先检查 (别名, 地址) 是否已存在；并发请求可能同时通过检查，
// 此时由存储层唯一索引拒绝其中之一，同样返回 ErrContactExists。
func (s *ContactService) Create(ctx context.Context, user *domain.User, aliasID uint, raw string) (*ContactView, error) {
	alias, err := s.guard.Authorize(ctx, user, aliasID)
	if err != nil {
		return nil, err
	}

	websiteFrom, websiteEmail, err := ParseContact(raw)
	if err != nil {
		return nil, err
	}

	_, err = s.store.GetContactByAliasAndEmail(ctx, alias.ID, websiteEmail)
	switch {
	case err == nil:
		s.metrics.RecordContactConflict(monitoring.ConflictDuplicateContact)
		return nil, ErrContactExists
	case !errors.Is(err, storage.ErrContactNotFound):
		return nil, fmt.Errorf("find contact: %w", err)
	}

	replyEmail, err := s.generator.GenerateUnique(ctx, s.store)
	if err != nil {
		return nil, err
	}

	contact := &domain.Contact{
		AliasID:      alias.ID,
		WebsiteEmail: websiteEmail,
		WebsiteFrom:  websiteFrom,
		ReplyEmail:   replyEmail,
	}
	if err := s.store.CreateContact(ctx, contact); err != nil {
		switch {
		case errors.Is(err, storage.ErrContactExists):
			s.metrics.RecordContactConflict(monitoring.ConflictDuplicateContact)
			return nil, ErrContactExists
		case errors.Is(err, storage.ErrReplyEmailExists):
			s.metrics.RecordContactConflict(monitoring.ConflictReplyEmailTaken)
			s.log.Warn("reverse alias collision on insert", zap.Uint("alias_id", alias.ID))
			return nil, ErrReverseAliasTaken
		case errors.Is(err, storage.ErrAliasNotFound):
			return nil, ErrForbidden
		}
		return nil, fmt.Errorf("create contact: %w", err)
	}

	s.metrics.RecordContactCreated()
	s.log.Debug("create reverse-alias",
		zap.String("contact", websiteFrom),
		zap.Uint("alias_id", alias.ID),
	)

	return s.Serialize(ctx, contact)
}

// List 按ID倒序返回别名的联系人，超出范围的页返回空列表
func (s *ContactService) List(ctx context.Context, user *domain.User, aliasID uint, page int) ([]*ContactView, error) {
	offset, err := pageOffset(page, s.pageLimit)
	if err != nil {
		return nil, err
	}
	alias, err := s.guard.Authorize(ctx, user, aliasID)
	if err != nil {
		return nil, err
	}

	contacts, err := s.store.ListContactsByAlias(ctx, alias.ID, offset, s.pageLimit)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}

	views := make([]*ContactView, 0, len(contacts))
	for _, contact := range contacts {
		view, err := s.Serialize(ctx, contact)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// Serialize 生成联系人的对外表示，附带最近一次回复时间
func (s *ContactService) Serialize(ctx context.Context, contact *domain.Contact) (*ContactView, error) {
	view := &ContactView{
		CreationDate:      FormatDate(contact.CreatedAt),
		CreationTimestamp: contact.CreatedAt.Unix(),
		Contact:           contact.Correspondent(),
		ReverseAlias:      ReverseAliasAddress(contact),
	}

	last, err := s.store.LastReplyLog(ctx, contact.ID)
	switch {
	case err == nil:
		date := FormatDate(last.CreatedAt)
		ts := last.CreatedAt.Unix()
		view.LastEmailSentDate = &date
		view.LastEmailSentTimestamp = &ts
	case !errors.Is(err, storage.ErrEmailLogNotFound):
		return nil, fmt.Errorf("last reply of contact %d: %w", contact.ID, err)
	}
	return view, nil
}

// ParseContact 将 From 文本解析为 (原始文本, 小写地址)。
// 支持 RFC 2047 编码的显示名；解析不出地址时返回 ErrInvalidContact。
func ParseContact(raw string) (string, string, error) {
	websiteFrom := strings.TrimSpace(raw)
	if websiteFrom == "" || len(websiteFrom) > domain.MaxWebsiteFromLength {
		return "", "", ErrInvalidContact
	}

	addr, err := mail.ParseAddress(websiteFrom)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidContact, err)
	}

	websiteEmail := strings.ToLower(addr.Address)
	if err := domain.ValidateAddress(websiteEmail); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidContact, err)
	}
	return websiteFrom, websiteEmail, nil
}

// ReverseAliasAddress 返回 "显示名" <reply_email> 形式的地址。
// 显示名取自原始 From 文本，没有时使用 "bob at x.com" 形式。
func ReverseAliasAddress(contact *domain.Contact) string {
	name := contact.DefaultDisplayName()
	if contact.WebsiteFrom != "" {
		if addr, err := mail.ParseAddress(contact.WebsiteFrom); err == nil && addr.Name != "" {
			name = addr.Name
		}
	}
	return (&mail.Address{Name: name, Address: contact.ReplyEmail}).String()
}

// FormatDate 按统一格式输出时间
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
