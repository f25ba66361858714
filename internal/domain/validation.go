package domain

import (
	"errors"
	"regexp"
	"strings"
)

// 验证相关的错误定义
var (
	ErrEmailTooLong  = errors.New("email address too long")
	ErrInvalidEmail  = errors.New("invalid email format")
	ErrInvalidDomain = errors.New("invalid domain format")
	ErrDomainTooLong = errors.New("domain too long (max 253 chars)")
)

// 验证常量
const (
	// RFC 5322 邮箱地址长度限制
	MaxEmailLength     = 254 // 整个邮箱地址最大长度
	MaxLocalPartLength = 64  // 本地部分最大长度(@前面)
	MaxDomainLength    = 253 // 域名最大长度

	// 原始 From 文本的最大长度，与 contacts.website_from 列一致
	MaxWebsiteFromLength = 512
)

// 域名验证（支持子域名）
var domainRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]?(\.[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]?)*$`)

// ValidateAddress 检查解析后的通信方地址：非空、长度合法、恰好一个@
func ValidateAddress(address string) error {
	if address == "" {
		return ErrInvalidEmail
	}
	if len(address) > MaxEmailLength {
		return ErrEmailTooLong
	}

	at := strings.LastIndex(address, "@")
	if at <= 0 || at == len(address)-1 {
		return ErrInvalidEmail
	}
	if at > MaxLocalPartLength {
		return ErrEmailTooLong
	}
	return nil
}

// ValidateDomain 验证域名，用于校验反向别名域名配置
func ValidateDomain(domain string) error {
	if domain == "" {
		return ErrInvalidDomain
	}

	// 长度检查
	if len(domain) > MaxDomainLength {
		return ErrDomainTooLong
	}

	// 格式检查
	if !domainRegex.MatchString(domain) {
		return ErrInvalidDomain
	}

	// 检查每个标签的长度（不超过63字符）
	for _, label := range strings.Split(domain, ".") {
		if len(label) > 63 {
			return ErrInvalidDomain
		}
	}

	return nil
}
