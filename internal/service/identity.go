package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"aliasmail/backend/internal/config"
	"aliasmail/backend/internal/monitoring"
)

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyz"

// ReplyEmailChecker 查询反向别名是否已被占用
type ReplyEmailChecker interface {
	ReplyEmailExists(ctx context.Context, replyEmail string) (bool, error)
}

// ReverseAliasGenerator 生成形如 <prefix><token>@<domain> 的反向别名。
//
// Generate 只负责随机生成；GenerateUnique 在有限次数内查询存储避开已占用的地址。
// 存储层的唯一索引才是最终保证。
type ReverseAliasGenerator struct {
	prefix      string
	domain      string
	tokenLength int
	maxAttempts int
	metrics     *monitoring.Metrics

	intN func(n int) int
}

// NewReverseAliasGenerator 创建反向别名生成器
func NewReverseAliasGenerator(cfg config.AliasConfig, metrics *monitoring.Metrics) *ReverseAliasGenerator {
	g := &ReverseAliasGenerator{
		prefix:      cfg.ReversePrefix,
		domain:      cfg.EmailDomain,
		tokenLength: cfg.TokenLength,
		maxAttempts: cfg.MaxGenerateAttempts,
		metrics:     metrics,
		intN:        rand.IntN,
	}
	if g.tokenLength <= 0 {
		g.tokenLength = 25
	}
	if g.maxAttempts <= 0 {
		g.maxAttempts = 1000
	}
	return g
}

// Generate 生成一个候选地址，每次调用重新采样
func (g *ReverseAliasGenerator) Generate() string {
	var b strings.Builder
	b.Grow(len(g.prefix) + g.tokenLength + 1 + len(g.domain))
	b.WriteString(g.prefix)
	for i := 0; i < g.tokenLength; i++ {
		b.WriteByte(tokenAlphabet[g.intN(len(tokenAlphabet))])
	}
	b.WriteByte('@')
	b.WriteString(g.domain)
	return b.String()
}

// GenerateUnique 返回第一个未被占用的候选地址。
// 所有尝试都冲突时返回最后一个候选且不报错；查询出错时立即返回错误。
func (g *ReverseAliasGenerator) GenerateUnique(ctx context.Context, checker ReplyEmailChecker) (string, error) {
	var candidate string
	attempts := 0
	for attempts < g.maxAttempts {
		attempts++
		candidate = g.Generate()

		exists, err := checker.ReplyEmailExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check reverse alias: %w", err)
		}
		if !exists {
			break
		}
	}
	g.metrics.ObserveReverseAliasAttempts(attempts)
	return candidate, nil
}
