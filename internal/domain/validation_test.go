package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		wantErr error
	}{
		{"普通地址", "bob@x.com", nil},
		{"带加号", "user+tag@example.com", nil},
		{"空地址", "", ErrInvalidEmail},
		{"缺少域名", "bob@", ErrInvalidEmail},
		{"缺少本地部分", "@x.com", ErrInvalidEmail},
		{"没有@", "bob", ErrInvalidEmail},
		{"本地部分过长", strings.Repeat("a", 65) + "@x.com", ErrEmailTooLong},
		{"整体过长", "a@" + strings.Repeat("b", 260), ErrEmailTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.address)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateDomain(t *testing.T) {
	tests := []struct {
		name   string
		domain string
		valid  bool
	}{
		{"普通域名", "sl.local", true},
		{"子域名", "mail.example.com", true},
		{"空", "", false},
		{"包含空格", "exa mple.com", false},
		{"以点开头", ".example.com", false},
		{"标签过长", strings.Repeat("a", 64) + ".com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDomain(tt.domain)
			assert.Equal(t, tt.valid, err == nil)
		})
	}
}
