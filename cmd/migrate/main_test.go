package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationTarget(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		dsn     string
		wantDir string
		wantURL string
		wantErr bool
	}{
		{"postgres url", "postgres", "postgres://u:p@localhost:5432/db?sslmode=disable", "postgres", "postgres://u:p@localhost:5432/db?sslmode=disable", false},
		{"postgres keyword dsn", "postgres", "host=localhost user=u", "", "", true},
		{"mysql", "mysql", "u:p@tcp(localhost:3306)/db", "mysql", "mysql://u:p@tcp(localhost:3306)/db?multiStatements=true", false},
		{"mysql with params", "mysql", "u:p@tcp(db)/x?parseTime=true", "mysql", "mysql://u:p@tcp(db)/x?parseTime=true&multiStatements=true", false},
		{"sqlite", "sqlite", "data/aliasmail.db", "sqlite", "sqlite3://data/aliasmail.db", false},
		{"memory", "memory", "ignored", "", "", true},
		{"empty dsn", "postgres", "", "", "", true},
		{"unknown", "oracle", "x", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, url, err := migrationTarget(tt.typ, tt.dsn)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDir, dir)
			assert.Equal(t, tt.wantURL, url)
		})
	}
}

func TestParseSteps(t *testing.T) {
	n, err := parseSteps("3")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = parseSteps("0")
	assert.Error(t, err)
	_, err = parseSteps("abc")
	assert.Error(t, err)
}
