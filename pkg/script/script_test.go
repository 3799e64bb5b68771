package script_test

import (
	"testing"

	"github.com/pseudomuto/hermes/pkg/script"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty script",
			input:    "",
			expected: nil,
		},
		{
			name:     "whitespace and comments only",
			input:    "  -- nothing to do here\n/* or here */\n;\n",
			expected: nil,
		},
		{
			name:     "single statement without semicolon",
			input:    "CREATE DATABASE analytics",
			expected: []string{"CREATE DATABASE analytics"},
		},
		{
			name: "multiple statements",
			input: `CREATE TABLE users (id UInt64) ENGINE = MergeTree ORDER BY id;
ALTER TABLE users ADD COLUMN name String;`,
			expected: []string{
				"CREATE TABLE users (id UInt64) ENGINE = MergeTree ORDER BY id",
				"ALTER TABLE users ADD COLUMN name String",
			},
		},
		{
			name:     "semicolon inside string literal",
			input:    "INSERT INTO t VALUES ('a;b'); INSERT INTO t VALUES ('it''s')",
			expected: []string{"INSERT INTO t VALUES ('a;b')", "INSERT INTO t VALUES ('it''s')"},
		},
		{
			name:     "semicolon inside escaped string literal",
			input:    `SELECT 'a\';b'; SELECT 2`,
			expected: []string{`SELECT 'a\';b'`, "SELECT 2"},
		},
		{
			name:     "semicolon inside quoted identifiers",
			input:    "CREATE TABLE `we;ird` (\"c;ol\" UInt8) ENGINE = Memory; SELECT 1",
			expected: []string{"CREATE TABLE `we;ird` (\"c;ol\" UInt8) ENGINE = Memory", "SELECT 1"},
		},
		{
			name:     "semicolon inside comments",
			input:    "-- first; still a comment\nSELECT 1 /* ; */; SELECT 2",
			expected: []string{"-- first; still a comment\nSELECT 1 /* ; */", "SELECT 2"},
		},
		{
			name:     "arithmetic and division are not comments",
			input:    "SELECT 4 - 2, 6 / 3;",
			expected: []string{"SELECT 4 - 2, 6 / 3"},
		},
		{
			name:     "trailing comment after last statement",
			input:    "SELECT 1;\n-- done\n",
			expected: []string{"SELECT 1"},
		},
		{
			name:     "unterminated string is kept as text",
			input:    "SELECT 'oops",
			expected: []string{"SELECT 'oops"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmts, err := script.Split(tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.expected, stmts)
		})
	}
}
