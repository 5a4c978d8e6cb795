package sqlstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{"empty", "  \n ", nil},
		{"single without terminator", "SELECT 1", []string{"SELECT 1"}},
		{"two statements", "CREATE TABLE a (x INT);\nCREATE TABLE b (y INT);\n", []string{"CREATE TABLE a (x INT)", "CREATE TABLE b (y INT)"}},
		{"semicolon in string", "INSERT INTO a VALUES ('x;y'); SELECT 2", []string{"INSERT INTO a VALUES ('x;y')", "SELECT 2"}},
		{"doubled quote", "SELECT 'it''s;'; SELECT 3", []string{"SELECT 'it''s;'", "SELECT 3"}},
		{"bracket identifier", "SELECT [a;b] FROM t; SELECT 4", []string{"SELECT [a;b] FROM t", "SELECT 4"}},
		{"backtick identifier", "SELECT `a;b` FROM t", []string{"SELECT `a;b` FROM t"}},
		{"line comment", "-- drop; everything\nSELECT 5;", []string{"-- drop; everything\nSELECT 5"}},
		{"comment only fragment", "SELECT 6;\n-- trailing note;\n/* block; */", []string{"SELECT 6"}},
		{"block comment", "SELECT /* a;b */ 7", []string{"SELECT /* a;b */ 7"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SplitStatements(tc.script))
		})
	}
}

func TestAbbreviate(t *testing.T) {
	assert.Equal(t, "CREATE TABLE a (x INT)", abbreviate("CREATE TABLE a\n  (x INT)"))
	long := abbreviate("SELECT " + strings.Repeat("col, ", 40) + "x FROM t")
	assert.Len(t, long, 80)
	assert.Contains(t, long, "...")
}
