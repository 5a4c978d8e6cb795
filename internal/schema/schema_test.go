package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedScriptsForEveryDialect(t *testing.T) {
	require.Equal(t, []string{"mssql", "mysql", "postgres", "sqlite"}, Dialects())

	for _, d := range Dialects() {
		t.Run(d, func(t *testing.T) {
			s, err := Load(d, "", "")
			require.NoError(t, err)
			for _, table := range []string{"zone", "time_dim", "trip"} {
				assert.Contains(t, s.Schema, table)
			}
			assert.Contains(t, strings.ToLower(s.Schema), "pickup_date")
			for _, v := range DefaultViews {
				assert.Contains(t, s.Views, v)
			}
		})
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	views := filepath.Join(dir, "views.sql")
	require.NoError(t, os.WriteFile(views, []byte("CREATE VIEW custom AS SELECT 1;"), 0o644))

	s, err := Load("postgres", "", views)
	require.NoError(t, err)
	assert.Equal(t, "CREATE VIEW custom AS SELECT 1;", s.Views)
	assert.Contains(t, s.Schema, "CREATE TABLE IF NOT EXISTS trip")

	_, err = Load("postgres", filepath.Join(dir, "missing.sql"), "")
	require.Error(t, err)
}

func TestLoadUnknownDialect(t *testing.T) {
	_, err := Load("oracle", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}
