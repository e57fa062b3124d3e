package rootadmin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmails(t *testing.T) {
	got := ParseEmails(" Root@Example.com , ,second@example.com,root@example.com ")
	assert.Equal(t, []string{"root@example.com", "second@example.com"}, got)

	assert.Nil(t, ParseEmails(""))
	assert.Nil(t, ParseEmails(" , ,"))
}

func TestValidateEmails(t *testing.T) {
	assert.NoError(t, ValidateEmails([]string{"a@b.co", "x.y@z.example.org"}))
	assert.ErrorIs(t, ValidateEmails([]string{"not-an-email"}), ErrInvalidEmail)
	assert.ErrorIs(t, ValidateEmails([]string{"two@@example.com"}), ErrInvalidEmail)
}

func TestContainsIsCaseInsensitive(t *testing.T) {
	list, err := New([]string{"Root@Example.COM"})
	require.NoError(t, err)

	assert.True(t, list.Contains("root@example.com"))
	assert.True(t, list.Contains("  ROOT@EXAMPLE.COM  "))
	assert.False(t, list.Contains("other@example.com"))

	var nilList *Allowlist
	assert.False(t, nilList.Contains("root@example.com"))
}

func TestReplaceRejectsEmptyAndInvalid(t *testing.T) {
	list, err := New([]string{"root@example.com"})
	require.NoError(t, err)

	assert.ErrorIs(t, list.Replace(nil), ErrEmpty)
	assert.ErrorIs(t, list.Replace([]string{"bogus"}), ErrInvalidEmail)
	assert.True(t, list.Contains("root@example.com"), "failed replace keeps previous set")

	require.NoError(t, list.Replace([]string{"new@example.com"}))
	assert.False(t, list.Contains("root@example.com"))
	assert.True(t, list.Contains("new@example.com"))
}

func TestPersistPreservesOtherLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("DB_PATH=/data/app.db\nADMIN_EMAILS=old@example.com\nSECRET=shh\n"), 0o600))

	list, err := New([]string{"root@example.com", "second@example.com"})
	require.NoError(t, err)
	require.NoError(t, list.Persist(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(raw)
	assert.Contains(t, content, "DB_PATH=/data/app.db")
	assert.Contains(t, content, "SECRET=shh")
	assert.Contains(t, content, "ADMIN_EMAILS=root@example.com,second@example.com")
	assert.NotContains(t, content, "old@example.com")

	assert.Equal(t, "root@example.com,second@example.com", os.Getenv(EnvKey))
}

func TestPersistCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")

	list, err := New([]string{"root@example.com"})
	require.NoError(t, err)
	require.NoError(t, list.Persist(path))

	emails, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"root@example.com"}, emails)
}

func TestLoadFileMissing(t *testing.T) {
	emails, err := LoadFile(filepath.Join(t.TempDir(), "nope.env"))
	require.NoError(t, err)
	assert.Nil(t, emails)
}
