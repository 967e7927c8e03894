package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvFileMissingReadsEmpty(t *testing.T) {
	f := OpenEnvFile(filepath.Join(t.TempDir(), "missing.env"))
	vars, err := f.Read()
	require.NoError(t, err)
	assert.Empty(t, vars)
}

func TestEnvFileSetAndDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("EXISTING=one\n"), 0o600))

	f := OpenEnvFile(path)
	require.NoError(t, f.Set("NEW_KEY", "two words"))
	require.NoError(t, f.Set("EXISTING", "changed"))

	vars, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"EXISTING": "changed", "NEW_KEY": "two words"}, vars)

	deleted, err := f.Delete("EXISTING")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = f.Delete("EXISTING")
	require.NoError(t, err)
	assert.False(t, deleted)

	vars, err = OpenEnvFile(path).Read()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"NEW_KEY": "two words"}, vars)
}

func TestEnvFileRejectsInvalidKey(t *testing.T) {
	f := OpenEnvFile(filepath.Join(t.TempDir(), ".env"))
	for _, key := range []string{"", "1ABC", "WITH-DASH", "SPACE KEY"} {
		assert.Error(t, f.Set(key, "x"), key)
	}
	assert.True(t, ValidEnvKey("_PRIVATE_1"))
}

func TestEnvFileSetKeepsOtherLinesVerbatim(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	original := "# database\n" +
		"DATABASE_URL=postgres://u:p@h/${DB_NAME}\n" +
		"DB_NAME=app\n" +
		"\n" +
		"GREETING='hello $USER'\n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o600))

	f := OpenEnvFile(path)
	require.NoError(t, f.Set("NEW_KEY", "1"))
	require.NoError(t, f.Set("DB_NAME", "app_test"))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# database\n"+
		"DATABASE_URL=postgres://u:p@h/${DB_NAME}\n"+
		"DB_NAME=\"app_test\"\n"+
		"\n"+
		"GREETING='hello $USER'\n"+
		"NEW_KEY=1\n", string(b))

	vars, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@h/${DB_NAME}", vars["DATABASE_URL"])
	assert.Equal(t, "hello $USER", vars["GREETING"])

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
}

func TestEnvFileStoresValuesLiterally(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	f := OpenEnvFile(path)

	values := map[string]string{
		"REF":    "${HOME}/data",
		"QUOTED": `say "hi"`,
		"ZEROS":  "007",
	}
	for k, v := range values {
		require.NoError(t, f.Set(k, v))
	}

	vars, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, values, vars)

	// the config loader must see the same literal values
	loaded, err := godotenv.Read(path)
	require.NoError(t, err)
	assert.Equal(t, values, loaded)
}

func TestEnvFileDeleteDropsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("A=1\nB=2\nexport A=3\n"), 0o600))

	deleted, err := OpenEnvFile(path).Delete("A")
	require.NoError(t, err)
	assert.True(t, deleted)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "B=2\n", string(b))
}
