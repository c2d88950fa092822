package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.hbk")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestExtractPlainZip(t *testing.T) {
	data := buildZip(t, map[string]string{
		"index.html":         "<html>index</html>",
		"objects/array.html": "<html>array</html>",
	})
	archivePath := writeTemp(t, data)
	scratch := t.TempDir()

	require.NoError(t, New().Extract(context.Background(), archivePath, scratch))

	content, err := os.ReadFile(filepath.Join(scratch, "objects", "array.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html>array</html>", string(content))
}

func TestExtractZipWithJunkPrefix(t *testing.T) {
	data := buildZip(t, map[string]string{"page.html": "<html>ok</html>"})
	prefixed := append([]byte("VENDORHDR\x00\x01\x02"), data...)
	archivePath := writeTemp(t, prefixed)
	scratch := t.TempDir()

	require.NoError(t, New().Extract(context.Background(), archivePath, scratch))

	content, err := os.ReadFile(filepath.Join(scratch, "page.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", string(content))
}

func TestExtractRejectsZipSlip(t *testing.T) {
	data := buildZip(t, map[string]string{"../evil.html": "escape"})
	archivePath := writeTemp(t, data)
	scratch := t.TempDir()

	err := New().Extract(context.Background(), archivePath, scratch)
	require.Error(t, err, "an entry escaping the scratch directory must fail extraction")
	assert.NoFileExists(t, filepath.Join(filepath.Dir(scratch), "evil.html"))
}

func TestExtractGarbageFails(t *testing.T) {
	archivePath := writeTemp(t, []byte("not an archive at all"))
	err := New().Extract(context.Background(), archivePath, t.TempDir())
	require.Error(t, err)
}

func TestExtractDoesNotMutateSource(t *testing.T) {
	data := buildZip(t, map[string]string{"a.html": "x"})
	archivePath := writeTemp(t, data)
	require.NoError(t, New().Extract(context.Background(), archivePath, t.TempDir()))

	after, err := os.ReadFile(archivePath)
	require.NoError(t, err)
	assert.Equal(t, data, after)
}
