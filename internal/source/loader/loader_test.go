package loader

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStorage struct {
	bucket  string
	objects map[string][]byte
}

func (m *memStorage) Upload(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStorage) Bucket() string { return m.bucket }

func TestOpenLocalFiles(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "case_log.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("a,b\n1,2\n3,4\n"), 0o644))
	mdPath := filepath.Join(dir, "kb.md")
	require.NoError(t, os.WriteFile(mdPath, []byte("runbook"), 0o644))

	src, err := Open(context.Background(), csvPath, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, src.Len())

	src, err = Open(context.Background(), mdPath, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, src.Len())
}

func TestOpenUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.png")
	require.NoError(t, os.WriteFile(path, []byte{1}, 0o644))

	_, err := Open(context.Background(), path, nil, Options{})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestOpenFromObjectStorage(t *testing.T) {
	store := &memStorage{bucket: "docs", objects: map[string][]byte{
		"cases/log.csv": []byte("case,module\nC-1,EDI\n"),
	}}

	src, err := Open(context.Background(), "s3://docs/cases/log.csv", store, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, src.Len())

	_, err = Open(context.Background(), "s3://other/cases/log.csv", store, Options{})
	assert.Error(t, err)

	_, err = Open(context.Background(), "s3://docs/cases/log.csv", nil, Options{})
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestIsCaseLog(t *testing.T) {
	assert.True(t, IsCaseLog("Case Log.XLSX"))
	assert.True(t, IsCaseLog("s3://b/cases.csv"))
	assert.False(t, IsCaseLog("kb.docx"))
}
