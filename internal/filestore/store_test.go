package filestore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/datachat/internal/config"
	appErr "github.com/xxxsen/datachat/internal/pkg/errors"
)

func TestCleanKey(t *testing.T) {
	ok := map[string]string{
		"a.pdf":          "a.pdf",
		"/dir/a.pdf":     "dir/a.pdf",
		"dir\\sub\\a.md": "dir/sub/a.md",
		"dir//a.pdf":     "dir/a.pdf",
	}
	for in, want := range ok {
		got, err := CleanKey(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got)
	}
	for _, in := range []string{"", "/", "../etc/passwd", "dir/../../x", "."} {
		_, err := CleanKey(in)
		require.ErrorIs(t, err, appErr.ErrInvalid, in)
	}
}

func TestNew(t *testing.T) {
	store, err := New(config.FileStoreConfig{})
	require.NoError(t, err)
	require.Nil(t, store)

	_, err = New(config.FileStoreConfig{Type: "ftp", Data: map[string]interface{}{}})
	require.Error(t, err)

	_, err = New(config.FileStoreConfig{Type: "local"})
	require.Error(t, err)
}

func TestLocalStoreOpen(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "folder"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "folder", "guide.md"), []byte("# guide"), 0o644))

	store, err := New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": dir}})
	require.NoError(t, err)
	require.Equal(t, "local", store.Type())

	rc, err := store.Open(context.Background(), "folder/guide.md")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "# guide", string(data))

	_, err = store.Open(context.Background(), "folder/missing.md")
	require.ErrorIs(t, err, appErr.ErrNotFound)

	_, err = store.Open(context.Background(), "folder")
	require.ErrorIs(t, err, appErr.ErrNotFound)

	_, err = store.Open(context.Background(), "../outside")
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

type fakeGetter struct {
	objects map[string]string
	lastKey string
}

func (f *fakeGetter) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.lastKey = *params.Key
	body, ok := f.objects[*params.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestS3StoreOpen(t *testing.T) {
	getter := &fakeGetter{objects: map[string]string{"docs/a/b.pdf": "pdf"}}
	store := &s3Store{client: getter, bucket: "bucket", prefix: "docs"}

	rc, err := store.Open(context.Background(), "/a/b.pdf")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "pdf", string(data))
	require.Equal(t, "docs/a/b.pdf", getter.lastKey)

	_, err = store.Open(context.Background(), "a/missing.pdf")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestBuildEndpoint(t *testing.T) {
	require.Equal(t, "", buildEndpoint(" ", true))
	require.Equal(t, "https://minio:9000", buildEndpoint("minio:9000", true))
	require.Equal(t, "http://minio:9000", buildEndpoint("minio:9000/", false))
	require.Equal(t, "https://s3.example.com", buildEndpoint("https://s3.example.com", false))
}
