package sources

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string]string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func newTestFetcher(s3Client S3API) *Fetcher {
	return NewFetcher(s3Client, NewHTTPClient(5*time.Second).SetRetryCount(0), ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
}

func TestFetcher_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modules.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o600))

	f := newTestFetcher(nil)

	rc, err := f.Open(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "[]", readAll(t, rc))

	rc, err = f.Open(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, "[]", readAll(t, rc))

	_, err = f.Open(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestFetcher_S3(t *testing.T) {
	f := newTestFetcher(&fakeS3{objects: map[string]string{"cec/lists/modules.json": `[{"model":"M1"}]`}})

	rc, err := f.Open(context.Background(), "s3://cec/lists/modules.json")
	require.NoError(t, err)
	assert.Equal(t, `[{"model":"M1"}]`, readAll(t, rc))

	_, err = f.Open(context.Background(), "s3://cec/lists/missing.json")
	assert.Error(t, err)

	_, err = f.Open(context.Background(), "s3://cec")
	assert.Error(t, err)

	_, err = newTestFetcher(nil).Open(context.Background(), "s3://cec/lists/modules.json")
	assert.Error(t, err)
}

func TestFetcher_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/modules.json" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	f := newTestFetcher(nil)

	rc, err := f.Open(context.Background(), srv.URL+"/modules.json")
	require.NoError(t, err)
	assert.Equal(t, "[]", readAll(t, rc))

	_, err = f.Open(context.Background(), srv.URL+"/other.json")
	assert.Error(t, err)
}

func TestFetcher_UnsupportedScheme(t *testing.T) {
	_, err := newTestFetcher(nil).Open(context.Background(), "ftp://example.com/modules.json")
	assert.Error(t, err)
}
