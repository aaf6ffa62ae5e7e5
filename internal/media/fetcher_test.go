package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMediaFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestFetchLocalFile(t *testing.T) {
	path := writeMediaFile(t, "pic.png", []byte{0x89, 'P', 'N', 'G'})
	f := NewFetcher(nil)

	data, err := f.Fetch(context.Background(), path, 1024)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)
}

func TestFetchFileURL(t *testing.T) {
	path := writeMediaFile(t, "pic.png", []byte("img"))
	f := NewFetcher(nil)

	data, err := f.Fetch(context.Background(), "file://"+path, 1024)
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), data)
}

func TestFetchLocalFileTooLarge(t *testing.T) {
	path := writeMediaFile(t, "big.bin", make([]byte, 100))
	f := NewFetcher(nil)

	_, err := f.Fetch(context.Background(), path, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size limit")
}

func TestFetchMissingLocalFile(t *testing.T) {
	f := NewFetcher(nil)

	_, err := f.Fetch(context.Background(), filepath.Join(t.TempDir(), "absent.png"), 1024)
	assert.Error(t, err)
}

func TestFetchHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("remote bytes"))
	}))
	defer server.Close()

	f := NewFetcher(server.Client())

	data, err := f.Fetch(context.Background(), server.URL+"/pic.png", 1024)
	require.NoError(t, err)
	assert.Equal(t, []byte("remote bytes"), data)
}

func TestFetchHTTPTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 100))
	}))
	defer server.Close()

	f := NewFetcher(server.Client())

	_, err := f.Fetch(context.Background(), server.URL+"/big.bin", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size limit")
}

func TestFetchHTTPErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewFetcher(server.Client())

	_, err := f.Fetch(context.Background(), server.URL+"/gone.png", 1024)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFetchUnsupportedScheme(t *testing.T) {
	f := NewFetcher(nil)

	_, err := f.Fetch(context.Background(), "ftp://files.example.com/pic.png", 1024)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported media URL")
}
