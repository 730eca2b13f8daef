package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/gundeck/internal/errors"
	"git.home.luguber.info/inful/gundeck/internal/retry"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New("sinden", "SindenLightgun", "main", 5*time.Second, 5*time.Second)
	c.apiBase = srv.URL
	return c, srv
}

func TestListDirParsesFiles(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/sinden/SindenLightgun/contents/Pi/Latest", r.URL.Path)
		require.Equal(t, "main", r.URL.Query().Get("ref"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"name":"Lightgun.exe","path":"Pi/Latest/Lightgun.exe","type":"file","size":1234,"download_url":"https://example.test/Lightgun.exe"},
			{"name":"notes.txt","path":"Pi/Latest/notes.txt","type":"file","size":10,"download_url":"https://example.test/notes.txt"}
		]`))
	}))

	listing, err := c.ListDir(context.Background(), "Pi/Latest")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, listing.Status)
	require.Len(t, listing.Files, 2)
	require.Equal(t, "Lightgun.exe", listing.Files[0].Name)
	require.Equal(t, int64(1234), listing.Files[0].Size)
}

func TestListDirNon200IsNotAnError(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	listing, err := c.ListDir(context.Background(), "Pi/Missing")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, listing.Status)
	require.Empty(t, listing.Files)
}

func TestListDirNetworkFailure(t *testing.T) {
	c, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := c.ListDir(context.Background(), "Pi/Latest")
	require.Error(t, err)
	require.True(t, errors.IsCategory(err, errors.CategoryRemote))
}

func TestDownloadWritesFileWithMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("binary payload"))
	}))
	defer srv.Close()

	c := New("sinden", "SindenLightgun", "main", 5*time.Second, 5*time.Second)
	dest := filepath.Join(t.TempDir(), "Lightgun.exe")
	file := RemoteFile{Name: "Lightgun.exe", DownloadURL: srv.URL + "/Lightgun.exe"}

	require.NoError(t, c.Download(context.Background(), file, dest, 0o755))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "binary payload", string(data))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestDownloadBadStatusLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New("sinden", "SindenLightgun", "main", 5*time.Second, 5*time.Second)
	c.retries = retry.NewPolicy(retry.BackoffFixed, time.Millisecond, time.Millisecond, 1)
	dir := t.TempDir()
	dest := filepath.Join(dir, "Lightgun.exe")
	file := RemoteFile{Name: "Lightgun.exe", DownloadURL: srv.URL + "/Lightgun.exe"}

	err := c.Download(context.Background(), file, dest, 0o644)
	require.Error(t, err)
	require.True(t, errors.IsCategory(err, errors.CategoryRemote))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestDownloadRetriesTransientFailure(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("binary payload"))
	}))
	defer srv.Close()

	c := New("sinden", "SindenLightgun", "main", 5*time.Second, 5*time.Second)
	c.retries = retry.NewPolicy(retry.BackoffFixed, time.Millisecond, time.Millisecond, 2)
	dest := filepath.Join(t.TempDir(), "Lightgun.exe")
	file := RemoteFile{Name: "Lightgun.exe", DownloadURL: srv.URL + "/Lightgun.exe"}

	require.NoError(t, c.Download(context.Background(), file, dest, 0o644))
	require.Equal(t, 3, hits)
}

func TestDownloadMissingURL(t *testing.T) {
	c := New("sinden", "SindenLightgun", "main", time.Second, time.Second)
	err := c.Download(context.Background(), RemoteFile{Name: "x"}, filepath.Join(t.TempDir(), "x"), 0o644)
	require.Error(t, err)
	require.True(t, errors.IsCategory(err, errors.CategoryRemote))
}

func TestListDirTimeout(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	c.listClient.Timeout = 50 * time.Millisecond

	_, err := c.ListDir(context.Background(), "Pi/Latest")
	require.Error(t, err)
	require.True(t, errors.IsCategory(err, errors.CategoryTimeout))
}
