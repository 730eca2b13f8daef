// Package remote talks to the driver distribution repository: listing a
// release directory through the GitHub contents API and streaming individual
// files from their raw download URLs.
package remote

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"git.home.luguber.info/inful/gundeck/internal/errors"
	"git.home.luguber.info/inful/gundeck/internal/retry"
)

const maxListingResponseBytes = 5 * 1024 * 1024

// RemoteFile is one entry of a release directory listing.
type RemoteFile struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"download_url"`
}

// Listing is the outcome of probing one candidate release directory.
type Listing struct {
	Dir    string
	Status int
	Files  []RemoteFile
}

// Client fetches release listings and files. List requests use a short
// timeout, downloads a long one, matching their very different sizes.
type Client struct {
	owner   string
	repo    string
	branch  string
	apiBase string

	listClient     *http.Client
	downloadClient *http.Client
	retries        retry.Policy
}

// New builds a client for the given repository coordinates.
func New(owner, repo, branch string, listTimeout, downloadTimeout time.Duration) *Client {
	return &Client{
		owner:          owner,
		repo:           repo,
		branch:         branch,
		apiBase:        "https://api.github.com",
		listClient:     newHTTPClient(listTimeout),
		downloadClient: newHTTPClient(downloadTimeout),
		retries:        retry.DefaultPolicy(),
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return stderrors.New("too many redirects")
			}
			return nil
		},
	}
}

// ListDir probes one directory of the repository. Non-200 statuses are not
// errors here: the caller decides which statuses are acceptable for a probe.
func (c *Client) ListDir(ctx context.Context, dir string) (*Listing, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s",
		c.apiBase, url.PathEscape(c.owner), url.PathEscape(c.repo), dir, url.QueryEscape(c.branch))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, errors.InternalError("build listing request")
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.listClient.Do(req)
	if err != nil {
		return nil, classifyTransportError("list release directory", err)
	}
	defer resp.Body.Close()

	listing := &Listing{Dir: dir, Status: resp.StatusCode}
	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxListingResponseBytes))
		return listing, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListingResponseBytes))
	if err != nil {
		return nil, errors.RemoteError(err, "read listing response")
	}
	if err := json.Unmarshal(body, &listing.Files); err != nil {
		return nil, errors.RemoteError(err, "decode listing response")
	}
	return listing, nil
}

// Download streams one remote file to destPath with the given mode. The file
// is written through a temp name and renamed so a failed download never
// leaves a truncated file behind. Transient transport failures are retried
// per the client's backoff policy.
func (c *Client) Download(ctx context.Context, file RemoteFile, destPath string, mode os.FileMode) error {
	if file.DownloadURL == "" {
		return errors.RemoteError(nil, fmt.Sprintf("file %q has no download URL", file.Name))
	}
	return retry.Do(ctx, c.retries, func() error {
		return c.downloadOnce(ctx, file, destPath, mode)
	}, func(err error) bool {
		return errors.IsCategory(err, errors.CategoryRemote) || errors.IsCategory(err, errors.CategoryTimeout)
	})
}

func (c *Client) downloadOnce(ctx context.Context, file RemoteFile, destPath string, mode os.FileMode) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.DownloadURL, http.NoBody)
	if err != nil {
		return errors.InternalError("build download request")
	}

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return classifyTransportError(fmt.Sprintf("download %s", file.Name), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.RemoteError(nil, fmt.Sprintf("download %s: unexpected status %d", file.Name, resp.StatusCode))
	}

	tmp := destPath + ".part"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return errors.IOError(err, fmt.Sprintf("create %s", tmp))
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return classifyTransportError(fmt.Sprintf("download %s", file.Name), err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return errors.IOError(err, fmt.Sprintf("close %s", tmp))
	}
	if err := os.Rename(tmp, destPath); err != nil {
		_ = os.Remove(tmp)
		return errors.IOError(err, fmt.Sprintf("rename %s", tmp))
	}
	return nil
}

func classifyTransportError(op string, err error) error {
	var urlErr *url.Error
	if stderrors.As(err, &urlErr) && urlErr.Timeout() {
		return errors.TimeoutError(err, op)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.TimeoutError(err, op)
	}
	return errors.RemoteError(err, op)
}
