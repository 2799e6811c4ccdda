// Package mealie implements a client for the backup endpoints of a Mealie server.
package mealie

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/isdelr/mealie-backup/internal/models"
)

const (
	backupsPath  = "/api/admin/backups"
	downloadPath = "/api/utils/download"
)

// Options encapsulates the settings used to construct a Client.
type Options struct {
	BaseURL string
	APIKey  string

	// HTTPClient defaults to a client without a timeout.
	HTTPClient *http.Client

	LogRequests bool
}

// Client provides access to the backup endpoints. It holds no mutable state
// and is safe to share.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	logRequests bool
}

// NewClient creates a new Client.
func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		httpClient:  hc,
		logRequests: opts.LogRequests,
	}
}

// ListBackups returns all backups known to the server.
func (c *Client) ListBackups(ctx context.Context, locale string) (models.BackupCatalog, error) {
	const op = "list backups"

	var catalog models.BackupCatalog
	if err := c.doJSON(ctx, op, http.MethodGet, backupsPath, locale, &catalog); err != nil {
		return models.BackupCatalog{}, err
	}
	if catalog.Backups == nil {
		return models.BackupCatalog{}, &DecodeError{Op: op, Err: errors.New("missing imports field")}
	}
	return catalog, nil
}

// CreateBackup asks the server to create a backup. The call returns once the
// server has finished the backup job. A result with Error set is not
// returned as an error.
func (c *Client) CreateBackup(ctx context.Context, locale string) (models.SuccessResult, error) {
	var result models.SuccessResult
	if err := c.doJSON(ctx, "create backup", http.MethodPost, backupsPath, locale, &result); err != nil {
		return models.SuccessResult{}, err
	}
	return result, nil
}

// RequestDownloadToken fetches a single-use token for downloading the named backup.
func (c *Client) RequestDownloadToken(ctx context.Context, name, locale string) (models.DownloadToken, error) {
	const op = "request download token"

	var resp models.FileTokenResponse
	if err := c.doJSON(ctx, op, http.MethodGet, backupPath(name), locale, &resp); err != nil {
		return "", err
	}
	if resp.FileToken == "" {
		return "", &DecodeError{Op: op, Err: errors.New("empty fileToken")}
	}
	return resp.FileToken, nil
}

// DeleteBackup removes the named backup from the server.
func (c *Client) DeleteBackup(ctx context.Context, name, locale string) (models.SuccessResult, error) {
	var result models.SuccessResult
	if err := c.doJSON(ctx, "delete backup", http.MethodDelete, backupPath(name), locale, &result); err != nil {
		return models.SuccessResult{}, err
	}
	return result, nil
}

// DownloadByToken downloads the archive authorized by token. The download
// endpoint does not require the API key.
func (c *Client) DownloadByToken(ctx context.Context, token models.DownloadToken) ([]byte, error) {
	const op = "download backup"

	u := c.baseURL + downloadPath + "?" + url.Values{"token": {string(token)}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &TransportError{Op: op, Method: http.MethodGet, URL: c.baseURL + downloadPath, Err: err}
	}

	if c.logRequests {
		log.Debug().Str("method", req.Method).Str("path", downloadPath).Msg("Sending request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Method: http.MethodGet, URL: c.baseURL + downloadPath, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if !isSuccess(resp.StatusCode) {
		var verr models.HTTPValidationError
		if derr := json.NewDecoder(resp.Body).Decode(&verr); derr != nil {
			return nil, &TransportError{Op: op, Method: http.MethodGet, URL: c.baseURL + downloadPath, StatusCode: resp.StatusCode, Err: derr}
		}
		return nil, &ValidationError{StatusCode: resp.StatusCode, Details: verr.Detail}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Method: http.MethodGet, URL: c.baseURL + downloadPath, StatusCode: resp.StatusCode, Err: err}
	}
	return data, nil
}

// doJSON sends an authenticated request and decodes the JSON response into out.
func (c *Client) doJSON(ctx context.Context, op, method, path, locale string, out interface{}) error {
	u := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return &TransportError{Op: op, Method: method, URL: u, Err: err}
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if locale != "" {
		req.Header.Set("Accept-Language", locale)
	}

	if c.logRequests {
		log.Debug().Str("method", method).Str("path", path).Msg("Sending request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Method: method, URL: u, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if !isSuccess(resp.StatusCode) {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return &TransportError{Op: op, Method: method, URL: u, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &DecodeError{Op: op, Err: fmt.Errorf("decode %s %s: %w", method, path, err)}
	}
	return nil
}

func backupPath(name string) string {
	return backupsPath + "/" + url.PathEscape(name)
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}
