// Package zenodo is a client for the Zenodo deposit REST API: record search,
// deposition creation and versioning, file replacement and publishing.
//
// Every call is a single blocking round trip (or a short fixed sequence of
// them). Requests are never retried; any non-2xx response is an *APIError.
package zenodo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/starford/zensync/internal/models"
)

// Client talks to one Zenodo instance with one access token.
type Client struct {
	config *Config
	api    string
	client *http.Client
	logger *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client, e.g. with one bound to an
// httptest server.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.client = hc
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient validates cfg and returns a ready Client.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		config: &cfg,
		api:    cfg.APIURL(),
		client: cfg.NewHTTPClient(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// APIURL returns the REST API root this client targets.
func (c *Client) APIURL() string {
	return c.api
}

func (c *Client) depositionURL(id int64) string {
	return c.api + "/deposit/depositions/" + strconv.FormatInt(id, 10)
}

// searchResponse is the envelope returned by GET /api/records.
type searchResponse struct {
	Hits struct {
		Hits  []models.Record `json:"hits"`
		Total json.RawMessage `json:"total"`
	} `json:"hits"`
}

// FindLatestRecordForConcept returns the highest version published under
// conceptDOI, or nil when the search has no hits.
func (c *Client) FindLatestRecordForConcept(ctx context.Context, conceptDOI string) (*models.Record, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("conceptdoi:%q", conceptDOI))
	params.Set("sort", "version")
	params.Set("order", "desc")
	params.Set("size", "1")

	var resp searchResponse
	if err := c.doJSON(ctx, http.MethodGet, c.api+"/records?"+params.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("find latest record for %s: %w", conceptDOI, err)
	}
	if len(resp.Hits.Hits) == 0 {
		return nil, nil
	}
	rec := resp.Hits.Hits[0]
	return &rec, nil
}

type metadataEnvelope struct {
	Metadata models.Metadata `json:"metadata"`
}

// CreateDeposition creates a new, unpublished deposition carrying metadata.
func (c *Client) CreateDeposition(ctx context.Context, metadata models.Metadata) (*models.Deposition, error) {
	var dep models.Deposition
	if err := c.doJSON(ctx, http.MethodPost, c.api+"/deposit/depositions", metadataEnvelope{Metadata: metadata}, &dep); err != nil {
		return nil, fmt.Errorf("create deposition: %w", err)
	}
	return &dep, nil
}

// GetDeposition fetches a deposition by its API URL.
func (c *Client) GetDeposition(ctx context.Context, depositionURL string) (*models.Deposition, error) {
	var dep models.Deposition
	if err := c.doJSON(ctx, http.MethodGet, depositionURL, nil, &dep); err != nil {
		return nil, fmt.Errorf("get deposition: %w", err)
	}
	return &dep, nil
}

// UpdateMetadata replaces the metadata of an unpublished deposition.
func (c *Client) UpdateMetadata(ctx context.Context, id int64, metadata models.Metadata) (*models.Deposition, error) {
	var dep models.Deposition
	if err := c.doJSON(ctx, http.MethodPut, c.depositionURL(id), metadataEnvelope{Metadata: metadata}, &dep); err != nil {
		return nil, fmt.Errorf("update deposition %d: %w", id, err)
	}
	return &dep, nil
}

// NewVersion opens a new draft version in the lineage of conceptDOI and sets
// its metadata. When the concept cannot be found it creates a fresh
// deposition instead, which starts a new concept.
func (c *Client) NewVersion(ctx context.Context, conceptDOI string, metadata models.Metadata) (*models.Deposition, error) {
	latest, err := c.FindLatestRecordForConcept(ctx, conceptDOI)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		c.logger.Warn("zenodo: concept not found, creating new deposition",
			slog.String("concept_doi", conceptDOI))
		return c.CreateDeposition(ctx, metadata)
	}

	var dep models.Deposition
	action := c.depositionURL(latest.ID) + "/actions/newversion"
	if err := c.doJSON(ctx, http.MethodPost, action, nil, &dep); err != nil {
		return nil, fmt.Errorf("new version of %d: %w", latest.ID, err)
	}
	if dep.Links.LatestDraft == "" {
		return nil, fmt.Errorf("new version of %d: response has no latest_draft link", latest.ID)
	}

	draft, err := c.GetDeposition(ctx, dep.Links.LatestDraft)
	if err != nil {
		return nil, err
	}
	return c.UpdateMetadata(ctx, draft.ID, metadata)
}

// ListFiles returns the files currently attached to a deposition.
func (c *Client) ListFiles(ctx context.Context, id int64) ([]models.DepositionFile, error) {
	var files []models.DepositionFile
	if err := c.doJSON(ctx, http.MethodGet, c.depositionURL(id)+"/files", nil, &files); err != nil {
		return nil, fmt.Errorf("list files of %d: %w", id, err)
	}
	return files, nil
}

// DeleteFile removes one file from an unpublished deposition.
func (c *Client) DeleteFile(ctx context.Context, id int64, fileID string) error {
	endpoint := c.depositionURL(id) + "/files/" + url.PathEscape(fileID)
	if err := c.doJSON(ctx, http.MethodDelete, endpoint, nil, nil); err != nil {
		return fmt.Errorf("delete file %s of %d: %w", fileID, id, err)
	}
	return nil
}

// UploadFile attaches the local file at localPath to dep as destName. Any
// file already attached under destName is deleted first, so exactly one
// file of that name remains.
func (c *Client) UploadFile(ctx context.Context, dep *models.Deposition, localPath, destName string) (*models.DepositionFile, error) {
	files, err := c.ListFiles(ctx, dep.ID)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if f.Filename != destName {
			continue
		}
		if err := c.DeleteFile(ctx, dep.ID, f.ID); err != nil {
			return nil, err
		}
		c.logger.Debug("zenodo: replaced existing file",
			slog.Int64("deposition_id", dep.ID),
			slog.String("file", destName))
	}

	body, contentType, err := multipartBody(localPath, destName)
	if err != nil {
		return nil, err
	}

	var uploaded models.DepositionFile
	if err := c.do(ctx, http.MethodPost, c.depositionURL(dep.ID)+"/files", contentType, body, &uploaded); err != nil {
		return nil, fmt.Errorf("upload %s to %d: %w", destName, dep.ID, err)
	}
	return &uploaded, nil
}

// multipartBody encodes the upload form: a "name" field and a "file" part.
// The local file is open only for the duration of this call.
func multipartBody(localPath, destName string) (*bytes.Buffer, string, error) {
	fh, err := os.Open(localPath)
	if err != nil {
		return nil, "", fmt.Errorf("zenodo: open %s: %w", localPath, err)
	}
	defer fh.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("name", destName); err != nil {
		return nil, "", fmt.Errorf("zenodo: encode upload: %w", err)
	}
	part, err := w.CreateFormFile("file", filepath.Base(localPath))
	if err != nil {
		return nil, "", fmt.Errorf("zenodo: encode upload: %w", err)
	}
	if _, err := io.Copy(part, fh); err != nil {
		return nil, "", fmt.Errorf("zenodo: read %s: %w", localPath, err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("zenodo: encode upload: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// Publish publishes dep and returns the resulting record, fetched through
// the deposition's record link.
func (c *Client) Publish(ctx context.Context, dep *models.Deposition) (*models.Record, error) {
	var published models.Deposition
	if err := c.doJSON(ctx, http.MethodPost, c.depositionURL(dep.ID)+"/actions/publish", nil, &published); err != nil {
		return nil, fmt.Errorf("publish %d: %w", dep.ID, err)
	}
	if published.Links.Record == "" {
		return nil, fmt.Errorf("publish %d: response has no record link", dep.ID)
	}

	var rec models.Record
	if err := c.doJSON(ctx, http.MethodGet, published.Links.Record, nil, &rec); err != nil {
		return nil, fmt.Errorf("fetch published record of %d: %w", dep.ID, err)
	}
	return &rec, nil
}

// doJSON sends body (if any) as JSON and decodes the response into result.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, result any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, method, endpoint, contentType, reader, result)
}

// do executes one authenticated request.
func (c *Client) do(ctx context.Context, method, endpoint, contentType string, body io.Reader, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("zenodo: request",
		slog.String("method", method),
		slog.String("url", endpoint),
		slog.Int("status", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(method, endpoint, resp.StatusCode, respBody)
	}

	if result != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
