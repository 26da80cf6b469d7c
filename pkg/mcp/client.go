package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/knowledger-ai/knowledger/pkg/models"
)

// Client calls the knowledge HTTP API on behalf of MCP tools. Compound tool
// operations (add tags, link traits) are read-modify-write sequences over
// the plain CRUD endpoints.
type Client struct {
	baseURL string
	token   string
	cfg     *Config
	http    *http.Client
}

// NewClient creates an API client from the discovered configuration.
func NewClient(cfg *Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.APIEndpoint, "/"),
		token:   cfg.UserToken,
		cfg:     cfg,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// SaveKnowledge creates an entry, filling in the configured default project
// and tags when the request does not set them.
func (c *Client) SaveKnowledge(ctx context.Context, req *models.CreateKnowledgeRequest) (*models.Knowledge, error) {
	if req.ProjectID == nil && c.cfg.DefaultProject != "" {
		if id, err := uuid.Parse(c.cfg.DefaultProject); err == nil {
			req.ProjectID = &id
		}
	}
	if len(c.cfg.DefaultTags) > 0 {
		req.Tags = mergeTags(req.Tags, c.cfg.DefaultTags)
	}

	var entry models.Knowledge
	if err := c.do(ctx, http.MethodPost, "/api/knowledge", nil, req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetKnowledge fetches a single entry by ID.
func (c *Client) GetKnowledge(ctx context.Context, id string) (*models.Knowledge, error) {
	var entry models.Knowledge
	if err := c.do(ctx, http.MethodGet, "/api/knowledge/"+url.PathEscape(id), nil, nil, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListKnowledge lists entries, newest first.
func (c *Client) ListKnowledge(ctx context.Context, limit, offset int, projectID string) (*models.SearchKnowledgeResponse, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}
	if projectID != "" {
		query.Set("project_id", projectID)
	}

	var resp models.SearchKnowledgeResponse
	if err := c.do(ctx, http.MethodGet, "/api/knowledge", query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SearchKnowledge runs a keyword search.
func (c *Client) SearchKnowledge(ctx context.Context, q string, tags []string, limit int) (*models.SearchKnowledgeResponse, error) {
	query := url.Values{}
	if q != "" {
		query.Set("q", q)
	}
	if len(tags) > 0 {
		query.Set("tags", strings.Join(tags, ","))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp models.SearchKnowledgeResponse
	if err := c.do(ctx, http.MethodGet, "/api/search", query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SearchKnowledgeSemantic runs a vector search over the query text.
func (c *Client) SearchKnowledgeSemantic(ctx context.Context, q string, limit int) (*models.SemanticSearchResponse, error) {
	query := url.Values{}
	query.Set("q", q)
	query.Set("semantic", "true")
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp models.SemanticSearchResponse
	if err := c.do(ctx, http.MethodGet, "/api/search", query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SearchByTraits fetches entries filtered by trait key and/or value.
func (c *Client) SearchByTraits(ctx context.Context, key, value string, limit int) (*models.SearchKnowledgeResponse, error) {
	query := url.Values{}
	if key != "" {
		query.Set("trait_key", key)
	}
	if value != "" {
		query.Set("trait_value", value)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp models.SearchKnowledgeResponse
	if err := c.do(ctx, http.MethodGet, "/api/knowledge/by-traits", query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateKnowledge applies a partial update to an entry.
func (c *Client) UpdateKnowledge(ctx context.Context, id string, patch *models.UpdateKnowledgeRequest) (*models.Knowledge, error) {
	var entry models.Knowledge
	if err := c.do(ctx, http.MethodPut, "/api/knowledge/"+url.PathEscape(id), nil, patch, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// UpdateTitle replaces an entry's title.
func (c *Client) UpdateTitle(ctx context.Context, id, title string) (*models.Knowledge, error) {
	return c.UpdateKnowledge(ctx, id, &models.UpdateKnowledgeRequest{Title: &title})
}

// UpdateContent replaces an entry's content, or appends to it when append
// mode is requested.
func (c *Client) UpdateContent(ctx context.Context, id, content string, appendMode bool) (*models.Knowledge, error) {
	if appendMode {
		current, err := c.GetKnowledge(ctx, id)
		if err != nil {
			return nil, err
		}
		content = current.Content + "\n\n" + content
	}
	return c.UpdateKnowledge(ctx, id, &models.UpdateKnowledgeRequest{Content: &content})
}

// AddTags merges new tags into an entry, skipping ones already present.
func (c *Client) AddTags(ctx context.Context, id string, tags []string) (*models.Knowledge, error) {
	current, err := c.GetKnowledge(ctx, id)
	if err != nil {
		return nil, err
	}
	merged := mergeTags(current.Tags, tags)
	return c.UpdateKnowledge(ctx, id, &models.UpdateKnowledgeRequest{Tags: &merged})
}

// AddReference appends a reference to an entry's refs list.
func (c *Client) AddReference(ctx context.Context, id string, ref models.Reference) (*models.Knowledge, error) {
	current, err := c.GetKnowledge(ctx, id)
	if err != nil {
		return nil, err
	}
	refs := append(current.Refs, ref)
	return c.UpdateKnowledge(ctx, id, &models.UpdateKnowledgeRequest{Refs: &refs})
}

// AddTraits merges new traits into an entry. A trait already present with
// the same key and value is skipped.
func (c *Client) AddTraits(ctx context.Context, id string, traits []models.Trait) (*models.Knowledge, error) {
	current, err := c.GetKnowledge(ctx, id)
	if err != nil {
		return nil, err
	}

	merged := current.Traits
	for _, trait := range traits {
		if !containsTrait(merged, trait.Key, trait.Value) {
			merged = append(merged, trait)
		}
	}
	return c.UpdateKnowledge(ctx, id, &models.UpdateKnowledgeRequest{Traits: &merged})
}

// SetTraits replaces an entry's traits wholesale.
func (c *Client) SetTraits(ctx context.Context, id string, traits []models.Trait) (*models.Knowledge, error) {
	if traits == nil {
		traits = []models.Trait{}
	}
	return c.UpdateKnowledge(ctx, id, &models.UpdateKnowledgeRequest{Traits: &traits})
}

// LinkTraitToEntity sets the parent_id of the matching trait to the given
// entity's knowledge ID, connecting the trait to the entry that describes it.
func (c *Client) LinkTraitToEntity(ctx context.Context, id, traitKey, traitValue, entityID string) (*models.Knowledge, error) {
	parentID, err := uuid.Parse(entityID)
	if err != nil {
		return nil, fmt.Errorf("invalid entity ID: %w", err)
	}

	current, err := c.GetKnowledge(ctx, id)
	if err != nil {
		return nil, err
	}

	linked := false
	traits := current.Traits
	for i := range traits {
		if traits[i].Key != traitKey {
			continue
		}
		if traitValue != "" && traits[i].Value != traitValue {
			continue
		}
		traits[i].ParentID = &parentID
		linked = true
	}
	if !linked {
		return nil, fmt.Errorf("no trait with key %q found on entry %s", traitKey, id)
	}

	return c.UpdateKnowledge(ctx, id, &models.UpdateKnowledgeRequest{Traits: &traits})
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
	}
	return nil
}

func apiError(resp *http.Response) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Message != "" {
		return fmt.Errorf("API error %d (%s): %s", resp.StatusCode, body.Error, body.Message)
	}
	return fmt.Errorf("API error %d", resp.StatusCode)
}

func mergeTags(existing, incoming []string) []string {
	merged := make([]string, 0, len(existing)+len(incoming))
	seen := make(map[string]bool, len(existing)+len(incoming))
	for _, tag := range append(append([]string{}, existing...), incoming...) {
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		merged = append(merged, tag)
	}
	return merged
}

func containsTrait(traits []models.Trait, key, value string) bool {
	for _, t := range traits {
		if t.Key == key && t.Value == value {
			return true
		}
	}
	return false
}
