package models

import (
	"time"

	"github.com/google/uuid"
)

// Reference types attached to knowledge entries.
const (
	ReferenceTypeCitation  = "citation"
	ReferenceTypeTestimony = "testimony"
)

// Knowledge is the primary unit of storage: a titled piece of content with
// tags, references, and traits, owned by exactly one user.
// Stored in the knowledge table.
type Knowledge struct {
	ID        uuid.UUID      `json:"id"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	Tags      []string       `json:"tags"`
	ProjectID *uuid.UUID     `json:"project_id,omitempty"`
	UserID    uuid.UUID      `json:"user_id"`
	Metadata  map[string]any `json:"metadata"`
	Refs      []Reference    `json:"refs"`
	Traits    []Trait        `json:"traits"`

	// Temporal bounds describe the subject matter, not the record lifecycle.
	TimeStart *time.Time `json:"time_start,omitempty"`
	TimeEnd   *time.Time `json:"time_end,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Reference is a citation or testimony record attached to an entry.
type Reference struct {
	URI          string  `json:"uri"`
	Title        string  `json:"title"`
	AttributedTo *string `json:"attributed_to,omitempty"`
	Type         string  `json:"type"` // citation | testimony
	Statement    *string `json:"statement,omitempty"`
}

// Trait is an extensible key-value descriptor on an entry. A trait can be
// promoted by setting ParentID to another knowledge entry that acts as the
// canonical referent for the key/value pair.
type Trait struct {
	Key        string     `json:"key"`
	Value      string     `json:"value"`
	Confidence *float64   `json:"confidence,omitempty"`
	ParentID   *uuid.UUID `json:"parent_id,omitempty"`
}

// KnowledgeEmbedding is the vector representation of an entry's title and
// content, unique per (knowledge_id, model_name). It is never exposed
// through the entry API; semantic search consumes it server-side.
type KnowledgeEmbedding struct {
	KnowledgeID uuid.UUID `json:"knowledge_id"`
	ModelName   string    `json:"model_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EmbeddingStats aggregates a user's embedding rows. Best-effort data: a
// zero value is returned whenever the aggregate query fails.
type EmbeddingStats struct {
	Count       int        `json:"count"`
	Dimensions  int        `json:"dimensions"`
	Models      []string   `json:"models"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

// CreateKnowledgeRequest is the payload for creating an entry. Title and
// content are required; everything else is filled with empty defaults.
type CreateKnowledgeRequest struct {
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	Tags      []string       `json:"tags,omitempty"`
	ProjectID *uuid.UUID     `json:"project_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Refs      []Reference    `json:"refs,omitempty"`
	Traits    []Trait        `json:"traits,omitempty"`
	TimeStart *time.Time     `json:"time_start,omitempty"`
	TimeEnd   *time.Time     `json:"time_end,omitempty"`
}

// UpdateKnowledgeRequest is a partial update. Field presence (non-nil
/// pointer), not truthiness, decides whether a value is overwritten: an
// explicit empty tags slice clears tags, an absent one leaves them alone.
type UpdateKnowledgeRequest struct {
	Title     *string         `json:"title,omitempty"`
	Content   *string         `json:"content,omitempty"`
	Tags      *[]string       `json:"tags,omitempty"`
	Metadata  *map[string]any `json:"metadata,omitempty"`
	Refs      *[]Reference    `json:"refs,omitempty"`
	Traits    *[]Trait        `json:"traits,omitempty"`
	TimeStart *time.Time      `json:"time_start,omitempty"`
	TimeEnd   *time.Time      `json:"time_end,omitempty"`
}

// Empty reports whether the patch carries no fields at all.
func (r *UpdateKnowledgeRequest) Empty() bool {
	return r.Title == nil && r.Content == nil && r.Tags == nil &&
		r.Metadata == nil && r.Refs == nil && r.Traits == nil &&
		r.TimeStart == nil && r.TimeEnd == nil
}

// TouchesText reports whether the patch includes title or content, which is
// what decides an embedding refresh after the update.
func (r *UpdateKnowledgeRequest) TouchesText() bool {
	return r.Title != nil || r.Content != nil
}

// SearchKnowledgeRequest carries the keyword-search filters.
type SearchKnowledgeRequest struct {
	Query     string
	Tags      []string
	ProjectID *uuid.UUID
	Limit     int
	Offset    int
}

// SearchKnowledgeResponse is the paginated listing envelope shared by list
// and keyword search.
type SearchKnowledgeResponse struct {
	Entries []*Knowledge `json:"entries"`
	Total   int          `json:"total"`
	HasMore bool         `json:"has_more"`
}

// SemanticResult pairs an entry with its similarity score from the
// database-side match function.
type SemanticResult struct {
	Knowledge
	Similarity float64 `json:"similarity"`
}

// SemanticSearchResponse is the envelope returned by vector search. When the
// embedding provider is unavailable the results degrade to keyword matches
// and SearchType records the mode actually used.
type SemanticSearchResponse struct {
	Query      string            `json:"query"`
	SearchType string            `json:"searchType"`
	Results    []*SemanticResult `json:"results"`
	Count      int               `json:"count"`
}

// Normalize fills nil collection fields with empty values so persisted rows
// never carry null tags/refs/traits/metadata.
func (k *Knowledge) Normalize() {
	if k.Tags == nil {
		k.Tags = []string{}
	}
	if k.Refs == nil {
		k.Refs = []Reference{}
	}
	if k.Traits == nil {
		k.Traits = []Trait{}
	}
	if k.Metadata == nil {
		k.Metadata = map[string]any{}
	}
}
