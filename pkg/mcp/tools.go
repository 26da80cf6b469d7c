package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/knowledger-ai/knowledger/pkg/models"
)

func (s *Server) registerTools() {
	s.registerListKnowledge()
	s.registerSearchKnowledge()
	s.registerSaveKnowledge()
	s.registerGetKnowledge()
	s.registerAddReference()
	s.registerAddTags()
	s.registerUpdateTitle()
	s.registerUpdateContent()
	s.registerAddTraits()
	s.registerSetTraits()
	s.registerSearchByTraits()
	s.registerLinkTraitToEntity()
}

func (s *Server) registerListKnowledge() {
	tool := mcp.NewTool(
		"list_knowledge",
		mcp.WithDescription("List knowledge entries, newest first. Supports pagination and project filtering."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of entries to return (default 20)")),
		mcp.WithNumber("offset", mcp.Description("Number of entries to skip")),
		mcp.WithString("project_id", mcp.Description("Only list entries belonging to this project UUID")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.mcp.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := getOptionalInt(req, "limit")
		offset := getOptionalInt(req, "offset")
		projectID := getOptionalString(req, "project_id")

		resp, err := s.client.ListKnowledge(ctx, limit, offset, projectID)
		if err != nil {
			return s.toolError("list_knowledge", err), nil
		}
		return mcp.NewToolResultText(formatEntryList(resp.Entries, resp.Total, resp.HasMore)), nil
	})
}

func (s *Server) registerSearchKnowledge() {
	tool := mcp.NewTool(
		"search_knowledge",
		mcp.WithDescription(
			"Search knowledge entries by text. Matches titles and content, optionally filtered by tags. "+
				"Set semantic=true to rank by meaning instead of exact wording."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Text to search for")),
		mcp.WithArray("tags", mcp.Description("Only match entries carrying at least one of these tags")),
		mcp.WithBoolean("semantic", mcp.Description("Use vector similarity ranking instead of substring matching")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.mcp.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		limit := getOptionalInt(req, "limit")

		if getOptionalBool(req, "semantic") {
			resp, err := s.client.SearchKnowledgeSemantic(ctx, query, limit)
			if err != nil {
				return s.toolError("search_knowledge", err), nil
			}
			return mcp.NewToolResultText(formatSemanticResults(resp)), nil
		}

		tags, err := getStringArray(req, "tags")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		resp, err := s.client.SearchKnowledge(ctx, query, tags, limit)
		if err != nil {
			return s.toolError("search_knowledge", err), nil
		}
		return mcp.NewToolResultText(formatEntryList(resp.Entries, resp.Total, resp.HasMore)), nil
	})
}

func (s *Server) registerSaveKnowledge() {
	tool := mcp.NewTool(
		"save_knowledge",
		mcp.WithDescription(
			"Save a new knowledge entry. Use this to capture durable facts, decisions, or notes "+
				"worth recalling in later sessions. Configured default project and tags are applied automatically."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Short descriptive title")),
		mcp.WithString("content", mcp.Required(), mcp.Description("The knowledge text to store")),
		mcp.WithArray("tags", mcp.Description("Tags for later filtering (e.g., ['architecture', 'decision'])")),
		mcp.WithString("project_id", mcp.Description("Project UUID to file this entry under")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.mcp.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := req.RequireString("title")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		tags, err := getStringArray(req, "tags")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		create := &models.CreateKnowledgeRequest{
			Title:   title,
			Content: content,
			Tags:    tags,
		}
		if projectID := getOptionalString(req, "project_id"); projectID != "" {
			id, err := parseUUID(projectID)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid project_id: %v", err)), nil
			}
			create.ProjectID = id
		}

		entry, err := s.client.SaveKnowledge(ctx, create)
		if err != nil {
			return s.toolError("save_knowledge", err), nil
		}
		return mcp.NewToolResultText("Saved knowledge entry.\n\n" + formatEntry(entry)), nil
	})
}

func (s *Server) registerGetKnowledge() {
	tool := mcp.NewTool(
		"get_knowledge",
		mcp.WithDescription("Fetch a single knowledge entry by its ID, including tags, references and traits."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Knowledge entry UUID")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.mcp.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		entry, err := s.client.GetKnowledge(ctx, id)
		if err != nil {
			return s.toolError("get_knowledge", err), nil
		}
		return mcp.NewToolResultText(formatEntry(entry)), nil
	})
}

func (s *Server) registerAddReference() {
	tool := mcp.NewTool(
		"add_reference_to_knowledge",
		mcp.WithDescription(
			"Attach a source reference to an existing knowledge entry. "+
				"Use this to record where a fact came from (a URL, document, or person's statement)."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Knowledge entry UUID")),
		mcp.WithString("uri", mcp.Required(), mcp.Description("Source URI (URL, file path, or identifier)")),
		mcp.WithString("title", mcp.Description("Human-readable title of the source")),
		mcp.WithString("attributed_to", mcp.Description("Person or organization the information is attributed to")),
		mcp.WithString("type", mcp.Description("Reference type: 'citation' or 'testimony'")),
		mcp.WithString("statement", mcp.Description("The specific statement being referenced")),
		mcp.WithIdempotentHintAnnotation(false),
	)

	s.mcp.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		uri, err := req.RequireString("uri")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ref := models.Reference{URI: uri, Title: getOptionalString(req, "title")}
		if v := getOptionalString(req, "attributed_to"); v != "" {
			ref.AttributedTo = &v
		}
		if v := getOptionalString(req, "type"); v != "" {
			ref.Type = v
		}
		if v := getOptionalString(req, "statement"); v != "" {
			ref.Statement = &v
		}

		entry, err := s.client.AddReference(ctx, id, ref)
		if err != nil {
			return s.toolError("add_reference_to_knowledge", err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Added reference to %q. Entry now has %d reference(s).", entry.Title, len(entry.Refs))), nil
	})
}

func (s *Server) registerAddTags() {
	tool := mcp.NewTool(
		"add_tags_to_knowledge",
		mcp.WithDescription("Add tags to an existing knowledge entry. Tags already present are not duplicated."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Knowledge entry UUID")),
		mcp.WithArray("tags", mcp.Required(), mcp.Description("Tags to add")),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.mcp.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		tags, err := getStringArray(req, "tags")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if len(tags) == 0 {
			return mcp.NewToolResultError("parameter 'tags' must contain at least one tag"), nil
		}

		entry, err := s.client.AddTags(ctx, id, tags)
		if err != nil {
			return s.toolError("add_tags_to_knowledge", err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Tags on %q are now: %s", entry.Title, formatTags(entry.Tags))), nil
	})
}

func (s *Server) registerUpdateTitle() {
	tool := mcp.NewTool(
		"update_knowledge_title",
		mcp.WithDescription("Replace the title of an existing knowledge entry."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Knowledge entry UUID")),
		mcp.WithString("title", mcp.Required(), mcp.Description("New title")),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.mcp.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		title, err := req.RequireString("title")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		entry, err := s.client.UpdateTitle(ctx, id, title)
		if err != nil {
			return s.toolError("update_knowledge_title", err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Title updated to %q.", entry.Title)), nil
	})
}

func (s *Server) registerUpdateContent() {
	tool := mcp.NewTool(
		"update_knowledge_content",
		mcp.WithDescription(
			"Replace the content of an existing knowledge entry, or append to it with append=true."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Knowledge entry UUID")),
		mcp.WithString("content", mcp.Required(), mcp.Description("New or additional content")),
		mcp.WithBoolean("append", mcp.Description("Append to the existing content instead of replacing it")),
		mcp.WithIdempotentHintAnnotation(false),
	)

	s.mcp.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		entry, err := s.client.UpdateContent(ctx, id, content, getOptionalBool(req, "append"))
		if err != nil {
			return s.toolError("update_knowledge_content", err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Content of %q updated (%d characters).", entry.Title, len(entry.Content))), nil
	})
}

func (s *Server) registerAddTraits() {
	tool := mcp.NewTool(
		"add_traits_to_knowledge",
		mcp.WithDescription(
			"Add structured traits (key/value attributes) to a knowledge entry. "+
				"A trait already present with the same key and value is skipped."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Knowledge entry UUID")),
		mcp.WithArray("traits", mcp.Required(),
			mcp.Description("Traits to add, each an object with 'key', 'value' and optional 'confidence' (0-1)")),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.mcp.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		traits, err := getTraitArray(req, "traits")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if len(traits) == 0 {
			return mcp.NewToolResultError("parameter 'traits' must contain at least one trait"), nil
		}

		entry, err := s.client.AddTraits(ctx, id, traits)
		if err != nil {
			return s.toolError("add_traits_to_knowledge", err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Entry %q now has %d trait(s):\n%s", entry.Title, len(entry.Traits), formatTraits(entry.Traits))), nil
	})
}

func (s *Server) registerSetTraits() {
	tool := mcp.NewTool(
		"set_knowledge_traits",
		mcp.WithDescription("Replace all traits on a knowledge entry. An empty array clears them."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Knowledge entry UUID")),
		mcp.WithArray("traits", mcp.Required(),
			mcp.Description("Full replacement trait list, each an object with 'key', 'value' and optional 'confidence'")),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.mcp.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		traits, err := getTraitArray(req, "traits")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		entry, err := s.client.SetTraits(ctx, id, traits)
		if err != nil {
			return s.toolError("set_knowledge_traits", err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Entry %q now has %d trait(s):\n%s", entry.Title, len(entry.Traits), formatTraits(entry.Traits))), nil
	})
}

func (s *Server) registerSearchByTraits() {
	tool := mcp.NewTool(
		"search_knowledge_by_traits",
		mcp.WithDescription("Find knowledge entries by trait key, trait value, or both."),
		mcp.WithString("trait_key", mcp.Description("Trait key to match (e.g., 'role')")),
		mcp.WithString("trait_value", mcp.Description("Trait value to match (e.g., 'engineer')")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results")),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.mcp.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		key := getOptionalString(req, "trait_key")
		value := getOptionalString(req, "trait_value")
		if key == "" && value == "" {
			return mcp.NewToolResultError("provide 'trait_key', 'trait_value', or both"), nil
		}

		resp, err := s.client.SearchByTraits(ctx, key, value, getOptionalInt(req, "limit"))
		if err != nil {
			return s.toolError("search_knowledge_by_traits", err), nil
		}
		return mcp.NewToolResultText(formatEntryList(resp.Entries, resp.Total, resp.HasMore)), nil
	})
}

func (s *Server) registerLinkTraitToEntity() {
	tool := mcp.NewTool(
		"link_trait_to_entity",
		mcp.WithDescription(
			"Link a trait on one knowledge entry to another entry that describes it. "+
				"For example, link a person's 'employer' trait to the entry about that company."),
		mcp.WithString("id", mcp.Required(), mcp.Description("UUID of the entry carrying the trait")),
		mcp.WithString("trait_key", mcp.Required(), mcp.Description("Key of the trait to link")),
		mcp.WithString("trait_value", mcp.Description("Value of the trait, to disambiguate when the key appears more than once")),
		mcp.WithString("entity_id", mcp.Required(), mcp.Description("UUID of the entry the trait refers to")),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.mcp.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		traitKey, err := req.RequireString("trait_key")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		entityID, err := req.RequireString("entity_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		entry, err := s.client.LinkTraitToEntity(ctx, id, traitKey, getOptionalString(req, "trait_value"), entityID)
		if err != nil {
			return s.toolError("link_trait_to_entity", err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Linked trait %q on %q to entity %s.", traitKey, entry.Title, entityID)), nil
	})
}

func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	s.logger.Warn("Tool call failed", zap.String("tool", tool), zap.Error(err))
	return mcp.NewToolResultError(err.Error())
}
