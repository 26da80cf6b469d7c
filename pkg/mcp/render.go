package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/knowledger-ai/knowledger/pkg/models"
)

// Tool results are rendered as plain text so any MCP client can display
// them without understanding the entry schema.

func formatEntry(entry *models.Knowledge) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n", entry.Title)
	fmt.Fprintf(&b, "ID: %s\n", entry.ID)
	if entry.ProjectID != nil {
		fmt.Fprintf(&b, "Project: %s\n", entry.ProjectID)
	}
	if len(entry.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", formatTags(entry.Tags))
	}
	fmt.Fprintf(&b, "Created: %s\n", entry.CreatedAt.Format(time.RFC3339))

	fmt.Fprintf(&b, "\n%s\n", entry.Content)

	if len(entry.Traits) > 0 {
		fmt.Fprintf(&b, "\nTraits:\n%s", formatTraits(entry.Traits))
	}
	if len(entry.Refs) > 0 {
		b.WriteString("\nReferences:\n")
		for _, ref := range entry.Refs {
			fmt.Fprintf(&b, "- %s", ref.URI)
			if ref.Title != "" {
				fmt.Fprintf(&b, " (%s)", ref.Title)
			}
			if ref.AttributedTo != nil {
				fmt.Fprintf(&b, ", attributed to %s", *ref.AttributedTo)
			}
			b.WriteString("\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func formatEntryList(entries []*models.Knowledge, total int, hasMore bool) string {
	if len(entries) == 0 {
		return "No knowledge entries found."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d entr%s (showing %d):\n\n", total, pluralY(total), len(entries))

	for _, entry := range entries {
		fmt.Fprintf(&b, "- %s [%s]\n", entry.Title, entry.ID)
		if len(entry.Tags) > 0 {
			fmt.Fprintf(&b, "  Tags: %s\n", formatTags(entry.Tags))
		}
		fmt.Fprintf(&b, "  %s\n", summarize(entry.Content, 160))
	}

	if hasMore {
		b.WriteString("\nMore entries are available, increase the offset to page through them.")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatSemanticResults(resp *models.SemanticSearchResponse) string {
	if resp.Count == 0 {
		return fmt.Sprintf("No matches for %q.", resp.Query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d result(s) for %q (%s search):\n\n", resp.Count, resp.Query, resp.SearchType)

	for _, res := range resp.Results {
		if resp.SearchType == "semantic" {
			fmt.Fprintf(&b, "- %s [%s] (similarity %.2f)\n", res.Title, res.ID, res.Similarity)
		} else {
			fmt.Fprintf(&b, "- %s [%s]\n", res.Title, res.ID)
		}
		fmt.Fprintf(&b, "  %s\n", summarize(res.Content, 160))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatTags(tags []string) string {
	return strings.Join(tags, ", ")
}

func formatTraits(traits []models.Trait) string {
	var b strings.Builder
	for _, trait := range traits {
		fmt.Fprintf(&b, "- %s: %s", trait.Key, trait.Value)
		if trait.Confidence != nil {
			fmt.Fprintf(&b, " (confidence %.2f)", *trait.Confidence)
		}
		if trait.ParentID != nil {
			fmt.Fprintf(&b, " -> %s", trait.ParentID)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func summarize(content string, max int) string {
	content = strings.ReplaceAll(content, "\n", " ")
	if len(content) <= max {
		return content
	}
	return content[:max] + "..."
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
