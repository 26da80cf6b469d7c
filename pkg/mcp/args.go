package mcp

import (
	"fmt"

	"github.com/google/uuid"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/knowledger-ai/knowledger/pkg/models"
)

func arguments(req mcpgo.CallToolRequest) map[string]any {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return nil
	}
	return args
}

func getOptionalString(req mcpgo.CallToolRequest, key string) string {
	val, _ := arguments(req)[key].(string)
	return val
}

func getOptionalBool(req mcpgo.CallToolRequest, key string) bool {
	val, _ := arguments(req)[key].(bool)
	return val
}

// getOptionalInt reads a numeric argument. JSON numbers arrive as float64.
func getOptionalInt(req mcpgo.CallToolRequest, key string) int {
	switch v := arguments(req)[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func getStringArray(req mcpgo.CallToolRequest, key string) ([]string, error) {
	raw, present := arguments(req)[key]
	if !present {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("parameter '%s' must be an array of strings", key)
	}

	values := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("parameter '%s' must be an array of strings, element %d is %T", key, i, item)
		}
		values = append(values, s)
	}
	return values, nil
}

func getTraitArray(req mcpgo.CallToolRequest, key string) ([]models.Trait, error) {
	raw, present := arguments(req)[key]
	if !present {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("parameter '%s' must be an array of trait objects", key)
	}

	traits := make([]models.Trait, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("parameter '%s' element %d must be an object with 'key' and 'value'", key, i)
		}

		traitKey, _ := obj["key"].(string)
		traitValue, _ := obj["value"].(string)
		if traitKey == "" || traitValue == "" {
			return nil, fmt.Errorf("parameter '%s' element %d needs non-empty 'key' and 'value'", key, i)
		}

		trait := models.Trait{Key: traitKey, Value: traitValue}
		if conf, ok := obj["confidence"].(float64); ok {
			trait.Confidence = &conf
		}
		if parent, ok := obj["parent_id"].(string); ok && parent != "" {
			id, err := uuid.Parse(parent)
			if err != nil {
				return nil, fmt.Errorf("parameter '%s' element %d has invalid parent_id: %v", key, i, err)
			}
			trait.ParentID = &id
		}
		traits = append(traits, trait)
	}
	return traits, nil
}

func parseUUID(s string) (*uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
