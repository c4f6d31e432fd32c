package catalog

import (
	"fmt"

	"workflow-studio/api/services/schema"
	"workflow-studio/api/services/workflow"
)

func registerBuiltins(c *Catalog) {
	for _, nt := range builtinTypes() {
		c.types[nt.Type] = nt
	}
}

func builtinTypes() []*NodeType {
	return []*NodeType{
		{
			Type: "manual-trigger", Label: "Manual Trigger", Category: CategoryTrigger,
			Description: "Starts the workflow when triggered by hand",
			OutputSchema: schema.New(
				schema.Field{Name: "startedAt", Type: schema.TypeString, Description: "Trigger timestamp"},
				schema.Field{Name: "triggeredBy", Type: schema.TypeString, Example: "operator"},
			),
		},
		{
			Type: "webhook", Label: "Webhook", Category: CategoryTrigger,
			Description: "Starts the workflow on an incoming HTTP request",
			Properties: []Property{
				{Name: "path", Label: "Path", Default: "/hooks/incoming"},
				{Name: "method", Label: "Method", Default: "POST"},
			},
			Defaults: map[string]any{"path": "/hooks/incoming", "method": "POST"},
			OutputSchema: schema.New(
				schema.Field{Name: "method", Type: schema.TypeString, Example: "POST"},
				schema.Field{Name: "headers", Type: schema.TypeObject, Fields: []schema.Field{
					{Name: "content-type", Type: schema.TypeString, Example: "application/json"},
				}},
				schema.Field{Name: "body", Type: schema.TypeObject},
			),
		},
		{
			Type: "schedule", Label: "Schedule", Category: CategoryTrigger,
			Description: "Starts the workflow on a cron schedule",
			Properties:  []Property{{Name: "cron", Label: "Cron expression", Default: "*/5 * * * *"}},
			Defaults:    map[string]any{"cron": "*/5 * * * *"},
			OutputSchema: schema.New(
				schema.Field{Name: "timestamp", Type: schema.TypeString},
				schema.Field{Name: "cron", Type: schema.TypeString, Example: "*/5 * * * *"},
			),
		},
		{
			Type: "form", Label: "User Input", Category: CategoryTrigger,
			Description:      "Collects structured input fields from the user",
			Properties:       []Property{{Name: "fields", Label: "Form fields"}},
			Defaults:         map[string]any{"fields": []any{"name", "email", "city"}},
			OutputSchemaFunc: schemaFromFieldsParam,
		},
		{
			Type: "http-request", Label: "HTTP Request", Category: CategoryAction,
			Description: "Performs an HTTP call and exposes the response",
			Properties: []Property{
				{Name: "url", Label: "URL", Default: "https://example.com"},
				{Name: "method", Label: "Method", Default: "GET"},
			},
			Defaults: map[string]any{"url": "https://example.com", "method": "GET"},
			OutputSchema: schema.New(
				schema.Field{Name: "status", Type: schema.TypeNumber, Example: float64(200)},
				schema.Field{Name: "headers", Type: schema.TypeObject},
				schema.Field{Name: "body", Type: schema.TypeObject},
			),
		},
		{
			Type: "weather", Label: "Weather API", Category: CategoryIntegration,
			Description: "Fetches current conditions for a city",
			Properties: []Property{
				{Name: "city", Label: "City", Default: "Sydney"},
				{Name: "apiEndpoint", Label: "API endpoint", Default: "https://api.open-meteo.com/v1/forecast"},
			},
			Defaults: map[string]any{"city": "Sydney", "apiEndpoint": "https://api.open-meteo.com/v1/forecast"},
			OutputSchema: schema.New(
				schema.Field{Name: "temperature", Type: schema.TypeNumber, Example: 28.5, Description: "Current temperature in °C"},
				schema.Field{Name: "windSpeed", Type: schema.TypeNumber, Example: 12.0},
				schema.Field{Name: "city", Type: schema.TypeString, Example: "Sydney"},
			),
		},
		{
			Type: "set", Label: "Set Fields", Category: CategoryData,
			Description:      "Declares output fields explicitly",
			Properties:       []Property{{Name: "fields", Label: "Fields"}},
			OutputSchemaFunc: schemaFromFieldsParam,
		},
		{
			Type: "code", Label: "Code", Category: CategoryData,
			Description: "Runs a user-supplied snippet; output shape is unknown until run time",
			Properties: []Property{
				{Name: "language", Label: "Language", Default: "javascript"},
				{Name: "source", Label: "Source"},
			},
			Defaults: map[string]any{"language": "javascript"},
		},
		{
			Type: "if", Label: "If", Category: CategoryLogic,
			Description: "Routes items to the true or false branch",
			Properties:  []Property{{Name: "condition", Label: "Condition", Default: "{{temperature}} > 25"}},
			Defaults:    map[string]any{"condition": "{{temperature}} > 25"},
		},
		{
			Type: "switch", Label: "Switch", Category: CategoryLogic,
			Description: "Routes items to one of several branches",
			Properties: []Property{
				{Name: "expression", Label: "Expression"},
				{Name: "cases", Label: "Cases"},
			},
		},
		{
			Type: "merge", Label: "Merge", Category: CategoryLogic,
			Description: "Joins multiple branches into one stream",
			Properties:  []Property{{Name: "mode", Label: "Mode", Default: "append"}},
			Defaults:    map[string]any{"mode": "append"},
		},
		{
			Type: "postgres", Label: "Postgres", Category: CategoryDatabase,
			Description: "Runs a query against PostgreSQL",
			Properties:  []Property{{Name: "query", Label: "Query", Default: "SELECT 1"}},
			Defaults:    map[string]any{"query": "SELECT 1"},
			OutputSchema: schema.New(
				schema.Field{Name: "rows", Type: schema.TypeArray, Items: &schema.Field{Name: "row", Type: schema.TypeObject}},
				schema.Field{Name: "rowCount", Type: schema.TypeNumber, Example: float64(1)},
			),
		},
		{
			Type: "redis", Label: "Redis", Category: CategoryDatabase,
			Description: "Reads or writes a Redis key",
			Properties: []Property{
				{Name: "command", Label: "Command", Default: "GET"},
				{Name: "key", Label: "Key"},
			},
			Defaults: map[string]any{"command": "GET"},
			OutputSchema: schema.New(
				schema.Field{Name: "value", Type: schema.TypeString},
				schema.Field{Name: "hit", Type: schema.TypeBoolean, Example: true},
			),
		},
		{
			Type: "email", Label: "Send Email", Category: CategoryCommunication,
			Description: "Drafts an email notification",
			Properties: []Property{
				{Name: "to", Label: "To"},
				{Name: "subject", Label: "Subject", Default: "Weather Alert"},
				{Name: "body", Label: "Body", Default: "Weather alert for {{city}}! Temperature is {{temperature}}°C!"},
			},
			Defaults: map[string]any{
				"subject": "Weather Alert",
				"body":    "Weather alert for {{city}}! Temperature is {{temperature}}°C!",
			},
			OutputSchema: schema.New(
				schema.Field{Name: "messageId", Type: schema.TypeString},
				schema.Field{Name: "to", Type: schema.TypeString, Example: "alice@example.com"},
				schema.Field{Name: "subject", Type: schema.TypeString, Example: "Weather Alert"},
				schema.Field{Name: "delivered", Type: schema.TypeBoolean, Example: true},
			),
		},
		{
			Type: "slack", Label: "Slack", Category: CategoryCommunication,
			Description: "Posts a message to a Slack channel",
			Properties: []Property{
				{Name: "channel", Label: "Channel", Default: "#alerts"},
				{Name: "message", Label: "Message"},
			},
			Defaults: map[string]any{"channel": "#alerts"},
			OutputSchema: schema.New(
				schema.Field{Name: "channel", Type: schema.TypeString, Example: "#alerts"},
				schema.Field{Name: "ts", Type: schema.TypeString},
				schema.Field{Name: "ok", Type: schema.TypeBoolean, Example: true},
			),
		},
		{
			Type: "openai", Label: "OpenAI", Category: CategoryAI,
			Description: "Generates text with a language model",
			Properties: []Property{
				{Name: "model", Label: "Model", Default: "gpt-4o-mini"},
				{Name: "prompt", Label: "Prompt"},
			},
			Defaults: map[string]any{"model": "gpt-4o-mini"},
			OutputSchema: schema.New(
				schema.Field{Name: "text", Type: schema.TypeString, Example: "sample completion"},
				schema.Field{Name: "model", Type: schema.TypeString, Example: "gpt-4o-mini"},
				schema.Field{Name: "tokensUsed", Type: schema.TypeNumber, Example: float64(128)},
			),
		},
		{
			Type: "custom", Label: "Custom", Category: CategoryCustom,
			Description: "A host-provided node with no declared output shape",
		},
	}
}

// schemaFromFieldsParam builds an output schema from a node's "fields"
// parameter. Entries may be plain field names or objects with name, type and
// value keys; a missing or empty parameter yields an empty schema.
func schemaFromFieldsParam(params map[string]any, _ *workflow.Node) (*schema.Schema, error) {
	raw, ok := params["fields"]
	if !ok || raw == nil {
		return schema.New(), nil
	}
	entries, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("fields parameter must be a list, got %T", raw)
	}
	s := schema.New()
	for i, entry := range entries {
		switch v := entry.(type) {
		case string:
			s.Fields = append(s.Fields, schema.Field{Name: v, Type: schema.TypeString})
		case map[string]any:
			f, err := fieldFromMap(v)
			if err != nil {
				return nil, fmt.Errorf("fields[%d]: %w", i, err)
			}
			s.Fields = append(s.Fields, f)
		default:
			return nil, fmt.Errorf("fields[%d] must be a name or an object, got %T", i, entry)
		}
	}
	return s, nil
}

func fieldFromMap(m map[string]any) (schema.Field, error) {
	name, _ := m["name"].(string)
	if name == "" {
		return schema.Field{}, fmt.Errorf("missing field name")
	}
	f := schema.Field{Name: name, Type: schema.TypeString}
	if t, ok := m["type"].(string); ok && t != "" {
		f.Type = schema.FieldType(t)
	}
	if v, ok := m["value"]; ok {
		f.Example = v
		if _, typed := m["type"]; !typed {
			f.Type = inferFieldType(v)
		}
	} else if v, ok := m["example"]; ok {
		f.Example = v
		if _, typed := m["type"]; !typed {
			f.Type = inferFieldType(v)
		}
	}
	return f, nil
}

func inferFieldType(v any) schema.FieldType {
	switch v.(type) {
	case string:
		return schema.TypeString
	case float64, float32, int, int64:
		return schema.TypeNumber
	case bool:
		return schema.TypeBoolean
	case map[string]any:
		return schema.TypeObject
	case []any:
		return schema.TypeArray
	default:
		return schema.TypeAny
	}
}
