package nodes

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/docuflow/docuflow/pkg/schema"
)

// Config value types published in node schemas.
const (
	TypeString     = "string"
	TypeNumber     = "number"
	TypeInteger    = "integer"
	TypeBoolean    = "boolean"
	TypeStringList = "string_list"
)

// configString reads a string config value, "" when absent.
func configString(config map[string]any, key string) string {
	v, _ := config[key].(string)
	return v
}

// configInt reads an integer config value (JSON numbers decode as float64).
func configInt(config map[string]any, key string, fallback int) int {
	switch v := config[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return fallback
}

// stringListConfig reads a list config value; JSON arrays decode as []any.
func stringListConfig(config map[string]any, key string) []string {
	switch v := config[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// requireFields validates config against a schema's required fields.
func requireFields(fields []schema.ConfigField, config map[string]any) error {
	for _, f := range fields {
		if !f.Required {
			continue
		}
		v, ok := config[f.Key]
		if !ok || v == nil {
			return schema.NewErrorf(schema.ErrCodeValidation, "missing required config key %q", f.Key)
		}
		if s, isStr := v.(string); isStr && s == "" && f.Type == TypeString {
			return schema.NewErrorf(schema.ErrCodeValidation, "config key %q must not be empty", f.Key)
		}
	}
	return nil
}
