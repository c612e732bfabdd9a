package live

// Schema types, lower-case as in JSON Schema.
const (
	TypeObject  = "object"
	TypeArray   = "array"
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
)

// Schema is the subset of JSON Schema used by tool parameters.
type Schema struct {
	Type        string
	Description string
	Properties  map[string]*Schema
	Items       *Schema
	Required    []string
	Enum        []string
}

// JSON renders the schema as a JSON Schema document.
func (s *Schema) JSON() map[string]any {
	if s == nil {
		return nil
	}
	out := map[string]any{"type": s.Type}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		out["enum"] = s.Enum
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = p.JSON()
		}
		out["properties"] = props
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	if s.Items != nil {
		out["items"] = s.Items.JSON()
	}
	return out
}

// FunctionDeclaration describes a tool the model may call.
type FunctionDeclaration struct {
	Name        string
	Description string
	Parameters  *Schema
}
