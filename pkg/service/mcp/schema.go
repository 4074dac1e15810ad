package mcp

import (
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/integrasalud/integrasalud/pkg/knowledge"
)

func emptySchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object"}
}

func askSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"query": {
				Type:        "string",
				Description: "Consulta del usuario en texto libre. Incluir la palabra 'turno' para pedir un turno anónimo.",
			},
		},
		Required: []string{"query"},
	}
}

// selectTopicSchema lists the catalog's topic ids as an enum
func selectTopicSchema(catalog *knowledge.Catalog) *jsonschema.Schema {
	ids := catalog.IDs()
	enum := make([]any, len(ids))
	for i, id := range ids {
		enum[i] = string(id)
	}

	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"topic": {
				Type:        "string",
				Description: "Identificador del área de consulta",
				Enum:        enum,
			},
		},
		Required: []string{"topic"},
	}
}

func issueTokenSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"facility": {
				Type:        "string",
				Description: "Nombre exacto del centro de salud, tal como lo lista list_topics",
			},
			"specialty": {
				Type:        "string",
				Description: "Especialidad ofrecida por ese centro",
			},
		},
		Required: []string{"facility", "specialty"},
	}
}
