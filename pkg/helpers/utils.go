package helpers

import (
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"
)

var jsonSchemaReflector = jsonschema.Reflector{
	Anonymous:                 true,
	AllowAdditionalProperties: false,
	DoNotReference:            true,
	ExpandedStruct:            true,
}

// ConvertToInputSchema reflects a Go struct into the generic JSON schema map
// expected by tool definitions.
func ConvertToInputSchema(args any) (map[string]any, error) {
	jsonSchema := jsonSchemaReflector.ReflectFromType(reflect.TypeOf(args))

	schemaBytes, err := json.Marshal(jsonSchema)
	if err != nil {
		return nil, err
	}
	var inputSchema map[string]any
	if err := json.Unmarshal(schemaBytes, &inputSchema); err != nil {
		return nil, err
	}

	return inputSchema, nil
}

func Ptr[T any](v T) *T {
	return &v
}
