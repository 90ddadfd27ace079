package builtintools

import (
	"encoding/json"
	"reflect"
	"sync"

	"github.com/invopop/jsonschema"
)

// reflector mirrors the teacher's internal/config/schema.go reflector
// (there keyed off the "yaml" tag for its Config struct); built-in tool
// inputs are plain request DTOs tagged with "json", so this one reflects
// off that tag instead. ExpandedStruct inlines the root type's properties
// directly into the returned schema instead of a $ref into $defs, since
// provider tool-schema slots expect a flat object schema.
var reflector = &jsonschema.Reflector{FieldNameTag: "json", ExpandedStruct: true}

var (
	schemaCacheMu sync.Mutex
	schemaCache   = map[reflect.Type]json.RawMessage{}
)

// structSchema reflects T's JSON Schema the way the teacher derives its
// Config schema (Reflector.Reflect + json.Marshal), caching the result per
// type so repeated InputSchema() calls on the same tool don't re-reflect.
func structSchema[T any]() json.RawMessage {
	var zero T
	t := reflect.TypeOf(zero)

	schemaCacheMu.Lock()
	defer schemaCacheMu.Unlock()
	if cached, ok := schemaCache[t]; ok {
		return cached
	}

	schema := reflector.Reflect(&zero)
	raw, err := json.Marshal(schema)
	if err != nil {
		raw = json.RawMessage(`{"type":"object"}`)
	}
	schemaCache[t] = raw
	return raw
}
