package artifact

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// envelopeSchemaJSON is the structural shape every artifact JSON document in
// this package must satisfy: the schema_version/schema_id/created_at
// envelope every artifact carries, regardless of its own fields.
const envelopeSchemaJSON = `{
	"type": "object",
	"required": ["schema_version", "schema_id", "created_at"],
	"properties": {
		"schema_version": {"type": "integer", "minimum": 1},
		"schema_id": {"type": "string", "minLength": 1},
		"created_at": {"type": "string", "minLength": 1}
	}
}`

var (
	envelopeSchemaOnce sync.Once
	envelopeSchema     *jsonschema.Schema
	envelopeSchemaErr  error
)

func compiledEnvelopeSchema() (*jsonschema.Schema, error) {
	envelopeSchemaOnce.Do(func() {
		const url = "https://rch-xcode.internal/schema/artifact-envelope.json"
		compiler := jsonschema.NewCompiler()

		var schemaDoc any
		if err := json.Unmarshal([]byte(envelopeSchemaJSON), &schemaDoc); err != nil {
			envelopeSchemaErr = fmt.Errorf("artifact: parsing envelope schema: %w", err)
			return
		}
		if err := compiler.AddResource(url, schemaDoc); err != nil {
			envelopeSchemaErr = fmt.Errorf("artifact: adding envelope schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			envelopeSchemaErr = fmt.Errorf("artifact: compiling envelope schema: %w", err)
			return
		}
		envelopeSchema = schema
	})
	return envelopeSchema, envelopeSchemaErr
}

// ValidateEnvelope checks that doc carries the schema_version/schema_id/
// created_at envelope every artifact document must have, before any
// artifact-specific field is trusted.
func ValidateEnvelope(doc any) error {
	schema, err := compiledEnvelopeSchema()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("artifact: marshaling document for schema validation: %w", err)
	}
	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return fmt.Errorf("artifact: unmarshaling document for schema validation: %w", err)
	}

	if err := schema.Validate(normalized); err != nil {
		return fmt.Errorf("artifact: envelope validation failed: %w", err)
	}
	return nil
}

// SchemaID is a parsed "<prefix>@<major-version>" schema identifier, e.g.
// "rch-xcode/summary@1".
type SchemaID struct {
	Full         string
	Prefix       string
	MajorVersion int
}

// ParseSchemaID splits a schema_id into its prefix and major version.
func ParseSchemaID(schemaID string) (SchemaID, error) {
	at := strings.LastIndex(schemaID, "@")
	if at < 0 {
		return SchemaID{}, fmt.Errorf("artifact: invalid schema_id %q: missing '@' delimiter before version number", schemaID)
	}
	prefix := schemaID[:at]
	versionStr := schemaID[at+1:]
	if prefix == "" {
		return SchemaID{}, fmt.Errorf("artifact: invalid schema_id %q: empty prefix before '@'", schemaID)
	}
	major, err := strconv.Atoi(versionStr)
	if err != nil {
		return SchemaID{}, fmt.Errorf("artifact: invalid schema_id %q: invalid major version %q, expected integer", schemaID, versionStr)
	}
	return SchemaID{Full: schemaID, Prefix: prefix, MajorVersion: major}, nil
}

// ValidateSchemaCompatibility enforces the forward-compatibility rule: an
// artifact is readable so long as its schema_id's major version matches the
// consumer's expectation, regardless of any new optional fields added since.
// A differing major version is rejected with a diagnostic naming both.
func ValidateSchemaCompatibility(expectedSchemaID, actualSchemaID string) error {
	expected, err := ParseSchemaID(expectedSchemaID)
	if err != nil {
		return err
	}
	actual, err := ParseSchemaID(actualSchemaID)
	if err != nil {
		return err
	}
	if expected.Prefix != actual.Prefix {
		return fmt.Errorf("artifact: schema type mismatch: expected prefix %q, got %q in schema_id %q",
			expected.Prefix, actual.Prefix, actualSchemaID)
	}
	if expected.MajorVersion != actual.MajorVersion {
		return fmt.Errorf("artifact: schema major version mismatch: expected %d (%s), got %d (%s)",
			expected.MajorVersion, expectedSchemaID, actual.MajorVersion, actualSchemaID)
	}
	return nil
}
