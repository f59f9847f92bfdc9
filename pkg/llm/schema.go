package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	jsonschemavalidate "github.com/santhosh-tekuri/jsonschema/v5"
)

// CommentStructure is the JSON shape every provider must return. Structured
// output keeps the models from wrapping comments in prose or markdown.
type CommentStructure struct {
	Comment string `json:"comment" jsonschema:"title=comment,description=Der Kommentartext auf Deutsch ohne Präfix oder Anführungszeichen"`
}

// commentSchemaJSON reflects the response schema once at package init.
var commentSchemaJSON = buildCommentSchema()

// commentValidator validates provider output against the same schema.
var commentValidator = compileCommentValidator()

func buildCommentSchema() json.RawMessage {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&CommentStructure{})
	schema.Version = "" // OpenAI rejects the $schema keyword in strict mode
	schema.AdditionalProperties = jsonschema.FalseSchema
	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("reflecting comment schema: %v", err))
	}
	return raw
}

func compileCommentValidator() *jsonschemavalidate.Schema {
	compiler := jsonschemavalidate.NewCompiler()
	if err := compiler.AddResource("comment.json", bytes.NewReader(commentSchemaJSON)); err != nil {
		panic(fmt.Sprintf("adding comment schema resource: %v", err))
	}
	schema, err := compiler.Compile("comment.json")
	if err != nil {
		panic(fmt.Sprintf("compiling comment schema: %v", err))
	}
	return schema
}

// parseCommentJSON extracts the comment text from a provider's raw response.
// Models sometimes fence the JSON in markdown; the fence is stripped before
// parsing and the payload is validated against the response schema.
func parseCommentJSON(raw string) (string, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var payload interface{}
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return "", fmt.Errorf("response is not valid JSON: %w", err)
	}
	if err := commentValidator.Validate(payload); err != nil {
		return "", fmt.Errorf("response does not match comment schema: %w", err)
	}

	var structured CommentStructure
	if err := json.Unmarshal([]byte(cleaned), &structured); err != nil {
		return "", fmt.Errorf("decoding comment structure: %w", err)
	}
	comment := strings.TrimSpace(structured.Comment)
	if comment == "" {
		return "", fmt.Errorf("response contains an empty comment")
	}
	return comment, nil
}
