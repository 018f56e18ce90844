// Package validation checks codeloop YAML files against their JSON Schemas.
package validation

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/spboyer/codeloop/schemas"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

// defaultPrinter is used to format schema validation error messages.
var defaultPrinter = message.NewPrinter(language.English)

var (
	configSchema = mustCompileSchema(schemas.ConfigSchemaJSON, "config.schema.json")
	batchSchema  = mustCompileSchema(schemas.BatchSchemaJSON, "batch.schema.json")
)

func mustCompileSchema(raw string, name string) *jsonschema.Schema {
	var schemaDoc any
	if err := json.Unmarshal([]byte(raw), &schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to parse embedded %s: %v", name, err))
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", name, err))
	}

	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", name, err))
	}
	return sch
}

// ValidateConfigBytes validates raw .codeloop.yaml content.
func ValidateConfigBytes(data []byte) []string {
	return validateYAMLBytes(configSchema, data)
}

// ValidateBatchBytes validates raw batch sessions content.
func ValidateBatchBytes(data []byte) []string {
	return validateYAMLBytes(batchSchema, data)
}

// ValidateBatchFile reads and validates a batch sessions file.
func ValidateBatchFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading batch file: %w", err)
	}
	return ValidateBatchBytes(data), nil
}

func validateYAMLBytes(schema *jsonschema.Schema, data []byte) []string {
	var yamlDoc any
	if err := yaml.Unmarshal(data, &yamlDoc); err != nil {
		return []string{fmt.Sprintf("YAML parse error: %v", err)}
	}
	if yamlDoc == nil {
		// an empty document is an empty mapping
		yamlDoc = map[string]any{}
	}

	instance, err := toJSONCompatible(yamlDoc)
	if err != nil {
		return []string{err.Error()}
	}
	return validateAgainstSchema(schema, instance)
}

func validateAgainstSchema(schema *jsonschema.Schema, instance any) []string {
	err := schema.Validate(instance)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{fmt.Sprintf("schema: %v", err)}
	}
	var errs []string
	collectSchemaErrors(ve, &errs)
	sort.Strings(errs)
	return errs
}

func collectSchemaErrors(ve *jsonschema.ValidationError, errs *[]string) {
	if len(ve.Causes) == 0 {
		loc := "/"
		if len(ve.InstanceLocation) > 0 {
			loc = "/" + strings.Join(ve.InstanceLocation, "/")
		}
		*errs = append(*errs, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(defaultPrinter)))
		return
	}
	for _, c := range ve.Causes {
		collectSchemaErrors(c, errs)
	}
}

// toJSONCompatible converts YAML-decoded values into the types the schema
// validator understands. Mapping keys must be strings and integers become
// json.Number.
func toJSONCompatible(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, v2 := range val {
			c, err := toJSONCompatible(v2)
			if err != nil {
				return nil, err
			}
			result[k] = c
		}
		return result, nil
	case map[any]any:
		result := make(map[string]any, len(val))
		for k, v2 := range val {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("mapping key %v is not a string", k)
			}
			c, err := toJSONCompatible(v2)
			if err != nil {
				return nil, err
			}
			result[ks] = c
		}
		return result, nil
	case []any:
		result := make([]any, len(val))
		for i, v2 := range val {
			c, err := toJSONCompatible(v2)
			if err != nil {
				return nil, err
			}
			result[i] = c
		}
		return result, nil
	case int:
		return json.Number(fmt.Sprint(val)), nil
	case uint64:
		return json.Number(fmt.Sprint(val)), nil
	case float64:
		return json.Number(fmt.Sprint(val)), nil
	default:
		return val, nil
	}
}
