// Package schemas embeds the JSON Schemas for codeloop's YAML files.
package schemas

import _ "embed"

// ConfigSchemaJSON validates .codeloop.yaml.
//
//go:embed config.schema.json
var ConfigSchemaJSON string

// BatchSchemaJSON validates the sessions file read by "codeloop batch".
//
//go:embed batch.schema.json
var BatchSchemaJSON string
