package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/sensorrelay/errors"
)

// documentSchema describes the canonical (decoded, defaults applied) form of Config.
// Durations are validated in their marshaled string form.
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["baseUrl", "apiUrl", "sensors"],
  "properties": {
    "baseUrl": {"type": "string", "minLength": 1},
    "apiUrl": {"type": "string"},
    "sensors": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "ipAddress", "port"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "ipAddress": {"type": "string", "minLength": 1},
          "port": {"type": "integer", "minimum": 1, "maximum": 65535}
        }
      }
    },
    "session": {
      "type": "object",
      "properties": {
        "connectTimeout": {"$ref": "#/definitions/duration"},
        "retryInterval": {"$ref": "#/definitions/duration"},
        "lineThrottle": {"$ref": "#/definitions/duration"},
        "idleTimeout": {"$ref": "#/definitions/duration"}
      }
    },
    "forward": {
      "type": "object",
      "properties": {
        "timeout": {"$ref": "#/definitions/duration"},
        "tls": {
          "type": "object",
          "properties": {
            "caFiles": {"type": "array", "items": {"type": "string", "minLength": 1}},
            "certFile": {"type": "string"},
            "keyFile": {"type": "string"},
            "insecureSkipVerify": {"type": "boolean"},
            "minVersion": {"type": "string", "enum": ["1.2", "1.3"]}
          }
        }
      }
    },
    "nats": {
      "type": "object",
      "properties": {
        "url": {"type": "string"},
        "subject": {"type": "string", "pattern": "^[^\\s*>]*$"},
        "user": {"type": "string"},
        "password": {"type": "string"},
        "token": {"type": "string"},
        "maxReconnects": {"type": "integer", "minimum": -1},
        "reconnectWait": {"$ref": "#/definitions/duration"},
        "pingInterval": {"$ref": "#/definitions/duration"},
        "connectTimeout": {"$ref": "#/definitions/duration"},
        "drainTimeout": {"$ref": "#/definitions/duration"}
      }
    },
    "reloadInterval": {"$ref": "#/definitions/duration"},
    "statusInterval": {"$ref": "#/definitions/duration"}
  },
  "definitions": {
    "duration": {
      "type": "string",
      "pattern": "^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$"
    }
  }
}`

// Schema returns the JSON Schema (draft-07) for the configuration document
func Schema() string {
	return documentSchema
}

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(documentSchema))
})

// validateSchema checks the structural shape of cfg
func validateSchema(cfg *Config) error {
	schema, err := compiledSchema()
	if err != nil {
		return errors.WrapFatal(err, "Config", "validateSchema", "compile schema")
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(cfg))
	if err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err),
			"Config", "validateSchema", "schema validation")
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
		"Config", "validateSchema", "schema validation")
}
