package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Argument schemas, keyed by "channel/method".
var argSchemas = map[string]string{
	ChannelWindowPin + "/" + MethodSetLocked: `{
		"type": "object",
		"required": ["locked"],
		"properties": {"locked": {"type": "boolean"}}
	}`,
	ChannelWindowPin + "/" + MethodHitTest: `{
		"type": "object",
		"required": ["x", "y", "width", "height"],
		"properties": {
			"x": {"type": "number"},
			"y": {"type": "number"},
			"width": {"type": "number", "minimum": 0},
			"height": {"type": "number", "minimum": 0},
			"scale": {"type": "number", "exclusiveMinimum": 0}
		}
	}`,
	ChannelGlassTint + "/" + MethodSetTintColor: `{
		"type": "object",
		"required": ["r", "g", "b"],
		"properties": {
			"r": {"type": "number", "minimum": 0, "maximum": 1},
			"g": {"type": "number", "minimum": 0, "maximum": 1},
			"b": {"type": "number", "minimum": 0, "maximum": 1}
		}
	}`,
}

type validator struct {
	schemas map[string]*jsonschema.Schema
}

func newValidator() (*validator, error) {
	compiler := jsonschema.NewCompiler()
	v := &validator{schemas: make(map[string]*jsonschema.Schema, len(argSchemas))}
	for key, src := range argSchemas {
		url := "ringobridge://args/" + key + ".json"
		if err := compiler.AddResource(url, strings.NewReader(src)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", key, err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", key, err)
		}
		v.schemas[key] = schema
	}
	return v, nil
}

// decode validates raw against the schema for key and unmarshals it into
// out. Validation failures come back as INVALID_ARGUMENT naming the field.
func (v *validator) decode(key string, raw json.RawMessage, out any) error {
	schema, ok := v.schemas[key]
	if !ok {
		return nil
	}

	var instance any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &instance); err != nil {
			return InvalidArgument("args", "malformed JSON: "+err.Error())
		}
	}
	if err := schema.Validate(instance); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			leaf := deepest(ve)
			return InvalidArgument(fieldOf(leaf), leaf.Message)
		}
		return InvalidArgument("args", err.Error())
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return InvalidArgument("args", err.Error())
		}
	}
	return nil
}

func deepest(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}

var quoted = regexp.MustCompile(`'([^']+)'`)

// fieldOf names the argument a validation error is about: the last segment
// of its instance location, or the first property named in a "missing
// properties" or "additionalProperties" message.
func fieldOf(ve *jsonschema.ValidationError) string {
	if loc := strings.Trim(ve.InstanceLocation, "/"); loc != "" {
		parts := strings.Split(loc, "/")
		return parts[len(parts)-1]
	}
	if m := quoted.FindStringSubmatch(ve.Message); m != nil {
		return m[1]
	}
	return "args"
}
