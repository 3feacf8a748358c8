package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const envelopeSchemaURL = "https://threadsauto.local/schemas/push-envelope.json"

const envelopeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["room", "event"],
  "properties": {
    "id": {"type": "string"},
    "room": {"type": "string", "minLength": 1},
    "event": {"type": "string", "pattern": "^[a-z][a-z0-9_]*(\\.[a-z][a-z0-9_]*)+$"},
    "data": {"type": ["object", "null"]},
    "sent_at": {"type": "string"}
  }
}`

// envelopeValidator checks raw push frames before they are decoded.
type envelopeValidator struct {
	schema *jsonschema.Schema
}

func newEnvelopeValidator() (*envelopeValidator, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(envelopeSchema))
	if err != nil {
		return nil, fmt.Errorf("parse envelope schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(envelopeSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add envelope schema: %w", err)
	}
	schema, err := c.Compile(envelopeSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile envelope schema: %w", err)
	}
	return &envelopeValidator{schema: schema}, nil
}

// decode validates data against the envelope schema and decodes it.
func (v *envelopeValidator) decode(data []byte) (Event, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return Event{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := v.schema.Validate(inst); err != nil {
		return Event{}, fmt.Errorf("invalid envelope: %w", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode envelope: %w", err)
	}
	return ev, nil
}
