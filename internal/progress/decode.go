package progress

import (
	"bytes"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/germanoeich/dockctl/internal/core"
)

const payloadSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["status"],
	"properties": {
		"id": {"type": "string"},
		"status": {"type": "string"},
		"progress_detail": {
			"type": "object",
			"properties": {
				"current": {"type": "integer", "minimum": 0},
				"total": {"type": "integer", "minimum": 0}
			}
		}
	}
}`

var schema = jsonschema.MustCompileString("pull-progress.schema.json", payloadSchema)

type wirePayload struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	ProgressDetail *struct {
		Current *int64 `json:"current"`
		Total   *int64 `json:"total"`
	} `json:"progress_detail"`
}

// DecodeEvent validates a raw pull-progress payload and converts it into a
// ProgressEvent. Payloads that do not match the schema are a TransportFailure.
func DecodeEvent(raw json.RawMessage) (core.ProgressEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return core.ProgressEvent{}, core.Errorf(core.TransportFailure, "pull-progress", "malformed payload: %v", err)
	}
	if err := schema.Validate(doc); err != nil {
		return core.ProgressEvent{}, core.Errorf(core.TransportFailure, "pull-progress", "invalid payload: %v", err)
	}

	var w wirePayload
	if err := json.Unmarshal(raw, &w); err != nil {
		return core.ProgressEvent{}, core.Errorf(core.TransportFailure, "pull-progress", "malformed payload: %v", err)
	}

	ev := core.ProgressEvent{ID: w.ID, Status: w.Status}
	if w.ProgressDetail != nil {
		ev.Current = w.ProgressDetail.Current
		ev.Total = w.ProgressDetail.Total
	}
	return ev, nil
}
