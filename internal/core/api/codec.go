package api

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// decode converts a Struct into dest through its JSON form, so request
// payloads share the internal/types JSON tags with bundle files.
func decode(in *structpb.Struct, dest any) error {
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return invalidArgument("malformed request: %v", err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return invalidArgument("malformed request: %v", err)
	}
	return nil
}

// encode converts a JSON-tagged value into a response Struct.
func encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return structpb.NewStruct(m)
}
