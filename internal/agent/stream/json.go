package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// normalizeJSON validates raw as JSON and returns it compacted, so fused
// tool arguments compare byte-equal regardless of how the provider chunked
// the whitespace.
func normalizeJSON(raw string) (json.RawMessage, error) {
	if !json.Valid([]byte(raw)) {
		var probe any
		err := json.Unmarshal([]byte(raw), &probe)
		if err == nil {
			err = fmt.Errorf("invalid JSON")
		}
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return nil, err
	}
	return json.RawMessage(buf.Bytes()), nil
}
