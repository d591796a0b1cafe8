package envelope

import (
	"encoding/json"
	"fmt"

	"lesson-progress-service/internal/domain"
)

// Version is the schema version written with every persisted entry.
const Version = 1

type wrapper struct {
	V    int             `json:"v"`
	Data json.RawMessage `json:"data"`
}

// Encode wraps v as {"v":Version,"data":v}.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode entry: %w", err)
	}
	return json.Marshal(wrapper{V: Version, Data: data})
}

// Decode unwraps raw into v. Entries written under another version return
// domain.ErrVersionMismatch and leave v untouched.
func Decode(raw []byte, v any) error {
	var w wrapper
	if err := json.Unmarshal(raw, &w); err != nil {
		return fmt.Errorf("decode entry: %w", err)
	}
	if w.V != Version {
		return fmt.Errorf("%w: got v%d, want v%d", domain.ErrVersionMismatch, w.V, Version)
	}
	if len(w.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(w.Data, v); err != nil {
		return fmt.Errorf("decode entry data: %w", err)
	}
	return nil
}
