// Package timex provides a JSON-friendly duration scalar for config files:
// it accepts either a duration string ("1h", "500ms") or a raw integer
// number of nanoseconds, the two shapes operators actually write by hand.
package timex

import (
	"encoding/json"
	"fmt"
	"time"
)

type Duration struct {
	Duration time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		d.Duration = time.Duration(val)
		return nil
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration value: %v", v)
	}
}
