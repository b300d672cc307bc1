package classroom

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// the backend emits naive ISO timestamps (no zone) which are UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Timestamp is a time.Time that understands the backend's date formats.
type Timestamp struct {
	time.Time
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.UTC().Format(time.RFC3339Nano))
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		ts.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "decoding timestamp")
	}
	if s == "" {
		ts.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			ts.Time = t
			return nil
		}
	}
	return errors.Errorf("unsupported timestamp %q", s)
}

// Display formats the timestamp for views.
func (ts Timestamp) Display() string {
	if ts.IsZero() {
		return ""
	}
	return ts.Local().Format("Jan 2, 2006 15:04")
}
