package schema

import (
	"fmt"
	"time"
)

var timestampLayouts = []struct {
	layout    string
	hasOffset bool
}{
	{time.RFC3339Nano, true},
	{time.RFC3339, true},
	{"2006-01-02 15:04:05.999999999Z07:00", true},
	{"2006-01-02 15:04:05Z07:00", true},
	{"2006-01-02T15:04:05.999999999", false},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02 15:04:05.999999999", false},
	{"2006-01-02 15:04:05", false},
}

// ParseTimestamp parses a textual timestamp and reports whether the value
// carried an explicit UTC offset. Values without one parse in UTC but are
// flagged hasOffset=false; the validator decides what that means for the
// declared column, it is never silently assumed to be UTC here.
func ParseTimestamp(v string) (t time.Time, hasOffset bool, err error) {
	for _, l := range timestampLayouts {
		if t, err = time.Parse(l.layout, v); err == nil {
			return t, l.hasOffset, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("unrecognized timestamp %q", v)
}
