package inter

import (
	"time"
)

// Timestamp is a block timestamp, in Unix seconds.
type Timestamp uint64

// FromTime converts a time.Time into a Timestamp, truncating to seconds.
func FromTime(t time.Time) Timestamp {
	return Timestamp(t.Unix())
}

// Time converts the timestamp into a time.Time in UTC.
func (t Timestamp) Time() time.Time {
	return time.Unix(int64(t), 0).UTC()
}

// Unix returns the timestamp as Unix seconds.
func (t Timestamp) Unix() uint64 {
	return uint64(t)
}

// String implements fmt.Stringer.
func (t Timestamp) String() string {
	return t.Time().Format(time.RFC3339)
}
