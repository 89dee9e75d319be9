// ABOUTME: Process-monotonic timestamp source for turn creation
// ABOUTME: Guarantees strictly increasing fixed-width RFC 3339 timestamps so turn order has no ties

package turn

import (
	"sync"
	"time"
)

// timestampFormat is RFC 3339 with a fixed-width nanosecond fraction.
// RFC3339Nano trims trailing zeros, which breaks the lexical-order-equals
// time-order property the stores rely on ("...0.1Z" sorts after
// "...0.100000001Z"). The fixed width keeps string comparison and time
// comparison in agreement.
const timestampFormat = "2006-01-02T15:04:05.000000000Z07:00"

var clock = struct {
	mu   sync.Mutex
	last time.Time
}{}

// Timestamp returns the current UTC time formatted with a fixed-width
// nanosecond fraction. Successive calls always return strictly increasing
// values, lexically and temporally: ordering across turns is defined by
// timestamp, so ties must not occur within a process.
func Timestamp() string {
	clock.mu.Lock()
	defer clock.mu.Unlock()

	now := time.Now().UTC()
	if !now.After(clock.last) {
		now = clock.last.Add(time.Nanosecond)
	}
	clock.last = now

	return now.Format(timestampFormat)
}
