// Package timebucket stores timestamps as whole hours since the Unix epoch.
// Decoding always lands on an hour boundary; sub-hour precision is dropped.
package timebucket

import "time"

const Size = time.Hour

const sizeMillis = int64(Size / time.Millisecond)

func FromMillis(ms int64) int64 {
	b := ms / sizeMillis
	if ms < 0 && ms%sizeMillis != 0 {
		b--
	}
	return b
}

func FromTime(t time.Time) int64 {
	return FromMillis(t.UnixMilli())
}

func ToMillis(bucket int64) int64 {
	return bucket * sizeMillis
}

func ToTime(bucket int64) time.Time {
	return time.UnixMilli(ToMillis(bucket)).UTC()
}

// Since returns the exclusive lower bound of a window of n buckets ending at
// now. A stored bucket b is inside the window iff b > Since(now, n), so the
// window holds the current bucket and the n-1 before it.
func Since(now time.Time, n int64) int64 {
	return FromTime(now) - n
}
