package timebucket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoundTripStaysWithinOneHour(t *testing.T) {
	samples := []time.Time{
		time.Date(2024, 3, 9, 14, 59, 59, 999_000_000, time.UTC),
		time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC),
		time.Date(1999, 12, 31, 23, 30, 0, 0, time.UTC),
		time.Unix(0, 0),
	}

	for _, ts := range samples {
		decoded := ToTime(FromTime(ts))
		diff := ts.Sub(decoded)
		assert.GreaterOrEqual(t, diff, time.Duration(0), ts)
		assert.Less(t, diff, time.Hour, ts)
		assert.Zero(t, decoded.Minute())
		assert.Zero(t, decoded.Second())
	}
}

func TestFromMillis(t *testing.T) {
	assert.Equal(t, int64(0), FromMillis(3_599_999))
	assert.Equal(t, int64(1), FromMillis(3_600_000))
	assert.Equal(t, int64(-1), FromMillis(-1))
	assert.Equal(t, int64(7_200_000), ToMillis(2))
}

func TestSince(t *testing.T) {
	now := time.Date(2024, 3, 9, 15, 10, 0, 0, time.UTC)
	cutoff := Since(now, 24)

	assert.Greater(t, FromTime(now.Add(-23*time.Hour)), cutoff)
	assert.Equal(t, FromTime(now.Add(-24*time.Hour)), cutoff)
}

func TestSinceWindowOfOneHoldsOnlyCurrentBucket(t *testing.T) {
	now := time.Date(2024, 3, 9, 15, 59, 0, 0, time.UTC)
	cutoff := Since(now, 1)

	assert.Greater(t, FromTime(now.Truncate(time.Hour)), cutoff)
	assert.False(t, FromTime(now.Add(-time.Hour)) > cutoff)
}
