package rating

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanmade/backend/internal/storage/sqlite"
	"github.com/humanmade/backend/pkg/apperror"
)

func TestSummaryAveragesEachAxisOverItsOwnRatings(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.Submit(ctx, origin, submission("UC1", "alice", intp(4), nil, intp(2)))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, origin, submission("UC1", "bob", intp(2), intp(3), nil))
	require.NoError(t, err)

	s, err := svc.Summary(ctx, "yc", "UC1", "")
	require.NoError(t, err)

	assert.Equal(t, "yc", s.Meta.Type)
	assert.Equal(t, "UC1", s.Meta.Target)
	assert.Equal(t, int64(2), s.Ratings)
	require.NotNil(t, s.Score.Audio)
	require.NotNil(t, s.Score.Visual)
	require.NotNil(t, s.Score.Text)
	assert.InDelta(t, 3.0, *s.Score.Audio, 1e-9)
	assert.InDelta(t, 3.0, *s.Score.Visual, 1e-9)
	assert.InDelta(t, 2.0, *s.Score.Text, 1e-9)
	assert.False(t, s.UserRated)
}

func TestSummaryAxisWithoutRatingsIsNil(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.Submit(ctx, origin, submission("UC1", "alice", nil, intp(1), nil))
	require.NoError(t, err)

	s, err := svc.Summary(ctx, "yc", "UC1", "")
	require.NoError(t, err)
	assert.Nil(t, s.Score.Audio)
	assert.Nil(t, s.Score.Text)
	require.NotNil(t, s.Score.Visual)
	assert.InDelta(t, 1.0, *s.Score.Visual, 1e-9)
}

func TestUserRated(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.Submit(ctx, origin, submission("UC1", "alice", intp(1), nil, nil))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, origin, submission("UC2", "bob", intp(1), nil, nil))
	require.NoError(t, err)

	cases := []struct {
		target, identity string
		want             bool
	}{
		{"UC1", "alice", true},
		{"UC1", "bob", false},
		{"UC1", "", false},
		{"UC2", "alice", false},
		{"UC1", "alice' OR '1'='1", false},
	}
	for _, tc := range cases {
		s, err := svc.Summary(ctx, "yc", tc.target, tc.identity)
		require.NoError(t, err)
		assert.Equal(t, tc.want, s.UserRated, "%s as %q", tc.target, tc.identity)
	}
}

func TestUserRatedIsScopedToType(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	ctx := context.Background()

	other := submission("UC1", "alice", intp(1), nil, nil)
	other.Type = "yv"
	_, err := svc.Submit(ctx, origin, other)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, origin, submission("UC1", "bob", intp(1), nil, nil))
	require.NoError(t, err)

	s, err := svc.Summary(ctx, "yc", "UC1", "alice")
	require.NoError(t, err)
	assert.False(t, s.UserRated)
	assert.Equal(t, int64(1), s.Ratings)
}

func TestSummaryNotFound(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	ctx := context.Background()

	_, err := svc.Summary(ctx, "yc", "never-rated", "alice")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = svc.Submit(ctx, origin, submission("UC1", "alice", intp(1), nil, nil))
	require.NoError(t, err)

	_, err = svc.Summary(ctx, "yv", "UC1", "")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestSummaryValidation(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})

	_, err := svc.Summary(context.Background(), "", "UC1", "")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.ListSummaries(context.Background(), "", "")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestListSummariesOnePerTarget(t *testing.T) {
	svc, _, _ := newTestService(t, Config{})
	ctx := context.Background()

	for _, sub := range []Submission{
		submission("UC2", "alice", intp(4), nil, nil),
		submission("UC1", "alice", intp(0), nil, nil),
		submission("UC1", "bob", intp(2), nil, nil),
		submission("UC3", "carol", nil, nil, intp(1)),
	} {
		_, err := svc.Submit(ctx, origin, sub)
		require.NoError(t, err)
	}

	list, err := svc.ListSummaries(ctx, "yc", "alice")
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.Equal(t, "UC1", list[0].Meta.Target)
	assert.Equal(t, int64(2), list[0].Ratings)
	assert.InDelta(t, 1.0, *list[0].Score.Audio, 1e-9)
	assert.True(t, list[0].UserRated)

	assert.Equal(t, "UC2", list[1].Meta.Target)
	assert.True(t, list[1].UserRated)

	assert.Equal(t, "UC3", list[2].Meta.Target)
	assert.Nil(t, list[2].Score.Audio)
	assert.False(t, list[2].UserRated)

	empty, err := svc.ListSummaries(ctx, "nothing", "")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSummaryUsesAndFillsCache(t *testing.T) {
	cache := newMemoryCache()
	svc, _, _ := newTestService(t, Config{Cache: cache})
	ctx := context.Background()

	_, err := svc.Submit(ctx, origin, submission("UC1", "alice", intp(4), nil, nil))
	require.NoError(t, err)

	first, err := svc.Summary(ctx, "yc", "UC1", "alice")
	require.NoError(t, err)
	assert.Contains(t, cache.single, "yc|UC1|alice")

	cache.single["yc|UC1|alice"].Ratings = 99
	second, err := svc.Summary(ctx, "yc", "UC1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(99), second.Ratings)
	assert.Same(t, first, second)

	_, err = svc.Submit(ctx, origin, submission("UC1", "bob", intp(2), nil, nil))
	require.NoError(t, err)

	third, err := svc.Summary(ctx, "yc", "UC1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), third.Ratings)
}

func TestCacheFailuresFallBackToStore(t *testing.T) {
	cache := newMemoryCache()
	cache.failReads = true
	svc, _, _ := newTestService(t, Config{Cache: cache})
	ctx := context.Background()

	_, err := svc.Submit(ctx, origin, submission("UC1", "alice", intp(4), nil, nil))
	require.NoError(t, err)

	s, err := svc.Summary(ctx, "yc", "UC1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Ratings)

	list, err := svc.ListSummaries(ctx, "yc", "")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestReshapeDropsEmptyAggregate(t *testing.T) {
	rows := []sqlite.Record{{
		"target": nil, "ratings": int64(0),
		"audio_axis_sum": nil, "audio_axis_count": int64(0),
	}}
	assert.Empty(t, reshape("yc", "UC1", "", rows))
}

func TestAverage(t *testing.T) {
	assert.Nil(t, average(nil, int64(0)))
	assert.Nil(t, average(int64(3), nil))
	assert.InDelta(t, 2.5, *average(int64(5), int64(2)), 1e-9)
	assert.InDelta(t, 1.5, *average(3.0, int64(2)), 1e-9)
}
