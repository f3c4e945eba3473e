package models

import (
	"time"

	"github.com/humanmade/backend/internal/storage/schema"
	"github.com/humanmade/backend/pkg/timebucket"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type User struct {
	ID           string `db:"id" json:"id"`
	PasswordHash string `db:"password_hash" json:"-"`
	Role         string `db:"role" json:"role"`
}

func (u User) Record() map[string]interface{} {
	return map[string]interface{}{
		schema.UserID:           u.ID,
		schema.UserPasswordHash: u.PasswordHash,
		schema.UserRole:         u.Role,
	}
}

// Rating is one stored opinion. Timestamp is an hour bucket, see pkg/timebucket.
type Rating struct {
	ID         int64   `db:"id" json:"id"`
	Type       string  `db:"type" json:"type"`
	Target     string  `db:"target" json:"target"`
	Author     *string `db:"author" json:"author"`
	Source     string  `db:"source" json:"source"`
	Timestamp  int64   `db:"timestamp" json:"timestamp"`
	AudioAxis  *int64  `db:"audio_axis" json:"audio"`
	VisualAxis *int64  `db:"visual_axis" json:"visual"`
	TextAxis   *int64  `db:"text_axis" json:"text"`
}

// SubmittedAt is accurate to the hour only.
func (r Rating) SubmittedAt() time.Time {
	return timebucket.ToTime(r.Timestamp)
}

// Record holds the settable columns. Nil pointers become NULL.
func (r Rating) Record() map[string]interface{} {
	return map[string]interface{}{
		schema.RatingType:       r.Type,
		schema.RatingTarget:     r.Target,
		schema.RatingAuthor:     deref(r.Author),
		schema.RatingSource:     r.Source,
		schema.RatingTimestamp:  r.Timestamp,
		schema.RatingAudioAxis:  deref(r.AudioAxis),
		schema.RatingVisualAxis: deref(r.VisualAxis),
		schema.RatingTextAxis:   deref(r.TextAxis),
	}
}

func deref[T any](p *T) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

type SummaryMeta struct {
	Type   string `json:"type"`
	Target string `json:"target"`
}

// AxisScores are averages over the ratings that carry the axis; nil when none do.
type AxisScores struct {
	Audio  *float64 `json:"audio"`
	Visual *float64 `json:"visual"`
	Text   *float64 `json:"text"`
}

type Summary struct {
	Meta      SummaryMeta `json:"meta"`
	Score     AxisScores  `json:"score"`
	Ratings   int64       `json:"ratings"`
	UserRated bool        `json:"user_rated"`
}
