package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errDriver = errors.New("disk I/O error")

func TestStoreUnwrapsToKindAndCause(t *testing.T) {
	err := fmt.Errorf("failed to insert rating: %w", Store("insert rating", errDriver))

	assert.ErrorIs(t, err, ErrStore)
	assert.ErrorIs(t, err, errDriver)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Equal(t, CodeStore, CodeOf(err))
}

func TestKinds(t *testing.T) {
	assert.ErrorIs(t, Validation("missing %s", "type"), ErrValidation)
	assert.ErrorIs(t, NotFound("no ratings"), ErrNotFound)

	limited := RateLimited("", "slow down")
	assert.ErrorIs(t, limited, ErrRateLimited)
	assert.Equal(t, CodeTooManyRequests, limited.Code)

	dup := RateLimited("already_rated", "again?")
	assert.Equal(t, "already_rated", CodeOf(dup))
	assert.Equal(t, "rate limited: again?", dup.Error())
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, "", CodeOf(errDriver))
}
