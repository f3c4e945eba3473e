package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashParts(t *testing.T) {
	assert.Equal(t, HashParts("yc", "UC123"), HashParts("yc", "UC123"))
	assert.NotEqual(t, HashParts("a", "bc"), HashParts("ab", "c"))
	assert.Len(t, HashParts("x"), 32)
}
