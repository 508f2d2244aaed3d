package graphstore

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestPointID_ValidUUIDPassesThroughUnmapped(t *testing.T) {
	id := uuid.NewString()
	pid, remapped := pointID(id)
	assert.False(t, remapped)
	assert.Equal(t, id, pid.GetUuid())
}

func TestPointID_NonUUIDIsDeterministicallyRemapped(t *testing.T) {
	pid1, remapped1 := pointID("prop-123")
	pid2, remapped2 := pointID("prop-123")
	assert.True(t, remapped1)
	assert.True(t, remapped2)
	assert.Equal(t, pid1.GetUuid(), pid2.GetUuid())

	other, _ := pointID("prop-456")
	assert.NotEqual(t, pid1.GetUuid(), other.GetUuid())
}
