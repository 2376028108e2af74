package storage_test

import (
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharronesofer/visual-dm-sub028/internal/storage"
)

func TestNewID_SortsInCreationOrder(t *testing.T) {
	prev := storage.NewID()
	for range 1000 {
		next := storage.NewID()
		require.Less(t, prev, next)
		prev = next
	}
}

func TestNewID_IsULID(t *testing.T) {
	id := storage.NewID()
	assert.Len(t, id, ulid.EncodedSize)
	_, err := ulid.ParseStrict(id)
	assert.NoError(t, err)
}
