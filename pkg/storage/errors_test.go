package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	err := NewError("upload", "gs://b/k", ProviderGCS, ErrNotFound)

	assert.Equal(t, "storage gcs: upload failed for gs://b/k: storage: object not found", err.Error())
	assert.True(t, IsNotFound(err))
	assert.False(t, IsAccessDenied(err))

	var storageErr *Error
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &storageErr))
	assert.Equal(t, "upload", storageErr.Op)
	assert.Equal(t, "gcs", storageErr.Provider)

	noPath := NewError("compose", "", ProviderGCS, ErrAccessDenied)
	assert.Equal(t, "storage gcs: compose failed: storage: access denied", noPath.Error())
	assert.True(t, IsAccessDenied(noPath))
}
