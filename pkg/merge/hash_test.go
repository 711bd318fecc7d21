package merge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHash(t *testing.T) {
	assert.Equal(t, ContentHash("hello\n"), ContentHash("hello\n"))
	assert.NotEqual(t, ContentHash("hello\n"), ContentHash("hello"))
	assert.Len(t, ContentHash(""), 64)
}

func TestCheckFresh(t *testing.T) {
	text := "replicas: 3\n"

	require.NoError(t, CheckFresh("values.yaml", text, ContentHash(text)))

	err := CheckFresh("values.yaml", "replicas: 4\n", ContentHash(text))
	require.Error(t, err)

	var staleErr *StaleError
	require.True(t, errors.As(err, &staleErr))
	assert.Equal(t, "values.yaml", staleErr.Path)
	assert.Equal(t, ContentHash(text), staleErr.ExpectedHash)
	assert.Equal(t, ContentHash("replicas: 4\n"), staleErr.ActualHash)
}
