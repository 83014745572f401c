package logging

import (
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	return string(b), err
}

func TestGenerateRequestID(t *testing.T) {
	id := GenerateRequestID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	ids := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := GenerateRequestID()
		assert.False(t, ids[id], "duplicate request id %s", id)
		ids[id] = true
	}
}
