package hostinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead(t *testing.T) {
	info, err := Read()
	require.NoError(t, err)
	assert.NotEmpty(t, info.System)
	assert.NotEmpty(t, info.Machine)
}
