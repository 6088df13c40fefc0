package wireversion_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/shardwell/mwrite/wireversion"
)

func TestRange_Includes(t *testing.T) {
	t.Parallel()

	subject := Range{Min: 1, Max: 3}

	tests := []struct {
		n        uint8
		expected bool
	}{
		{0, false},
		{1, true},
		{2, true},
		{3, true},
		{4, false},
		{10, false},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, subject.Includes(test.n), "n=%v", test.n)
	}
}

func TestRange_SupportsWriteCommands(t *testing.T) {
	t.Parallel()

	assert.False(t, Range{Min: 0, Max: 1}.SupportsWriteCommands())
	assert.True(t, Range{Min: 0, Max: 2}.SupportsWriteCommands())
	assert.True(t, Range{Min: 0, Max: 6}.SupportsWriteCommands())
}
