package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOperation(t *testing.T) {
	tests := []struct {
		name string
		want Operation
	}{
		{"Continue", OpContinue},
		{"Active", OpActive},
		{"Terminate", OpTerminate},
		{"Restart", OpUnknown},
		{"active", OpUnknown},
		{"", OpUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseOperation(tt.name))
		})
	}
}

func TestOperationString(t *testing.T) {
	assert.Equal(t, "Continue", OpContinue.String())
	assert.Equal(t, "Active", OpActive.String())
	assert.Equal(t, "Terminate", OpTerminate.String())
	assert.Equal(t, "Unknown", OpUnknown.String())
	assert.Equal(t, "Unknown", Operation(99).String())
}
