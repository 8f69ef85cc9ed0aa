package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "SUB_1.json"},
		{"responses", "responses/SUB_1.json"},
		{"/responses/", "responses/SUB_1.json"},
		{"survey/wisdom", "survey/wisdom/SUB_1.json"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, objectKey(tt.prefix, "SUB_1"), "prefix %q", tt.prefix)
	}
}
