package eventstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeIDs(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{"nil", nil, []string{}},
		{"trims and drops blanks", []string{" d-1 ", "", "  "}, []string{"d-1"}},
		{"first occurrence wins", []string{"d-2", "d-1", "d-2 ", "d-1"}, []string{"d-2", "d-1"}},
		{"case sensitive", []string{"D-1", "d-1"}, []string{"D-1", "d-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeIDs(tt.input))
		})
	}
}
