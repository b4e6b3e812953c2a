package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty", input: "", expected: nil},
		{name: "only separators", input: " , ,", expected: nil},
		{name: "single", input: "nats://a:4222", expected: []string{"nats://a:4222"}},
		{name: "trims", input: " a , b ", expected: []string{"a", "b"}},
		{name: "drops repeats keeping first", input: "b,a,b,a", expected: []string{"b", "a"}},
		{name: "case is significant", input: "A,a", expected: []string{"A", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitList(tt.input, ","))
		})
	}
}
