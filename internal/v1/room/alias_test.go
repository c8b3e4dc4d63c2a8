package room

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAlias(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"lowercased", "Alice.42", "alice.42", true},
		{"already normal", "bob", "bob", true},
		{"digits and separators", "a1_b-c.d", "a1_b-c.d", true},
		{"surrounding whitespace trimmed", "  alice  ", "alice", true},
		{"minimum length", "ab", "ab", true},
		{"maximum length", strings.Repeat("a", 32), strings.Repeat("a", 32), true},
		{"too short", "a", "", false},
		{"too long", strings.Repeat("a", 33), "", false},
		{"empty", "", "", false},
		{"invalid character", "a@b", "", false},
		{"space inside", "alice smith", "", false},
		{"leading underscore", "_alice", "", false},
		{"leading dash", "-alice", "", false},
		{"leading dot", ".alice", "", false},
		{"unicode", "ålice", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeAlias(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
