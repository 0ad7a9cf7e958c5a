package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileGlob(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"*", "anything:at/all", true},
		{"*", "", true},
		{"business:1:*", "business:1:detail", true},
		{"business:1:*", "business:1", false},
		{"business:1:*", "business:10:detail", false},
		{"businesses:*", "businesses:eyJhIjoxfQ:page:1-limit:10", true},
		{"businesses:*", "business:1", false},
		{"search:*", "search:abc/def+ghi", true},
		{"user:?", "user:5", true},
		{"user:?", "user:55", false},
		{"user:[0-4]", "user:3", true},
		{"user:[0-4]", "user:5", false},
		{"user:[^0-4]", "user:5", true},
		{"user:[abc]", "user:b", true},
		{"a.b", "a.b", true},
		{"a.b", "axb", false},
		{`lit\*`, "lit*", true},
		{`lit\*`, "literal", false},
		{"(x)+", "(x)+", true},
		{"business:*", "business:a\nb", true},
		{"user:?", "user:\n", true},
		{"user:[z-a]", "user:m", true},
		{"user:[z-a]", "user:A", false},
		{"user:[9-0]", "user:5", true},
		{`user:[a\-z]`, "user:-", true},
		{`user:[a\-z]`, "user:m", false},
		{"user:[]x]", "user:]", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.key, func(t *testing.T) {
			m, err := CompileGlob(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Match(tt.key))
		})
	}
}

func TestCompileGlobRejectsUnterminatedClass(t *testing.T) {
	_, err := CompileGlob("user:[abc")
	assert.Error(t, err)
}
