package textx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeText(t *testing.T) {
	in := "he\x00llo\nwo\x7frld\t!"
	assert.Equal(t, "hello\nworld\t!", SanitizeText(in))
	assert.Equal(t, "hi", SanitizeText("  hi \x01 "))
}

func TestSlug(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"Jane Doe", 25, "jane_doe"},
		{"  José   Álvarez ", 25, "jose_alvarez"},
		{"octo-cat", 25, "octo-cat"},
		{"a..b__c", 25, "a.b_c"},
		{"___", 25, ""},
		{"abcdefghij_klm", 11, "abcdefghij"},
		{"名前", 25, ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Slug(tc.in, tc.max), tc.in)
	}
}
