package feed

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscape(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "1HGBH41JXMN109186", "1HGBH41JXMN109186"},
		{"empty", "", ""},
		{"pipes and query are safe", "https://h/a.jpg?v=1|https://h/b.jpg?v=2", "https://h/a.jpg?v=1|https://h/b.jpg?v=2"},
		{"comma", "a,b", `"a,b"`},
		{"quotes and comma", `He said "hi", ok`, `"He said ""hi"", ok"`},
		{"lone quote", `"`, `""""`},
		{"newline", "a\nb", "\"a\nb\""},
		{"carriage return", "a\rb", "\"a\rb\""},
		{"space is safe", "T 123", "T 123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Escape(tt.in))
		})
	}
}

func TestWriteRow(t *testing.T) {
	var b strings.Builder
	writeRow(&b, "V", "S,1", "")
	assert.Equal(t, "V,\"S,1\",\r\n", b.String())
}
