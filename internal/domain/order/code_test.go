package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeCode(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "#AAA000"},
		{1, "#AAA001"},
		{999, "#AAA999"},
		{1000, "#AAB000"},
		{25_999, "#AAZ999"},
		{26_000, "#ABA000"},
		{676_000, "#BAA000"},
		{codeSpace - 1, "#ZZZ999"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, EncodeCode(tt.n))
		})
	}
}

func TestEncodeCode_Unique(t *testing.T) {
	seen := make(map[string]int64, 60_000)
	for n := int64(0); n < 60_000; n++ {
		c := EncodeCode(n)
		prev, dup := seen[c]
		assert.False(t, dup, "code %s for %d and %d", c, prev, n)
		seen[c] = n
	}
}
