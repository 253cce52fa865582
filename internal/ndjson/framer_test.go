package ndjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFramer(t *testing.T) {
	t.Run("emits complete lines and keeps the remainder", func(t *testing.T) {
		var f Framer
		assert.Empty(t, f.Push(`{"content":"Hel`))
		assert.Equal(t, 15, f.Pending())
		assert.Equal(t,
			[]string{`{"content":"Hello"}`, `{"content":" world"}`},
			f.Push("lo\"}\n{\"content\":\" world\"}\n"),
		)
		assert.Zero(t, f.Pending())
	})

	t.Run("drops blank lines and trims whitespace", func(t *testing.T) {
		var f Framer
		assert.Equal(t, []string{"a", "b"}, f.Push("\n  a \r\n\n\tb\n   \n"))
	})

	t.Run("flush returns the unterminated frame", func(t *testing.T) {
		var f Framer
		assert.Equal(t, []string{"one"}, f.Push("one\ntwo"))
		assert.Equal(t, []string{"two"}, f.Flush())
		assert.Nil(t, f.Flush())
	})

	t.Run("flush ignores trailing whitespace", func(t *testing.T) {
		var f Framer
		f.Push("done\n  ")
		assert.Nil(t, f.Flush())
	})
}
