package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStructureText(t *testing.T) {
	t.Run("flat list", func(t *testing.T) {
		got := ParseStructureText("Contracts\nInvoices\nMedia")
		require.Len(t, got, 3)
		assert.Equal(t, "Contracts", got[0].Name)
		assert.Equal(t, "Invoices", got[1].Name)
		assert.Equal(t, "Media", got[2].Name)
	})

	t.Run("nested tree", func(t *testing.T) {
		text := "Contracts\n  Signed\n  Drafts\nMedia\n  Photos\n    Before\n    After"
		got := ParseStructureText(text)
		require.Len(t, got, 2)

		require.Len(t, got[0].Children, 2)
		assert.Equal(t, "Signed", got[0].Children[0].Name)
		assert.Equal(t, "Drafts", got[0].Children[1].Name)

		require.Len(t, got[1].Children, 1)
		photos := got[1].Children[0]
		require.Len(t, photos.Children, 2)
		assert.Equal(t, "Before", photos.Children[0].Name)
		assert.Equal(t, "After", photos.Children[1].Name)
	})

	t.Run("tabs and blank lines", func(t *testing.T) {
		text := "Root\n\n\tChild\n\t\tGrandchild\n"
		got := ParseStructureText(text)
		require.Len(t, got, 1)
		require.Len(t, got[0].Children, 1)
		require.Len(t, got[0].Children[0].Children, 1)
		assert.Equal(t, "Grandchild", got[0].Children[0].Children[0].Name)
	})

	t.Run("dedent returns to correct level", func(t *testing.T) {
		text := "A\n  B\n    C\n  D\nE"
		got := ParseStructureText(text)
		require.Len(t, got, 2)
		require.Len(t, got[0].Children, 2)
		assert.Equal(t, "B", got[0].Children[0].Name)
		assert.Equal(t, "D", got[0].Children[1].Name)
		assert.Equal(t, "E", got[1].Name)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, ParseStructureText(""))
		assert.Empty(t, ParseStructureText("\n  \n"))
	})
}
