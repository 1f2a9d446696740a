package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInspectContent(t *testing.T) {
	pdf := []byte("%PDF-1.7\n1 0 obj\n")

	t.Run("Should accept matching content", func(t *testing.T) {
		r := InspectContent("lessons/week1.pdf", pdf, "application/pdf")
		assert.False(t, r.Mismatch)
		assert.Equal(t, "application/pdf", r.DetectedMIME)
	})

	t.Run("Should flag an executable disguised as a document", func(t *testing.T) {
		r := InspectContent("homework.pdf", []byte("MZ\x90\x00\x03"), "application/pdf")
		assert.True(t, r.Mismatch)
		assert.Equal(t, "executable content", r.Reason)
	})

	t.Run("Should flag extension spoofing", func(t *testing.T) {
		r := InspectContent("avatar.png", pdf, "image/png")
		assert.True(t, r.Mismatch)
		assert.Contains(t, r.Reason, ".png")
	})

	t.Run("Should flag a declared type from another family", func(t *testing.T) {
		r := InspectContent("notes", pdf, "image/jpeg")
		assert.True(t, r.Mismatch)
	})

	t.Run("Should be lenient with plain text", func(t *testing.T) {
		r := InspectContent("notes.md", []byte("# Lesson"), "text/markdown; charset=utf-8")
		assert.False(t, r.Mismatch)
		assert.Equal(t, "text/markdown", r.DeclaredMIME)
	})
}
