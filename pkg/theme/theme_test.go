package theme

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestGetFallsBackToDefault(t *testing.T) {
	assert.Equal(t, "obsidian", Get("obsidian").ID)
	assert.Equal(t, DefaultID, Get("").ID)
	assert.Equal(t, DefaultID, Get("solarized").ID)
}

func TestRegistryComplete(t *testing.T) {
	assert.Equal(t, []string{"daylight", "midnight", "obsidian"}, IDs())
	for id, p := range Registry {
		assert.Equal(t, id, p.ID)
		for _, c := range []string{p.Border, p.Primary, p.Secondary, p.Success, p.Warning, p.Error, p.Muted} {
			assert.Regexp(t, `^#[0-9a-f]{6}$`, c, "palette %s", id)
		}
	}
}

func TestNewStyles(t *testing.T) {
	p := Get("midnight")
	s := NewStyles(p)
	assert.Equal(t, lipgloss.Color(p.Error), s.Bad.GetForeground())
	assert.True(t, s.Bad.GetBold())
	assert.Equal(t, lipgloss.Color(p.Border), s.Box.GetBorderTopForeground())
}
