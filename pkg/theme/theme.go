// Package theme provides the colour palettes and lipgloss styles used by the
// cortex CLI when rendering status and the movement catalogue.
package theme

import (
	"sort"

	"github.com/charmbracelet/lipgloss"
)

// DefaultID is the palette used when none or an unknown one is requested.
const DefaultID = "midnight"

// Palette defines a semantic colour set. All colours are hex codes.
type Palette struct {
	Name      string
	ID        string
	Border    string
	Primary   string // titles, headers
	Secondary string // labels
	Success   string
	Warning   string
	Error     string
	Muted     string // durations, unavailable entries
}

// Registry holds the available palettes.
var Registry = map[string]Palette{
	// Midnight - GitHub Dark inspired
	"midnight": {
		Name:      "Midnight",
		ID:        "midnight",
		Border:    "#30363d",
		Primary:   "#58a6ff",
		Secondary: "#8b949e",
		Success:   "#3fb950",
		Warning:   "#d29922",
		Error:     "#f85149",
		Muted:     "#484f58",
	},
	// Obsidian - monochrome, red kept for errors
	"obsidian": {
		Name:      "Obsidian",
		ID:        "obsidian",
		Border:    "#404040",
		Primary:   "#ffffff",
		Secondary: "#a0a0a0",
		Success:   "#b0b0b0",
		Warning:   "#d0d0d0",
		Error:     "#ff6b6b",
		Muted:     "#606060",
	},
	// Daylight - for light terminals
	"daylight": {
		Name:      "Daylight",
		ID:        "daylight",
		Border:    "#d0d7de",
		Primary:   "#0969da",
		Secondary: "#57606a",
		Success:   "#1a7f37",
		Warning:   "#9a6700",
		Error:     "#cf222e",
		Muted:     "#8c959f",
	},
}

// Get returns the palette with id, falling back to DefaultID.
func Get(id string) Palette {
	if p, ok := Registry[id]; ok {
		return p
	}
	return Registry[DefaultID]
}

// IDs lists the registered palette ids, sorted.
func IDs() []string {
	ids := make([]string, 0, len(Registry))
	for id := range Registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Styles are the lipgloss styles derived from a palette.
type Styles struct {
	Title  lipgloss.Style
	Header lipgloss.Style
	Label  lipgloss.Style
	OK     lipgloss.Style
	Warn   lipgloss.Style
	Bad    lipgloss.Style
	Muted  lipgloss.Style
	Box    lipgloss.Style
}

// NewStyles builds the CLI styles for p.
func NewStyles(p Palette) Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.Primary)),
		Header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.Primary)).MarginTop(1),
		Label:  lipgloss.NewStyle().Foreground(lipgloss.Color(p.Secondary)),
		OK:     lipgloss.NewStyle().Foreground(lipgloss.Color(p.Success)),
		Warn:   lipgloss.NewStyle().Foreground(lipgloss.Color(p.Warning)),
		Bad:    lipgloss.NewStyle().Foreground(lipgloss.Color(p.Error)).Bold(true),
		Muted:  lipgloss.NewStyle().Foreground(lipgloss.Color(p.Muted)),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(p.Border)).
			Padding(0, 1),
	}
}
