package ui

import (
	"github.com/charmbracelet/lipgloss"
)

var styles = NewPalette(Colors{
	Accent:  "#1DB954",
	Success: "#04B575",
	Error:   "#FF5F5F",
	Warning: "#FFA500",
	Muted:   "#626262",
})

// Colors names the hex foregrounds a [Palette] is derived from.
type Colors struct {
	Accent  string
	Success string
	Error   string
	Warning string
	Muted   string
}

// struct Palette is the now-playing stylesheet
type Palette struct {
	title   lipgloss.Style
	track   lipgloss.Style
	playing lipgloss.Style // state glyph while playing
	paused  lipgloss.Style
	bar     lipgloss.Style
	ok      lipgloss.Style
	err     lipgloss.Style
	warn    lipgloss.Style // guidance and the browse banner
	help    lipgloss.Style
}

func NewPalette(c Colors) *Palette {
	return &Palette{
		title:   NewBold(c.Accent).MarginBottom(1),
		track:   lipgloss.NewStyle().Bold(true),
		playing: NewBold(c.Accent),
		paused:  NewStyle(c.Muted),
		bar:     NewStyle(c.Accent),
		ok:      NewBold(c.Success),
		err:     NewBold(c.Error),
		warn:    NewStyle(c.Warning),
		help:    NewEm(c.Muted),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}
