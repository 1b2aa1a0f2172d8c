package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	toggle     key.Binding
	next       key.Binding
	previous   key.Binding
	forward    key.Binding
	rewind     key.Binding
	shuffle    key.Binding
	repeat     key.Binding
	volumeUp   key.Binding
	volumeDown key.Binding
	activate   key.Binding
	devices    key.Binding
	sync       key.Binding
	back       key.Binding
	help       key.Binding
	quit       key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		toggle:     key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "play/pause")),
		next:       key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next")),
		previous:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "previous")),
		forward:    key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "+10s")),
		rewind:     key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "-10s")),
		shuffle:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "shuffle")),
		repeat:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "repeat")),
		volumeUp:   key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "volume up")),
		volumeDown: key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "volume down")),
		activate:   key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "check device")),
		devices:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "devices")),
		sync:       key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "sync")),
		back:       key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.toggle, k.next, k.previous, k.activate, k.help, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.toggle, k.next, k.previous, k.forward, k.rewind},
		{k.shuffle, k.repeat, k.volumeUp, k.volumeDown},
		{k.activate, k.devices, k.sync, k.back},
		{k.help, k.quit},
	}
}
