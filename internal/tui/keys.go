package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the key bindings for the live view. It implements the
// help.KeyMap interface for the footer help line.
type keyMap struct {
	Quit   key.Binding
	Pause  key.Binding
	Layout key.Binding
}

// ShortHelp returns the bindings shown in the footer.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.Layout, k.Quit}
}

// FullHelp returns the expanded binding groups.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Pause, k.Layout, k.Quit}}
}

// keys holds the default key bindings.
var keys = keyMap{
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Pause:  key.NewBinding(key.WithKeys("p", " "), key.WithHelp("p", "pause")),
	Layout: key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "layout")),
}
