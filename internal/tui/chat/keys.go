package chat

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Send        key.Binding
	Newline     key.Binding
	SendOrStop  key.Binding
	Stop        key.Binding
	NewChat     key.Binding
	Delete      key.Binding
	SwitchFocus key.Binding
	Up          key.Binding
	Down        key.Binding
	Filter      key.Binding
	Quit        key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Send: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Newline: key.NewBinding(
			// Terminals report shift+enter as a plain enter.
			key.WithKeys("alt+enter", "ctrl+j"),
			key.WithHelp("alt+enter/ctrl+j", "newline"),
		),
		SendOrStop: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "send/stop"),
		),
		Stop: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "stop"),
		),
		NewChat: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("ctrl+n", "new chat"),
		),
		Delete: key.NewBinding(
			key.WithKeys("ctrl+d"),
			key.WithHelp("ctrl+d", "delete chat"),
		),
		SwitchFocus: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "switch pane"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
		),
		Filter: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "filter"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
}

// helpLine renders the bindings shown in the status bar.
func (k keyMap) helpLine(bindings ...key.Binding) string {
	var out string
	for i, b := range bindings {
		if i > 0 {
			out += " · "
		}
		h := b.Help()
		out += h.Key + " " + h.Desc
	}
	return out
}
