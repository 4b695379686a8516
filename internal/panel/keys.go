package panel

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Click     key.Binding
	Double    key.Binding
	Triple    key.Binding
	LongPress key.Binding
	Help      key.Binding
	Quit      key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Click, k.LongPress, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Click, k.Double, k.Triple},
		{k.LongPress, k.Help, k.Quit},
	}
}

func defaultKeyMap() keyMap {
	return keyMap{
		Click: key.NewBinding(
			key.WithKeys(" ", "enter"),
			key.WithHelp("space", "press button"),
		),
		Double: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "double click"),
		),
		Triple: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "triple click"),
		),
		LongPress: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "hold 3s"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more keys"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}
