package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Select   key.Binding
	Channel  key.Binding
	Pin      key.Binding
	Install  key.Binding
	Flash    key.Binding
	Menu     key.Binding
	Relocate key.Binding
	Activity key.Binding
	Filter   key.Binding
	Clear    key.Binding
	Copy     key.Binding
	Update   key.Binding
	Refresh  key.Binding
	Dismiss  key.Binding
	Help     key.Binding
	Quit     key.Binding

	// Modals
	Ack         key.Binding
	AckRelocate key.Binding
	Confirm     key.Binding
	Cancel      key.Binding
	Browse      key.Binding
	UseDir      key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Select:   key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "use profile")),
		Channel:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "channel")),
		Pin:      key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "pin tag")),
		Install:  key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "install")),
		Flash:    key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "flash")),
		Menu:     key.NewBinding(key.WithKeys("m"), key.WithHelp("m/right-click", "menu")),
		Relocate: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "relocate")),
		Activity: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "activity")),
		Filter:   key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "filter")),
		Clear:    key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "clear log")),
		Copy:     key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy log")),
		Update:   key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "app update")),
		Refresh:  key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "refresh")),
		Dismiss:  key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "dismiss error")),
		Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),

		Ack:         key.NewBinding(key.WithKeys(" ", "tab"), key.WithHelp("space/tab", "acknowledge")),
		AckRelocate: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "acknowledge")),
		Confirm:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "confirm")),
		Cancel:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		Browse:      key.NewBinding(key.WithKeys("ctrl+o"), key.WithHelp("ctrl+o", "browse")),
		UseDir:      key.NewBinding(key.WithKeys("."), key.WithHelp(".", "use this folder")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Select, k.Install, k.Flash, k.Channel, k.Activity, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Select, k.Menu},
		{k.Channel, k.Pin, k.Install, k.Flash, k.Relocate},
		{k.Activity, k.Filter, k.Clear, k.Copy},
		{k.Update, k.Refresh, k.Dismiss, k.Help, k.Quit},
	}
}
