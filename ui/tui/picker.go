package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

type pickResult struct {
	path string
	ok   bool
}

type pickRequest struct {
	start string
	reply chan pickResult
}

type pickRequestMsg pickRequest

// FolderPicker answers the dashboard's folder requests with the TUI's file
// browser. PickFolder blocks until the user picks or cancels.
type FolderPicker struct {
	requests chan pickRequest
}

func NewFolderPicker() *FolderPicker {
	return &FolderPicker{requests: make(chan pickRequest)}
}

func (p *FolderPicker) PickFolder(ctx context.Context, start string) (string, bool, error) {
	req := pickRequest{start: start, reply: make(chan pickResult, 1)}
	select {
	case p.requests <- req:
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res.path, res.ok, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

func waitForPick(p *FolderPicker) tea.Cmd {
	if p == nil {
		return nil
	}
	return func() tea.Msg {
		return pickRequestMsg(<-p.requests)
	}
}
