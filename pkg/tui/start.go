package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Start runs the terminal view until the user quits or ctx is cancelled.
func Start(ctx context.Context, opts Options) error {
	Version = opts.Version
	m := initialModel(opts)
	defer opts.Watcher.Unsubscribe(m.sub)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("terminal view: %w", err)
	}
	return nil
}
