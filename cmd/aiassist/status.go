package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kalambet/aiassist/internal/poller"
)

var isTerminal = term.IsTerminal

var statusCmd = &cobra.Command{
	Use:   "status <action-id>",
	Short: "Show the status of an action",
	Long: `Show the status of an action.

With --watch the status is polled until the action finishes, fails or is
cancelled. On a terminal a progress bar is shown; otherwise every change is
printed on its own line.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseActionID(args[0])
		if err != nil {
			return err
		}
		watch, _ := cmd.Flags().GetBool("watch")
		interval, _ := cmd.Flags().GetDuration("interval")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if !watch {
			st, err := client.FetchStatus(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatStatus(st))
			if st.Description != "" {
				fmt.Fprintln(cmd.OutOrStdout(), colorize(styleFaint, st.Description))
			}
			return nil
		}

		p := poller.New(client)
		p.Interval = interval

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		if isTerminal(int(os.Stdout.Fd())) {
			return watchTUI(ctx, p, id)
		}
		return watchPlain(ctx, p, id, cmd.OutOrStdout())
	},
}

func init() {
	statusCmd.Flags().Bool("watch", false, "poll until the action reaches a final state")
	statusCmd.Flags().Duration("interval", poller.DefaultInterval, "poll interval for --watch")
}

func formatStatus(s poller.Status) string {
	label := colorize(statusStyle(s.Status), fmt.Sprintf("%-9s", s.Status))
	return fmt.Sprintf("action %d  %s %3d%%  %s", s.ID, label, s.Progress, s.StatusText)
}

func watchPlain(ctx context.Context, p *poller.Poller, id int64, w io.Writer) error {
	final, err := p.Watch(ctx, id, func(s poller.Status) {
		fmt.Fprintln(w, formatStatus(s))
	})
	if err != nil {
		return err
	}
	return outcomeError(final)
}

// outcomeError turns a failed action into a command error so scripts see a
// non-zero exit status.
func outcomeError(s poller.Status) error {
	if s.Status == "error" {
		return fmt.Errorf("action %d failed: %s", s.ID, s.StatusText)
	}
	return nil
}

// --- watch TUI ---

type statusMsg poller.Status

type watchDoneMsg struct {
	final poller.Status
	err   error
}

type watchModel struct {
	id       int64
	bar      progress.Model
	status   poller.Status
	seen     bool
	done     bool
	err      error
	quitting bool
}

func newWatchModel(id int64) watchModel {
	return watchModel{
		id:  id,
		bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

func (m watchModel) Init() tea.Cmd {
	return nil
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-10, 10), 60)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case statusMsg:
		m.status = poller.Status(msg)
		m.seen = true
		return m, nil

	case watchDoneMsg:
		m.done = true
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.final
			m.seen = true
		}
		return m, tea.Quit
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(colorize(styleBold, fmt.Sprintf("Action %d", m.id)))
	if m.status.Description != "" {
		b.WriteString("  " + colorize(styleFaint, m.status.Description))
	}
	b.WriteString("\n\n")

	if !m.seen {
		b.WriteString(colorize(styleFaint, "Waiting for status...") + "\n")
	} else {
		b.WriteString(m.bar.ViewAs(float64(m.status.Progress)/100) + "\n")
		b.WriteString(colorize(statusStyle(m.status.Status), m.status.Status))
		if m.status.StatusText != "" {
			b.WriteString("  " + m.status.StatusText)
		}
		b.WriteString("\n")
	}

	switch {
	case m.err != nil:
		b.WriteString("\n" + colorize(styleError, "✗ "+m.err.Error()) + "\n")
	case !m.done && !m.quitting:
		b.WriteString("\n" + colorize(styleFaint, "q: stop watching (the action keeps running)") + "\n")
	}
	return b.String()
}

func watchTUI(ctx context.Context, p *poller.Poller, id int64) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog := tea.NewProgram(newWatchModel(id))
	go func() {
		final, err := p.Watch(ctx, id, func(s poller.Status) {
			prog.Send(statusMsg(s))
		})
		if ctx.Err() != nil {
			err = nil
		}
		prog.Send(watchDoneMsg{final: final, err: err})
	}()

	res, err := prog.Run()
	cancel()
	if err != nil {
		return fmt.Errorf("running status view: %w", err)
	}

	m := res.(watchModel)
	if m.quitting {
		return nil
	}
	if m.err != nil {
		return m.err
	}
	return outcomeError(m.status)
}
