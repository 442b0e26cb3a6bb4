package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/abennett/grimoire/pkg/client"
	"github.com/abennett/grimoire/pkg/messages"
)

var baseStyle = lipgloss.NewStyle().
	BorderStyle(lipgloss.NormalBorder()).
	Align(lipgloss.Center)

var columns = []table.Column{
	{Title: "User", Width: 10},
	{Title: "Action", Width: 14},
	{Title: "Result", Width: 6},
	{Title: "Done", Width: 6},
}

type tui struct {
	client *client.Client
	table  table.Model
}

func newTUI(c *client.Client) (*tui, error) {
	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(0),
		table.WithFocused(false),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.Foreground(lipgloss.Color("#01c5d1"))
	s.Selected = s.Selected.Foreground(lipgloss.NoColor{}).Bold(false)
	t.SetStyles(s)
	return &tui{
		client: c,
		table:  t,
	}, nil
}

func (t *tui) Init() tea.Cmd {
	err := t.client.Init()
	if err != nil {
		panic(err)
	}
	return func() tea.Msg {
		return t.client.ReadUpdate()
	}
}

func resultsToRows(results []messages.EvalResult) []table.Row {
	rows := make([]table.Row, len(results))
	for idx, result := range results {
		done := ""
		if result.IsDone {
			done = "✅"
		}
		rows[idx] = table.Row{
			result.User,
			result.Action,
			strconv.Itoa(result.Result.FinalResult),
			done,
		}
	}
	return rows
}

func (t *tui) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case []messages.EvalResult:
		slog.Debug("roll result")
		t.table.SetHeight(len(msg) + 1)
		t.table.SetRows(resultsToRows(msg))
		for _, result := range msg {
			if !result.IsDone {
				return t, func() tea.Msg {
					return t.client.ReadUpdate()
				}
			}
		}
		return t, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			err := t.client.Close()
			if err != nil {
				slog.Error("failed to close client", "error", err)
			}
			return t, tea.Quit

		// Attempt to toggle this user's done flag
		case " ":
			err := t.client.ToggleDone()
			if err != nil {
				panic(err)
			}
		}
	case error:
		slog.Error("exiting for error", "error", msg)
		return t, tea.Quit
	default:
		slog.Debug("unsupported message", "msg", msg)
	}
	slog.Debug("no update")
	return t, nil
}

func (t *tui) View() string {
	slog.Debug("rerendering view")
	return baseStyle.Render(t.table.View()) + "\n"
}

func rollRemote(_ context.Context, args []string) error {
	if len(args) < 6 {
		return flag.ErrHelp
	}
	req := messages.EvalRequest{
		User:        args[2],
		Action:      args[3],
		WeaponRank:  args[4],
		MasteryRank: args[5],
	}
	if len(args) > 6 {
		bonus, err := strconv.Atoi(args[6])
		if err != nil {
			return err
		}
		req.OtherBonus = bonus
	}

	c, err := client.New(args[0], args[1], req, io.Discard)
	if err != nil {
		return err
	}
	ui, err := newTUI(c)
	if err != nil {
		return err
	}

	_, err = tea.NewProgram(ui).Run()
	return err
}
