package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// RoomRow is one line of the rooms listing.
type RoomRow struct {
	RoomID  string
	Members int
}

// RoomsView renders the relay's live rooms.
func RoomsView(rows []RoomRow) string {
	if len(rows) == 0 {
		return MutedStyle.Render("No active rooms")
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatUpper
	t.AppendHeader(table.Row{"#", "Room", "Members"})

	total := 0
	for i, r := range rows {
		t.AppendRow(table.Row{i + 1, r.RoomID, r.Members})
		total += r.Members
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d rooms", len(rows)), total})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})

	return t.Render()
}

// SessionSummaryView renders the totals shown after leaving a room.
func SessionSummaryView(roomID string, stats ChatStats) string {
	rows := [][]string{
		{"Room", roomID},
		{"Peers met", fmt.Sprintf("%d", stats.PeersSeen)},
		{"Messages sent", fmt.Sprintf("%d", stats.Sent)},
		{"Messages received", fmt.Sprintf("%d", stats.Received)},
		{"Duration", stats.Duration.Round(time.Second).String()},
	}

	tbl := lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Metric", "Value").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == lgtable.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return TitleStyle.Render("Session summary") + "\n" + tbl.Render()
}
