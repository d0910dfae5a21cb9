package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/media"
)

var (
	accent      = lipgloss.Color("#22d3ee")
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

func render(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(accent)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Render()
}

func roomsTable(rooms []domain.RoomSummary) string {
	if len(rooms) == 0 {
		return mutedStyle.Render("No rooms")
	}
	rows := make([][]string, 0, len(rooms))
	for _, r := range rooms {
		rows = append(rows, []string{
			string(r.ID),
			r.Name,
			fmt.Sprintf("%d/%d", r.Count, r.Capacity),
			time.Unix(r.CreatedAt, 0).Format(time.DateTime),
		})
	}
	return render([]string{"ID", "Name", "People", "Created"}, rows)
}

// statsTable lists what each peer sent us, ordered by connection id.
func statsTable(stats map[domain.ConnID]media.SinkStats) string {
	if len(stats) == 0 {
		return mutedStyle.Render("Nothing received")
	}
	peers := make([]domain.ConnID, 0, len(stats))
	for p := range stats {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	rows := make([][]string, 0, len(peers))
	for _, p := range peers {
		st := stats[p]
		rows = append(rows, []string{
			string(p),
			fmt.Sprintf("%d", st.Packets),
			fmt.Sprintf("%d", st.Bytes),
			fmt.Sprintf("%d", st.Lost),
		})
	}
	return render([]string{"Peer", "Packets", "Bytes", "Lost"}, rows)
}
