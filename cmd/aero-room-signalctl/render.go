package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/presence"
	"github.com/wilsonzlin/aero/proxy/room-signaling/internal/protocol"
)

var (
	accent = lipgloss.Color("#22d3ee")
	muted  = lipgloss.Color("#6B7280")

	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1)
	rowStyle     = lipgloss.NewStyle().Padding(0, 1)
	rowAltStyle  = rowStyle.Foreground(lipgloss.Color("#D1D5DB"))
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	labelStyle   = lipgloss.NewStyle().Bold(true).Foreground(accent)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))
	summaryStyle = lipgloss.NewStyle().Bold(true)
)

func renderStats(stats presence.Stats) string {
	summary := summaryStyle.Render(fmt.Sprintf("%d rooms, %d peers", stats.Rooms, stats.TotalPeers))
	if len(stats.RoomDetails) == 0 {
		return summary + "\n" + mutedStyle.Render("No rooms")
	}

	rooms := make([]string, 0, len(stats.RoomDetails))
	for id := range stats.RoomDetails {
		rooms = append(rooms, id)
	}
	sort.Strings(rooms)

	rows := make([][]string, 0, len(rooms))
	for _, id := range rooms {
		d := stats.RoomDetails[id]
		rows = append(rows, []string{id, fmt.Sprintf("%d", d.Count), strings.Join(d.Peers, ", ")})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(accent)).
		Headers("Room", "Peers", "Peer IDs").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row%2 == 0:
				return rowStyle
			default:
				return rowAltStyle
			}
		})

	return summary + "\n" + tbl.Render()
}

func renderEvent(msg protocol.ServerMessage) string {
	switch msg.Type {
	case protocol.TypePeers:
		if len(msg.Peers) == 0 {
			return labelStyle.Render("peers") + " " + mutedStyle.Render("(none)")
		}
		return labelStyle.Render("peers") + " " + strings.Join(msg.Peers, ", ")
	case protocol.TypeSignal:
		payload := string(msg.Signal)
		if payload == "" {
			payload = mutedStyle.Render("(no payload)")
		}
		return labelStyle.Render("signal") + " from " + msg.PeerID + ": " + payload
	default:
		return labelStyle.Render(string(msg.Type)) + " " + msg.PeerID
	}
}
