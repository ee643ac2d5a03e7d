package status

import (
	"github.com/bnema/steam-accounts-cli/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

type styles struct {
	title   lipgloss.Style
	header  lipgloss.Style
	account lipgloss.Style
	label   lipgloss.Style
	detail  lipgloss.Style
	ok      lipgloss.Style
	warning lipgloss.Style
	section lipgloss.Style
	empty   lipgloss.Style
	states  map[domain.ConnectionState]lipgloss.Style
}

func newStyles() styles {
	badge := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	return styles{
		title:   lipgloss.NewStyle().Bold(true),
		header:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		account: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		label:   lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		detail:  lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		ok:      lipgloss.NewStyle().Foreground(lipgloss.Color("114")),
		warning: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		section: lipgloss.NewStyle().MarginTop(1),
		empty:   lipgloss.NewStyle().Faint(true),
		states: map[domain.ConnectionState]lipgloss.Style{
			domain.StateReady:          badge.Foreground(lipgloss.Color("114")),
			domain.StateConnected:      badge.Foreground(lipgloss.Color("221")),
			domain.StateAuthenticating: badge.Foreground(lipgloss.Color("75")),
			domain.StateDisconnected:   badge.Foreground(lipgloss.Color("203")),
		},
	}
}

func (s styles) state(state domain.ConnectionState) lipgloss.Style {
	if style, ok := s.states[state]; ok {
		return style
	}
	return s.detail
}
