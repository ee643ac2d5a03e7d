package status

import (
	"fmt"
	"strings"

	"github.com/bnema/steam-accounts-cli/internal/application"
	"github.com/bnema/steam-accounts-cli/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

type RenderOptions struct {
	// Account and Addr label the session being shown; both are optional.
	Account string
	Addr    string
}

func RenderSession(status application.Status, opts RenderOptions) (string, error) {
	return run(func(s styles) string {
		return renderSession(status, opts, s)
	})
}

func RenderAccounts(accounts []domain.Account) (string, error) {
	return run(func(s styles) string {
		return renderAccounts(accounts, s)
	})
}

func RenderAcceptResult(result application.AcceptResult) (string, error) {
	return run(func(s styles) string {
		return renderAcceptResult(result, s)
	})
}

func renderSession(status application.Status, opts RenderOptions, s styles) string {
	lines := []string{s.title.Render("Steam Session")}

	var meta []string
	if opts.Account != "" {
		meta = append(meta, "account: "+opts.Account)
	}
	if opts.Addr != "" {
		meta = append(meta, "control: "+opts.Addr)
	}
	if len(meta) > 0 {
		lines = append(lines, s.header.Render(strings.Join(meta, "  ")))
	}

	state := status.State
	if state == "" {
		state = domain.StateDisconnected
	}
	stateLine := lipgloss.JoinHorizontal(lipgloss.Top,
		s.label.Render("state:"),
		" ",
		s.state(state).Render(string(state)),
	)

	body := []string{stateLine}
	if !status.Connected {
		body = append(body, s.warning.Render("not connected"))
	} else {
		body = append(body,
			countLine("friends:", status.FriendsCount, s.detail, s),
			countLine("pending requests:", status.PendingRequests, pendingStyle(status.PendingRequests, s), s),
		)
	}

	lines = append(lines, s.section.Render(lipgloss.JoinVertical(lipgloss.Left, body...)))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func pendingStyle(pending int, s styles) lipgloss.Style {
	if pending > 0 {
		return s.warning
	}
	return s.ok
}

func countLine(label string, count int, style lipgloss.Style, s styles) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, s.label.Render(label), " ", style.Render(fmt.Sprintf("%d", count)))
}

func renderAccounts(accounts []domain.Account, s styles) string {
	lines := []string{
		s.title.Render("Steam Accounts"),
		s.header.Render(fmt.Sprintf("accounts: %d", len(accounts))),
	}

	if len(accounts) == 0 {
		lines = append(lines, s.empty.Render("No accounts configured. Add one with `sa account add`."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, account := range accounts {
		lines = append(lines, s.section.Render(renderAccount(account, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderAccount(account domain.Account, s styles) string {
	password := s.warning.Render("missing")
	if account.Auth.PasswordRef != "" {
		password = s.ok.Render("set")
	}

	guard := s.detail.Render("manual code")
	if account.Auth.SharedSecretRef != "" {
		guard = s.ok.Render("shared secret")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		s.account.Render(accountTitle(account)),
		s.detail.Render("login: "+account.LoginName),
		lipgloss.JoinHorizontal(lipgloss.Top, s.label.Render("password: "), password),
		lipgloss.JoinHorizontal(lipgloss.Top, s.label.Render("guard: "), guard),
	)
}

func accountTitle(account domain.Account) string {
	name := strings.TrimSpace(account.Name)
	if name == "" || name == string(account.ID) {
		return string(account.ID)
	}
	return fmt.Sprintf("%s (%s)", name, account.ID)
}

func renderAcceptResult(result application.AcceptResult, s styles) string {
	lines := []string{
		s.title.Render("Friend Requests"),
		countLine("accepted:", result.Accepted, s.ok, s),
	}

	if len(result.Failed) == 0 {
		if result.Accepted == 0 {
			lines = append(lines, s.empty.Render("No pending requests."))
		}
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	lines = append(lines, countLine("failed:", len(result.Failed), s.warning, s))
	for _, failure := range result.Failed {
		reason := "unknown error"
		if failure.Err != nil {
			reason = failure.Err.Error()
		}
		lines = append(lines, s.detail.Render(fmt.Sprintf("  %s: %s", failure.Peer, reason)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
