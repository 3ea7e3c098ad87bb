package main

import (
	"fmt"
	"strings"

	"discussion-facilitator/backend/conversation/models"
	"discussion-facilitator/backend/conversation/service"

	"github.com/charmbracelet/lipgloss"
)

func renderMessages(msgs []models.Message, self, facilitatorID string, theme uiTheme, width int) string {
	if len(msgs) == 0 {
		return theme.muted.Render("No messages yet. Start the discussion!")
	}

	wrap := lipgloss.NewStyle()
	if width > 0 {
		wrap = wrap.Width(width)
	}

	var b strings.Builder
	for i, msg := range msgs {
		authorStyle := theme.other
		switch {
		case service.IsFacilitator(msg.Author, facilitatorID):
			authorStyle = theme.facilitator
		case msg.Author == self:
			authorStyle = theme.self
		}
		line := fmt.Sprintf("%s %s %s",
			theme.timestamp.Render(msg.CreatedAt.Local().Format("15:04")),
			authorStyle.Render(msg.Author+":"),
			msg.Content,
		)
		b.WriteString(wrap.Render(line))
		if i < len(msgs)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func renderSidebar(p *service.Participants, theme uiTheme) string {
	if p == nil {
		return theme.muted.Render("loading...")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active members: %d\n", p.Count)
	for _, member := range p.Members {
		b.WriteString("  • " + member + "\n")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Messages: %d\n", p.HumanMessages)
	if p.Facilitator {
		fmt.Fprintf(&b, "Facilitator at: %d\n", p.NextCrossing)
	} else {
		b.WriteString(theme.muted.Render("Facilitator off") + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m model) View() string {
	if m.screen == screenName {
		return m.viewName()
	}

	title := m.theme.header.Render("Chat · " + m.username)
	topic := ""
	if m.participants != nil && m.participants.Topic != "" {
		topic = m.theme.topic.Render("Topic: " + m.participants.Topic)
	}

	timeline := m.theme.panel.Render(m.timeline.View())
	sidebar := m.theme.sidebar.
		Width(sidebarWidth - 4).
		Height(m.timeline.Height).
		Render(renderSidebar(m.participants, m.theme))
	body := lipgloss.JoinHorizontal(lipgloss.Top, timeline, sidebar)

	input := m.theme.inputPanel.Render(m.input.View())

	status := m.theme.status.Render(m.statusLine)
	if m.statusErr {
		status = m.theme.errorStatus.Render("⚠ " + m.statusLine)
	}
	if m.sending {
		status = m.spinner.View() + " " + status
	}

	footer := m.theme.footer.Render("enter send · ctrl+x clear · ctrl+e export · pgup/pgdown scroll · ctrl+c quit")

	return lipgloss.JoinVertical(lipgloss.Left, title, topic, body, input, status, footer)
}

func (m model) viewName() string {
	status := m.theme.status.Render(m.statusLine)
	if m.statusErr {
		status = m.theme.errorStatus.Render("⚠ " + m.statusLine)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.theme.header.Render("Join the discussion"),
		m.theme.inputPanel.Render(m.input.View()),
		status,
		m.theme.footer.Render("enter join · ctrl+c quit"),
	)
}
