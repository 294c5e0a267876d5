package service

import (
	"strings"

	"github.com/harune/notify/internal/domain"
)

// channelTemplate is a read-only message template for one
// (notification type, channel) pair. Bodies use {{variable}} placeholders.
type channelTemplate struct {
	Subject string
	Body    string
}

type templateKey struct {
	Type    domain.NotificationType
	Channel domain.Channel
}

// templates are consulted at dispatch time; pairs without an entry fall back
// to the notification's own title and message.
var templates = map[templateKey]channelTemplate{
	{domain.NotificationProposalSubmitted, domain.ChannelEmail}: {
		Subject: "New proposal awaiting review: {{title}}",
		Body:    "Hello {{recipient}},\n\n{{message}}\n\nProposal: {{proposal}}",
	},
	{domain.NotificationProposalApproved, domain.ChannelEmail}: {
		Subject: "Proposal approved: {{title}}",
		Body:    "Hello {{recipient}},\n\n{{message}}\n\nProposal: {{proposal}}",
	},
	{domain.NotificationProposalRejected, domain.ChannelEmail}: {
		Subject: "Proposal rejected: {{title}}",
		Body:    "Hello {{recipient}},\n\n{{message}}\n\nProposal: {{proposal}}",
	},
	{domain.NotificationProposalCommented, domain.ChannelEmail}: {
		Subject: "New comment: {{title}}",
		Body:    "Hello {{recipient}},\n\n{{message}}\n\nProposal: {{proposal}}",
	},
	{domain.NotificationSystemAnnounce, domain.ChannelEmail}: {
		Subject: "{{title}}",
		Body:    "{{message}}",
	},
	{domain.NotificationProposalApproved, domain.ChannelSMS}: {
		Subject: "{{title}}",
		Body:    "{{title}}: {{message}}",
	},
	{domain.NotificationProposalRejected, domain.ChannelSMS}: {
		Subject: "{{title}}",
		Body:    "{{title}}: {{message}}",
	},
}

// RenderTemplate renders the (type, channel) template for a notification,
// substituting placeholder variables. Unknown pairs render the raw title
// and message.
func RenderTemplate(n domain.Notification, ch domain.Channel, user domain.User) (subject, body string) {
	tpl, ok := templates[templateKey{n.Type, ch}]
	if !ok {
		return n.Title, n.Message
	}

	proposal := ""
	if n.RelatedProposalUUID != nil {
		proposal = *n.RelatedProposalUUID
	}
	replacer := strings.NewReplacer(
		"{{title}}", n.Title,
		"{{message}}", n.Message,
		"{{recipient}}", user.DisplayName,
		"{{proposal}}", proposal,
	)
	return replacer.Replace(tpl.Subject), replacer.Replace(tpl.Body)
}
