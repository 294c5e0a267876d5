package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/harune/notify/internal/domain"
)

func TestRenderTemplateSubstitutes(t *testing.T) {
	n := domain.Notification{
		Title:               "Budget revision",
		Message:             "Your proposal was approved by the committee.",
		Type:                domain.NotificationProposalApproved,
		RelatedProposalUUID: strPtr("prop-42"),
	}
	user := domain.User{DisplayName: "Ana"}

	subject, body := RenderTemplate(n, domain.ChannelEmail, user)
	assert.Equal(t, "Proposal approved: Budget revision", subject)
	assert.Contains(t, body, "Hello Ana,")
	assert.Contains(t, body, "approved by the committee")
	assert.Contains(t, body, "Proposal: prop-42")
}

func TestRenderTemplateMissingProposal(t *testing.T) {
	n := domain.Notification{
		Title:   "Budget revision",
		Message: "Approved.",
		Type:    domain.NotificationProposalApproved,
	}

	_, body := RenderTemplate(n, domain.ChannelEmail, domain.User{DisplayName: "Ana"})
	assert.NotContains(t, body, "{{proposal}}")
}

func TestRenderTemplateFallsBackToRawContent(t *testing.T) {
	n := domain.Notification{
		Title:   "Maintenance window",
		Message: "The service restarts at midnight.",
		Type:    domain.NotificationSystemAnnounce,
	}

	// No SMS template exists for announcements.
	subject, body := RenderTemplate(n, domain.ChannelSMS, domain.User{DisplayName: "Ben"})
	assert.Equal(t, n.Title, subject)
	assert.Equal(t, n.Message, body)
}
