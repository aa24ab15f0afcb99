package relay

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gigroom/gigroom/internal/models"
)

// Color constants for event severity.
const (
	ColorSuccess = "#36a64f"
	ColorInfo    = "#2196f3"
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// severityColor maps a severity string to a sidebar color.
func severityColor(severity string) string {
	switch severity {
	case "success":
		return ColorSuccess
	case "info":
		return ColorInfo
	case "warning":
		return ColorWarning
	case "error":
		return ColorError
	default:
		return ColorInfo
	}
}

// notificationSeverity returns the severity for a notification type.
func notificationSeverity(t models.NotificationType) string {
	switch t {
	case models.NotifyBidAccepted, models.NotifyBookingConfirmed:
		return "success"
	case models.NotifyBidDeclined:
		return "warning"
	default:
		return "info"
	}
}

// NewCard renders a stored notification for the operator channel.
// recipient is the display name of the user it was addressed to. appURL,
// when set, turns the notification's deep link into an absolute link.
func NewCard(n *models.Notification, recipient, appURL string) Card {
	severity := notificationSeverity(n.NotificationType)
	card := Card{
		Kind:     n.NotificationType,
		Title:    n.Title,
		Body:     n.Message,
		Link:     absoluteLink(appURL, n.DeepLink),
		At:       n.CreatedAt,
		Severity: severity,
		Color:    severityColor(severity),
	}

	if recipient != "" {
		card.Fields = append(card.Fields, Field{Name: "Recipient", Value: recipient, Short: true})
	}
	if n.LinkType != "" && n.LinkID != nil {
		card.Fields = append(card.Fields, Field{Name: "Target", Value: fmt.Sprintf("%s #%d", n.LinkType, *n.LinkID), Short: true})
	}

	keys := make([]string, 0, len(n.Data))
	for k := range n.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		card.Fields = append(card.Fields, Field{Name: k, Value: fmt.Sprint(n.Data[k]), Short: true})
	}
	return card
}

// absoluteLink joins an app base URL and an in-app route. Either being
// empty yields "".
func absoluteLink(appURL, route string) string {
	if appURL == "" || route == "" {
		return ""
	}
	return strings.TrimRight(appURL, "/") + "/" + strings.TrimLeft(route, "/")
}
