package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/mattermost/mattermost-plugin-sosconsole/server/alert"
	"github.com/mattermost/mattermost-plugin-sosconsole/server/hashtag"
)

// Status colors
const (
	ColorOpen       = "#FF0000" // Red 🔴
	ColorDispatched = "#FF9900" // Orange 🟠
	ColorResolved   = "#3DB887" // Green 🟢
	ColorTest       = "#808080" // Gray ⚪
)

// MapsURL is the link template for alert coordinates.
const MapsURL = "https://www.google.com/maps/search/?api=1&query=%.6f,%.6f"

// FormatAlert converts a normalized alert into a Mattermost SlackAttachment.
func FormatAlert(a alert.Alert, source string) *model.SlackAttachment {
	attachment := &model.SlackAttachment{
		Text:  fmt.Sprintf("#### NEW SOS FROM: %s\n%s", a.Phone, hashtag.Generate(a)),
		Color: alertColor(a),
	}

	fields := []*model.SlackAttachmentField{
		{
			Title: "Time",
			Value: formatTime(a.OccurredAt),
			Short: true,
		},
		{
			Title: "Status",
			Value: strings.ToUpper(string(a.Status)),
			Short: true,
		},
	}

	if a.Coordinates != nil {
		fields = append(fields, &model.SlackAttachmentField{
			Title: "Location",
			Value: formatCoordinates(*a.Coordinates),
			Short: false,
		})
	} else {
		fields = append(fields, &model.SlackAttachmentField{
			Title: "Location",
			Value: "Not reported",
			Short: false,
		})
	}

	if a.IsTest {
		fields = append(fields, &model.SlackAttachmentField{
			Title: "Test",
			Value: "Simulated alert, no action required",
			Short: false,
		})
	}

	attachment.Fields = fields
	attachment.Footer = fmt.Sprintf("%s | %s", source, a.ID)

	return attachment
}

func alertColor(a alert.Alert) string {
	if a.IsTest {
		return ColorTest
	}
	switch a.Status {
	case alert.StatusDispatched:
		return ColorDispatched
	case alert.StatusResolved:
		return ColorResolved
	default:
		return ColorOpen
	}
}

// formatTime formats a time.Time to a readable string
func formatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05 MST")
}

// formatCoordinates renders the pair with a map link.
func formatCoordinates(c alert.Coordinates) string {
	return fmt.Sprintf("[%.6f, %.6f](%s)", c.Lat, c.Lng, fmt.Sprintf(MapsURL, c.Lat, c.Lng))
}
