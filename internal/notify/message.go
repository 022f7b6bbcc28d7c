package notify

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgnsrekt/flex-integration/internal/bulk"
	"github.com/dgnsrekt/flex-integration/internal/events"
)

// FormatNotificationTitle creates the push title for a listing notification.
func FormatNotificationTitle(n events.Notification) string {
	switch n.Kind {
	case events.KindPendingApproval:
		return "Listing pending approval"
	case events.KindApproved:
		return "Listing approved"
	case events.KindPublished:
		return "Listing published"
	default:
		return "Listing event"
	}
}

// FormatSuccessMessage creates a bulk success notification body.
func FormatSuccessMessage(result *bulk.Result) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Total: %d jobs\n", result.Planned))
	sb.WriteString(fmt.Sprintf("Completed: %d\n", result.Completed()))
	sb.WriteString(fmt.Sprintf("Rate limited: %d\n", result.Retries))
	sb.WriteString(fmt.Sprintf("Duration: %s", result.Duration.Round(time.Second)))

	return sb.String()
}

// FormatFailureMessage creates a bulk failure notification body. It names the
// blocking job so an operator knows where to resume.
func FormatFailureMessage(result *bulk.Result, err error) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Total: %d jobs\n", result.Planned))
	sb.WriteString(fmt.Sprintf("Completed: %d\n", result.Completed()))
	sb.WriteString(fmt.Sprintf("Not run: %d\n", result.Planned-result.Completed()))
	sb.WriteString(fmt.Sprintf("Rate limited: %d\n", result.Retries))
	sb.WriteString(fmt.Sprintf("Duration: %s", result.Duration.Round(time.Second)))

	var jerr *bulk.JobError
	if errors.As(err, &jerr) {
		sb.WriteString(fmt.Sprintf("\n\nBlocked at job %d: %s", jerr.Index+1, jerr.Name))
	}
	if err != nil {
		sb.WriteString(fmt.Sprintf("\n\nError: %v", err))
	}

	return sb.String()
}
