package session

import (
	"fmt"
	"strings"
	"time"
)

// Thread texts posted while a meeting runs.
const (
	threadContent    = "**Initiator**: %s\n**Start Time**: %s\n**Channel**: %s\n\nParticipant %s joined the meeting."
	joinNotice       = "%s joined the meeting."
	leaveNotice      = "%s left the meeting."
	endedNotice      = "### Meeting Ended\n**Duration**: %s\n**Participants**: %s\n"
	generatingNotice = "Generating meeting summary..."

	transcriptMessage = "Here is the meeting transcript:"
	summaryMessage    = "Here is the final meeting summary:"
	todolistMessage   = "Here is the meeting to-do list:"
)

// formatDuration renders d as H:MM:SS.
func formatDuration(d time.Duration) string {
	s := int(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%d:%02d:%02d", s/3600, (s/60)%60, s%60)
}

func joinNames(names []string) string {
	return strings.Join(names, " ")
}
