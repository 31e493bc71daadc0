package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
	"github.com/nguyentantai21042004/meeting-recorder/internal/voice"
)

const timelineLayout = "2006-01-02 15:04:05"

type partSegments struct {
	index    int
	segments []models.RawSegment
}

// mergeTimeline places every segment at anchor + offset + partIndex*maxSegment
// and sorts the result. The anchor is the speaker's join time, or start when
// unknown, but never earlier than recordedFrom: audio of members who joined
// before the worker was bound starts when the recording did. Segments with
// equal timestamps keep speaker, part and segment order.
func mergeTimeline(
	transcripts map[string][]partSegments,
	joinTimes map[string]time.Time,
	start, recordedFrom time.Time,
	maxSegment time.Duration,
	dir voice.Directory,
) []models.TranscriptSegment {
	var out []models.TranscriptSegment
	for _, speaker := range sortedKeys(transcripts) {
		base, ok := joinTimes[speaker]
		if !ok || base.IsZero() {
			base = start
		}
		if recordedFrom.After(base) {
			base = recordedFrom
		}
		name := speaker
		if dir != nil {
			if n, ok := dir.DisplayName(speaker); ok && n != "" {
				name = n
			}
		}

		parts := append([]partSegments(nil), transcripts[speaker]...)
		sort.SliceStable(parts, func(i, j int) bool { return parts[i].index < parts[j].index })

		for _, part := range parts {
			partStart := base.Add(time.Duration(part.index) * maxSegment)
			for _, seg := range part.segments {
				text := strings.TrimSpace(seg.Text)
				if text == "" {
					continue
				}
				out = append(out, models.TranscriptSegment{
					SpeakerID: speaker,
					Speaker:   name,
					Timestamp: partStart.Add(time.Duration(seg.Offset * float64(time.Second))),
					Text:      text,
				})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// formatTranscript renders one "[time] speaker: text" line per segment.
func formatTranscript(segs []models.TranscriptSegment) string {
	var b strings.Builder
	for i, s := range segs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s] %s: %s", s.Timestamp.Format(timelineLayout), s.Speaker, s.Text)
	}
	return b.String()
}
