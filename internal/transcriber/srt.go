package transcriber

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
)

var reSrtTiming = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})[,.](\d{3})\s+-->\s+(\d{2}):(\d{2}):(\d{2})[,.](\d{3})`)

// parseSRT converts SubRip cues into raw segments.
func parseSRT(content string) ([]models.RawSegment, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")

	var segs []models.RawSegment
	for _, block := range strings.Split(content, "\n\n") {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 2 {
			continue
		}

		timingIdx := 0
		if !reSrtTiming.MatchString(lines[0]) {
			timingIdx = 1
		}
		if timingIdx >= len(lines) {
			continue
		}
		m := reSrtTiming.FindStringSubmatch(strings.TrimSpace(lines[timingIdx]))
		if m == nil {
			return nil, fmt.Errorf("malformed srt cue: %q", lines[timingIdx])
		}

		start := srtSeconds(m[1], m[2], m[3], m[4])
		end := srtSeconds(m[5], m[6], m[7], m[8])
		text := strings.TrimSpace(strings.Join(lines[timingIdx+1:], " "))

		segs = append(segs, models.RawSegment{
			Offset:   start,
			Duration: end - start,
			Text:     text,
		})
	}
	return segs, nil
}

func srtSeconds(h, m, s, ms string) float64 {
	hh, _ := strconv.Atoi(h)
	mm, _ := strconv.Atoi(m)
	ss, _ := strconv.Atoi(s)
	mss, _ := strconv.Atoi(ms)
	return float64(hh*3600+mm*60+ss) + float64(mss)/1000
}
