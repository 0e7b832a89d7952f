package chunking

import (
	"strconv"
	"strings"

	"github.com/quarryai/quarry/core"
)

// mediaPolicy groups consecutive transcript segments into fixed time
// windows. A window never merges segments separated by a gap at or above
// the boundary threshold; such gaps are treated as scene or topic breaks.
type mediaPolicy struct {
	window      float64 // max window length in seconds
	gapBoundary float64 // gap treated as a scene boundary, seconds
}

var _ Policy = (*mediaPolicy)(nil)

func newMediaPolicy(window, gapBoundary float64) *mediaPolicy {
	return &mediaPolicy{window: window, gapBoundary: gapBoundary}
}

func (p *mediaPolicy) Name() string { return "media" }

func (p *mediaPolicy) Split(item *core.ContentItem) ([]Piece, error) {
	var pieces []Piece

	var texts []string
	var windowStart, windowEnd float64
	open := false

	flush := func() {
		if !open {
			return
		}
		pieces = append(pieces, timedPiece(strings.Join(texts, " "), windowStart, windowEnd))
		texts = nil
		open = false
	}

	for _, unit := range item.Units {
		if unit.Text == "" {
			continue
		}

		if !unit.Timed() {
			// Untimed segments in a media transcript stand alone.
			flush()
			pieces = append(pieces, Piece{Text: unit.Text, Attributes: map[string]string{}})
			continue
		}

		if open {
			gap := unit.StartTime - windowEnd
			exceedsWindow := unit.EndTime-windowStart > p.window
			if gap >= p.gapBoundary || exceedsWindow {
				flush()
			}
		}

		if !open {
			windowStart = unit.StartTime
			open = true
		}
		windowEnd = unit.EndTime
		texts = append(texts, unit.Text)
	}

	flush()
	return pieces, nil
}

func timedPiece(text string, start, end float64) Piece {
	return Piece{
		Text: text,
		Attributes: map[string]string{
			core.AttrStartTime: strconv.FormatFloat(start, 'f', -1, 64),
			core.AttrEndTime:   strconv.FormatFloat(end, 'f', -1, 64),
		},
	}
}
