package chunking

import (
	"strings"

	"github.com/quarryai/quarry/core"
)

// genericPolicy slides a fixed-size window with overlap over the
// concatenated text of all units. It is the fallback for kinds with no
// dedicated policy, which guarantees every content kind is chunkable.
type genericPolicy struct {
	chunkSize int
	overlap   int
}

var _ Policy = (*genericPolicy)(nil)

func newGenericPolicy(chunkSize, overlap int) *genericPolicy {
	return &genericPolicy{chunkSize: chunkSize, overlap: overlap}
}

func (p *genericPolicy) Name() string { return "generic" }

func (p *genericPolicy) Split(item *core.ContentItem) ([]Piece, error) {
	texts := make([]string, 0, len(item.Units))
	for _, unit := range item.Units {
		if unit.Text != "" {
			texts = append(texts, unit.Text)
		}
	}
	if len(texts) == 0 {
		return nil, nil
	}

	runes := []rune(strings.Join(texts, "\n\n"))
	step := p.chunkSize - p.overlap
	if step < 1 {
		step = 1
	}

	var pieces []Piece
	for start := 0; start < len(runes); start += step {
		end := start + p.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, Piece{
			Text:       string(runes[start:end]),
			Attributes: map[string]string{},
		})
		if end == len(runes) {
			break
		}
	}

	return pieces, nil
}
