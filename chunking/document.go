package chunking

import (
	"strconv"

	"github.com/quarryai/quarry/core"
	"github.com/tmc/langchaingo/textsplitter"
)

// documentPolicy splits paginated text page by page. A chunk never spans
// two pages; each chunk records the 1-based page it originated from.
type documentPolicy struct {
	splitter textsplitter.RecursiveCharacter
}

var _ Policy = (*documentPolicy)(nil)

func newDocumentPolicy(chunkSize, chunkOverlap int) (*documentPolicy, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)
	return &documentPolicy{splitter: splitter}, nil
}

func (p *documentPolicy) Name() string { return "document" }

func (p *documentPolicy) Split(item *core.ContentItem) ([]Piece, error) {
	var pieces []Piece

	for i, unit := range item.Units {
		if unit.Text == "" {
			continue
		}

		page := unit.Page
		if page <= 0 {
			page = i + 1
		}

		parts, err := p.splitter.SplitText(unit.Text)
		if err != nil {
			return nil, err
		}

		for _, part := range parts {
			pieces = append(pieces, Piece{
				Text: part,
				Attributes: map[string]string{
					core.AttrPageNumber: strconv.Itoa(page),
				},
			})
		}
	}

	return pieces, nil
}
