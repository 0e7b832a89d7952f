package chunking

import (
	"strings"

	"github.com/quarryai/quarry/core"
	"github.com/tmc/langchaingo/textsplitter"
)

// articlePolicy splits web and article text on paragraph boundaries first,
// then merges or splits to respect the same size bounds as the document
// policy. Articles carry no page numbers; title and source platform come
// from the item-level attributes.
type articlePolicy struct {
	splitter textsplitter.RecursiveCharacter
}

var _ Policy = (*articlePolicy)(nil)

func newArticlePolicy(chunkSize, chunkOverlap int) (*articlePolicy, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
		textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", " ", ""}),
	)
	return &articlePolicy{splitter: splitter}, nil
}

func (p *articlePolicy) Name() string { return "article" }

func (p *articlePolicy) Split(item *core.ContentItem) ([]Piece, error) {
	texts := make([]string, 0, len(item.Units))
	for _, unit := range item.Units {
		if unit.Text != "" {
			texts = append(texts, unit.Text)
		}
	}
	if len(texts) == 0 {
		return nil, nil
	}

	parts, err := p.splitter.SplitText(strings.Join(texts, "\n\n"))
	if err != nil {
		return nil, err
	}

	pieces := make([]Piece, 0, len(parts))
	for _, part := range parts {
		pieces = append(pieces, Piece{Text: part, Attributes: map[string]string{}})
	}
	return pieces, nil
}
