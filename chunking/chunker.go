// Copyright 2025 Quarry AI
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package chunking converts parsed content items into ordered lists of
// content chunks. The splitting policy is selected from the item's kind
// through an explicit strategy table; kinds without a dedicated policy fall
// back to a generic sliding-window split, so every kind is chunkable.
package chunking

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/quarryai/quarry/config"
	"github.com/quarryai/quarry/core"
)

// Piece is an intermediate split fragment produced by a policy before
// sequence indexes and IDs are assigned.
type Piece struct {
	Text       string
	Attributes map[string]string
}

// Policy splits one content item into ordered pieces.
// Policies are pure: they never mutate the item and carry provenance
// (page numbers, time windows) into piece attributes.
type Policy interface {
	// Name identifies the policy in logs.
	Name() string

	// Split returns the ordered pieces of the item.
	Split(item *core.ContentItem) ([]Piece, error)
}

// Chunker selects a splitting policy by content kind and assembles the
// resulting chunks.
type Chunker struct {
	policies map[core.ContentKind]Policy
	fallback Policy
	logger   *slog.Logger
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chunker) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewChunker creates a chunker with the standard policy table:
// document and note → page splitter, audio/video → transcript window
// grouper, web_page → article splitter, everything else → generic
// sliding window.
func NewChunker(cfg config.ChunkingConfig, opts ...Option) (*Chunker, error) {
	document, err := newDocumentPolicy(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("document policy: %w", err)
	}
	article, err := newArticlePolicy(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("article policy: %w", err)
	}
	media := newMediaPolicy(cfg.MediaWindow, cfg.MediaGapBoundary)
	generic := newGenericPolicy(cfg.ChunkSize, cfg.ChunkOverlap)

	c := &Chunker{
		policies: map[core.ContentKind]Policy{
			core.KindDocument: document,
			core.KindNote:     document,
			core.KindAudio:    media,
			core.KindVideo:    media,
			core.KindWebPage:  article,
		},
		fallback: generic,
		logger:   slog.Default().With("component", "chunker"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// RegisterPolicy adds or replaces the policy for a content kind.
// Registering a new kind is a one-line call at wiring time.
func (c *Chunker) RegisterPolicy(kind core.ContentKind, policy Policy) {
	c.policies[kind] = policy
}

// PolicyFor returns the policy that would be used for the given kind.
func (c *Chunker) PolicyFor(kind core.ContentKind) Policy {
	if p, ok := c.policies[kind]; ok {
		return p
	}
	return c.fallback
}

// Chunk converts one content item into an ordered list of chunks.
// Chunks carry no vectors; the embedding generator enriches them later.
// An item with no units yields zero chunks and no error.
func (c *Chunker) Chunk(item *core.ContentItem) ([]*core.ContentChunk, error) {
	if err := core.ValidateContentItem(item); err != nil {
		return nil, err
	}

	if len(item.Units) == 0 {
		return []*core.ContentChunk{}, nil
	}

	policy := c.PolicyFor(item.Kind)
	pieces, err := policy.Split(item)
	if err != nil {
		return nil, fmt.Errorf("splitting %q with %s policy: %w", item.ParentID, policy.Name(), err)
	}

	c.logger.Debug("split content item",
		"parent", item.ParentID, "kind", item.Kind, "policy", policy.Name(), "pieces", len(pieces))

	now := time.Now().UTC()
	chunks := make([]*core.ContentChunk, 0, len(pieces))
	for _, piece := range pieces {
		if piece.Text == "" {
			continue
		}

		seq := len(chunks)
		attrs := baseAttributes(item)
		for k, v := range piece.Attributes {
			attrs[k] = v
		}

		chunks = append(chunks, &core.ContentChunk{
			Id:            core.ChunkIDFor(item.ParentID, seq, piece.Text),
			ParentID:      item.ParentID,
			ParentKind:    item.Kind,
			CollectionID:  item.CollectionID,
			SequenceIndex: seq,
			Text:          piece.Text,
			Attributes:    attrs,
			CreatedAt:     now,
		})
	}

	return chunks, nil
}

// baseAttributes carries item-level provenance onto every chunk when known.
func baseAttributes(item *core.ContentItem) map[string]string {
	attrs := make(map[string]string)
	if item.Title != "" {
		attrs[core.AttrTitle] = item.Title
	}
	if item.SourcePlatform != "" {
		attrs[core.AttrSourcePlatform] = item.SourcePlatform
	}
	return attrs
}
