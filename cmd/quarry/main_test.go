package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/quarryai/quarry/core"
)

func TestLoadContentItem(t *testing.T) {
	t.Run("parses a document item", func(t *testing.T) {
		path := writeItemFile(t, `{
			"parent_id": "doc-1",
			"kind": "document",
			"collection_id": "col-1",
			"title": "Field Notes",
			"units": [
				{"text": "first page", "page": 1},
				{"text": "second page", "page": 2}
			]
		}`)

		item, err := loadContentItem(path)
		require.NoError(t, err)
		assert.Equal(t, "doc-1", item.ParentID)
		assert.Equal(t, core.KindDocument, item.Kind)
		require.Len(t, item.Units, 2)
		assert.Equal(t, 2, item.Units[1].Page)
		assert.False(t, item.Units[0].Timed())
	})

	t.Run("parses transcript timings", func(t *testing.T) {
		path := writeItemFile(t, `{
			"parent_id": "vid-1",
			"kind": "video",
			"collection_id": "col-1",
			"units": [
				{"text": "opening scene", "start_time": 0, "end_time": 12.5}
			]
		}`)

		item, err := loadContentItem(path)
		require.NoError(t, err)
		require.Len(t, item.Units, 1)
		assert.True(t, item.Units[0].Timed())
		assert.Equal(t, 12.5, item.Units[0].EndTime)
	})

	t.Run("units without timings are untimed", func(t *testing.T) {
		path := writeItemFile(t, `{
			"parent_id": "note-1",
			"kind": "note",
			"collection_id": "col-1",
			"units": [{"text": "a note"}]
		}`)

		item, err := loadContentItem(path)
		require.NoError(t, err)
		assert.False(t, item.Units[0].Timed())
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		path := writeItemFile(t, `{"parent_id": `)

		_, err := loadContentItem(path)
		assert.Error(t, err)
	})

	t.Run("rejects a missing file", func(t *testing.T) {
		_, err := loadContentItem(filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "short text", summarize("short   text", 160))
	assert.Equal(t, "abcde...", summarize("abcdefgh", 5))
	assert.Equal(t, "a b c", summarize("a\nb\tc", 160))
}

func TestSetupLogger(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	newApp := func(action cli.ActionFunc) *cli.App {
		return &cli.App{
			Name: "quarry",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "log-level", Value: "info"},
			},
			Before: setupLogger,
			Commands: []*cli.Command{
				{Name: "noop", Action: action},
			},
		}
	}

	t.Run("accepts valid levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", "WARN"} {
			app := newApp(func(c *cli.Context) error { return nil })
			err := app.Run([]string{"quarry", "--log-level", level, "noop"})
			assert.NoError(t, err, "level %q", level)
		}
	})

	t.Run("rejects unknown levels", func(t *testing.T) {
		app := newApp(func(c *cli.Context) error { return nil })
		err := app.Run([]string{"quarry", "--log-level", "verbose", "noop"})
		assert.Error(t, err)
	})
}

func writeItemFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "item.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}
