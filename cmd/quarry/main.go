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


package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"

	"github.com/quarryai/quarry"
	"github.com/quarryai/quarry/config"
	"github.com/quarryai/quarry/core"
	"github.com/quarryai/quarry/search"
)

func main() {
	app := &cli.App{
		Name:  "quarry",
		Usage: "Content chunking and hybrid retrieval engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file (defaults apply when omitted)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Ingest a content item from a JSON file",
				ArgsUsage: "<item.json>",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "wait",
						Aliases: []string{"w"},
						Usage:   "Block until the job reaches a terminal state",
					},
					&cli.DurationFlag{
						Name:  "poll-interval",
						Usage: "Job status poll interval when waiting",
						Value: 200 * time.Millisecond,
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Search stored chunks",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "collection",
						Usage:    "Collection to search in",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "mode",
						Usage: "Search mode (vector, hybrid)",
						Value: string(search.ModeHybrid),
					},
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of hits",
						Value:   10,
					},
					&cli.StringFlag{
						Name:  "parent",
						Usage: "Restrict to one parent content item",
					},
					&cli.StringFlag{
						Name:  "kind",
						Usage: "Restrict to one content kind (document, audio, video, web_page, note)",
					},
				},
			},
			{
				Name:  "jobs",
				Usage: "Inspect and manage ingestion jobs",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List jobs, newest first",
						Action: jobsListCommand,
						Flags: []cli.Flag{
							&cli.IntFlag{
								Name:    "limit",
								Aliases: []string{"n"},
								Usage:   "Maximum number of jobs (0 for all)",
								Value:   20,
							},
						},
					},
					{
						Name:      "status",
						Usage:     "Show one job",
						ArgsUsage: "<job-id>",
						Action:    jobsStatusCommand,
					},
					{
						Name:      "cancel",
						Usage:     "Cancel an active job",
						ArgsUsage: "<job-id>",
						Action:    jobsCancelCommand,
					},
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete all chunks of a parent content item",
				ArgsUsage: "<parent-id>",
				Action:    deleteCommand,
			},
			{
				Name:      "reindex",
				Usage:     "Regenerate embeddings for a parent's stored chunks",
				ArgsUsage: "<parent-id>",
				Action:    reindexCommand,
			},
			{
				Name:   "resume",
				Usage:  "Requeue jobs interrupted by a previous run",
				Action: resumeCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func openEngine(c *cli.Context) (*quarry.Engine, error) {
	var cfg *config.Config
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}
	return quarry.Open(cfg)
}

// contentItemFile is the JSON shape accepted by the ingest command.
type contentItemFile struct {
	ParentID       string `json:"parent_id"`
	Kind           string `json:"kind"`
	CollectionID   string `json:"collection_id"`
	Title          string `json:"title"`
	SourcePlatform string `json:"source_platform"`
	Units          []struct {
		Text      string   `json:"text"`
		Page      int      `json:"page"`
		StartTime *float64 `json:"start_time"`
		EndTime   *float64 `json:"end_time"`
	} `json:"units"`
}

func loadContentItem(path string) (*core.ContentItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading item file: %w", err)
	}

	var file contentItemFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing item file: %w", err)
	}

	item := &core.ContentItem{
		ParentID:       file.ParentID,
		Kind:           core.ContentKind(file.Kind),
		CollectionID:   file.CollectionID,
		Title:          file.Title,
		SourcePlatform: file.SourcePlatform,
		Units:          make([]core.SourceUnit, len(file.Units)),
	}
	for i, u := range file.Units {
		unit := core.SourceUnit{Text: u.Text, Page: u.Page, StartTime: -1, EndTime: -1}
		if u.StartTime != nil {
			unit.StartTime = *u.StartTime
		}
		if u.EndTime != nil {
			unit.EndTime = *u.EndTime
		}
		item.Units[i] = unit
	}
	return item, nil
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one item file argument")
	}

	item, err := loadContentItem(c.Args().First())
	if err != nil {
		return err
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx := context.Background()
	jobID, err := engine.SubmitIngestion(ctx, item)
	if err != nil {
		return fmt.Errorf("submitting ingestion: %w", err)
	}
	fmt.Println(jobID)

	if !c.Bool("wait") {
		return nil
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("ingesting"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	interval := c.Duration("poll-interval")
	for {
		job, err := engine.GetJobStatus(ctx, jobID)
		if err != nil {
			return fmt.Errorf("polling job: %w", err)
		}

		bar.Set(job.ProgressPercent)
		if job.State.Terminal() {
			bar.Finish()
			fmt.Fprintf(os.Stderr, "job %s: %s\n", job.Id, job.State)
			if job.State != core.JobStateSucceeded {
				if job.LastError != "" {
					return fmt.Errorf("ingestion %s: %s", job.State, job.LastError)
				}
				return fmt.Errorf("ingestion %s", job.State)
			}
			return nil
		}

		time.Sleep(interval)
	}
}

func searchCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one query argument")
	}

	mode := search.Mode(c.String("mode"))
	switch mode {
	case search.ModeVector, search.ModeHybrid:
	default:
		return fmt.Errorf("invalid mode %q: must be vector or hybrid", c.String("mode"))
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	result := engine.Search(context.Background(), search.Request{
		CollectionID: c.String("collection"),
		Query:        c.Args().First(),
		Limit:        c.Int("limit"),
		Mode:         mode,
		ParentID:     c.String("parent"),
		ParentKind:   core.ContentKind(c.String("kind")),
	})

	if result.Degraded {
		fmt.Fprintf(os.Stderr, "degraded: %s\n", result.DegradedReason)
	}
	if len(result.Hits) == 0 {
		fmt.Fprintln(os.Stderr, "no results")
		return nil
	}

	for i, hit := range result.Hits {
		fmt.Printf("%2d. [%s] %d (score %.4f)\n", i+1, hit.ParentID, hit.ChunkID, hit.Score)
		fmt.Printf("    %s\n", summarize(hit.Text, 160))
	}
	return nil
}

func jobsListCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	jobs, err := engine.ListJobs(context.Background(), c.Int("limit"))
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Fprintln(os.Stderr, "no jobs")
		return nil
	}

	for _, job := range jobs {
		fmt.Printf("%s  %-9s  %3d%%  attempt %d  %s\n",
			job.Id, job.State, job.ProgressPercent, job.AttemptCount, job.ParentID)
	}
	return nil
}

func jobsStatusCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one job id argument")
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	job, err := engine.GetJobStatus(context.Background(), c.Args().First())
	if err != nil {
		return err
	}

	fmt.Printf("id:        %s\n", job.Id)
	fmt.Printf("parent:    %s\n", job.ParentID)
	fmt.Printf("state:     %s\n", job.State)
	fmt.Printf("stage:     %s\n", job.CurrentStage)
	fmt.Printf("progress:  %d%%\n", job.ProgressPercent)
	fmt.Printf("attempts:  %d\n", job.AttemptCount)
	if job.LastError != "" {
		fmt.Printf("error:     %s\n", job.LastError)
	}
	fmt.Printf("created:   %s\n", job.CreatedAt.Format(time.RFC3339))
	fmt.Printf("updated:   %s\n", job.UpdatedAt.Format(time.RFC3339))
	return nil
}

func jobsCancelCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one job id argument")
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.CancelJob(context.Background(), c.Args().First()); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "cancellation requested")
	return nil
}

func deleteCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one parent id argument")
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	deleted, err := engine.DeleteContent(context.Background(), c.Args().First())
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "deleted %d chunks\n", deleted)
	return nil
}

func reindexCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one parent id argument")
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.Reindex(context.Background(), c.Args().First()); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "reindex complete")
	return nil
}

func resumeCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	requeued, err := engine.Resume(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "requeued %d jobs\n", requeued)
	return nil
}

func summarize(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
