// Seeder loads sample content into a local database for manual testing.
// Lines from the built-in corpus (or a file given with -src) are grouped
// into documents of a few units each and ingested through the engine.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"time"

	"github.com/quarryai/quarry"
	"github.com/quarryai/quarry/config"
	"github.com/quarryai/quarry/core"
)

var sentences = []string{
	"The quarry face showed layers of sandstone above a band of slate.",
	"Glacial till covers most of the valley floor north of the river.",
	"Core samples from the east pit revealed traces of iron oxide.",
	"The survey team mapped three fault lines across the ridge.",
	"Limestone from this seam was used in the old courthouse facade.",
	"Weathering has rounded the granite boulders along the shoreline.",
	"The drill log recorded water ingress at forty meters depth.",
	"Basalt columns frame the western edge of the excavation.",
	"Sediment analysis dated the lower strata to the late Triassic.",
	"The blast schedule was moved to avoid the nesting season.",
	"Crushed aggregate from the north pit grades finer than expected.",
	"A seam of quartzite interrupts the shale at irregular intervals.",
	"The conveyor line was rerouted around the unstable overhang.",
	"Groundwater monitoring wells ring the southern perimeter.",
	"The haul road floods every spring when the creek rises.",
	"Fossil imprints turned up in the spoil heap near gate two.",
	"The kiln consumes most of the marginal limestone output.",
	"Settlement sensors on the high wall report daily to the office.",
	"The reclamation plan calls for grading the benches by autumn.",
	"Dust suppression runs continuously during dry months.",
	"The assay office confirmed the copper traces were negligible.",
	"Old workings from the nineteenth century undercut the east slope.",
	"The screening plant rejects anything above sixty millimeters.",
	"Rainfall records guide the pumping schedule for the sump.",
}

var (
	seedFileName = flag.String("src", "", "file of seed data, one unit per line")
	unitsPerItem = flag.Int("units", 4, "source units per content item")
	collection   = flag.String("collection", "seed", "collection id for seeded items")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

// linesFromFile returns an iterator over lines in a file.
func linesFromFile(filename string) (iter.Seq[string], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	return func(yield func(string) bool) {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if !yield(scanner.Text()) {
				return
			}
		}
	}, nil
}

// linesFromSlice returns an iterator over a slice of strings.
func linesFromSlice(lines []string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, line := range lines {
			if !yield(line) {
				return
			}
		}
	}
}

// seedItems groups source lines into content items of unitsPerItem units
// each and submits them, waiting for every job to finish so the next
// item for the same collection never trips the active-job guard.
func seedItems(ctx context.Context, engine *quarry.Engine, source iter.Seq[string], perItem int) error {
	var units []core.SourceUnit
	item := 0

	flush := func() error {
		if len(units) == 0 {
			return nil
		}
		item++
		id, err := engine.SubmitIngestion(ctx, &core.ContentItem{
			ParentID:     fmt.Sprintf("seed-%03d", item),
			Kind:         core.KindNote,
			CollectionID: *collection,
			Title:        fmt.Sprintf("Seed item %d", item),
			Units:        units,
		})
		if err != nil {
			return err
		}

		job, err := awaitJob(ctx, engine, id)
		if err != nil {
			return err
		}
		if job.State != core.JobStateSucceeded {
			return fmt.Errorf("seed job %s ended %s: %s", id, job.State, job.LastError)
		}

		slog.Info("seeded item", "parent", fmt.Sprintf("seed-%03d", item), "units", len(units))
		units = nil
		return nil
	}

	for line := range source {
		if line == "" {
			continue
		}
		units = append(units, core.SourceUnit{Text: line, StartTime: -1, EndTime: -1})
		if len(units) == perItem {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

func awaitJob(ctx context.Context, engine *quarry.Engine, jobID string) (*core.IngestionJob, error) {
	for {
		job, err := engine.GetJobStatus(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.State.Terminal() {
			return job, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func main() {
	cfg := config.Default()
	cfg.Storage.Path = "./quarry-data"

	engine, err := quarry.Open(cfg)
	if err != nil {
		panic(err)
	}
	defer engine.Close()

	ctx := context.Background()

	var source iter.Seq[string]
	if *seedFileName != "" {
		source, err = linesFromFile(*seedFileName)
		if err != nil {
			panic(err)
		}
	} else {
		source = linesFromSlice(sentences)
	}

	if err := seedItems(ctx, engine, source, *unitsPerItem); err != nil {
		panic(err)
	}
}
