package commands

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/marmos91/framefeed/internal/bytesize"
	"github.com/marmos91/framefeed/internal/logger"
	"github.com/marmos91/framefeed/pkg/archive"
	"github.com/marmos91/framefeed/pkg/archive/badgerstore"
	"github.com/marmos91/framefeed/pkg/config"
	"github.com/marmos91/framefeed/pkg/dataset"
	"github.com/marmos91/framefeed/pkg/loader"
	"github.com/marmos91/framefeed/pkg/metrics"
	"github.com/marmos91/framefeed/pkg/precache"
	"github.com/marmos91/framefeed/pkg/writer"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Stream a dataset through the pipeline",
	Long: `Stream every packet of the configured dataset through the precache,
hand it to the pass-through algorithm, and archive the outputs through the
writer queue. This exercises the full I/O substrate and reports per-engine
statistics, making it useful both as a smoke test for a dataset and as a
benchmark for cache and queue sizing.`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(cfg.Metrics.Listen, mux); err != nil {
				logger.Error("Metrics endpoint failed", "error", err)
			}
		}()
	}

	runID := uuid.NewString()
	log := logger.With("run_id", runID)

	src, err := dataset.NewDirSource(dataset.DirConfig{
		InputDir:        cfg.Dataset.InputDir,
		GTDir:           cfg.Dataset.GTDir,
		Scale:           cfg.Dataset.Scale,
		FourByteAligned: cfg.Dataset.FourByteAligned,
		Transposed:      cfg.Dataset.Transposed,
	})
	if err != nil {
		return err
	}

	ld, err := loader.New(src, loader.Config{Metrics: metrics.NewPrecacheMetrics()})
	if err != nil {
		return err
	}

	sink, closeSink, err := buildSink(cfg, src)
	if err != nil {
		return err
	}
	defer closeSink()

	wr, err := writer.New(sink, writer.Config{Metrics: metrics.NewWriterMetrics()})
	if err != nil {
		return err
	}

	usingGT := cfg.Dataset.GTDir != ""
	if err := ld.StartPrecaching(usingGT, cfg.Precache.BufferBytes.Uint64()); err != nil {
		return err
	}
	defer ld.StopPrecaching()

	if err := wr.Start(cfg.Writer.QueueBytes.Uint64(), cfg.Writer.DropOnFull, cfg.Writer.Workers); err != nil {
		return err
	}

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	total := src.PacketCount()
	log.Info("Starting run",
		"packets", total,
		"precache", cfg.Precache.BufferBytes.String(),
		"queue", cfg.Writer.QueueBytes.String(),
		"workers", cfg.Writer.Workers)

	start := time.Now()
	interrupted := false

loop:
	for idx := uint64(0); idx < total; idx++ {
		select {
		case <-stopCh:
			log.Warn("Interrupted, draining queue")
			interrupted = true
			break loop
		default:
		}

		in, err := ld.GetInput(idx)
		if err != nil {
			wr.Stop()
			return fmt.Errorf("load packet %d: %w", idx, err)
		}
		if in.IsEmpty() {
			break
		}
		if usingGT {
			if _, err := ld.GetGT(idx); err != nil {
				wr.Stop()
				return fmt.Errorf("load gt packet %d: %w", idx, err)
			}
		}

		// Pass-through algorithm: the run archives the normalised inputs.
		// Real harnesses substitute their processing step here.
		wr.Push(in, idx)
		ld.MarkProcessed()
	}

	// Bound the drain on interrupt; a clean pass drains fully.
	drained := make(chan struct{})
	go func() {
		wr.Stop()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(cfg.ShutdownTimeout):
		log.Error("Drain timed out", "timeout", cfg.ShutdownTimeout)
	}

	ld.FinishProcessing()
	elapsed := time.Since(start)

	log.Info("Run finished",
		"processed", ld.Processed(),
		"duration_ms", logger.Duration(start),
		"interrupted", interrupted)

	printSummary(ld, wr, usingGT, elapsed)
	return nil
}

// buildSink constructs the configured archive backend and returns its sink
// plus a close function.
func buildSink(cfg *config.Config, src loader.Source) (writer.SinkFunc, func(), error) {
	switch cfg.Dataset.Store {
	case "badger":
		store, err := badgerstore.Open(cfg.Dataset.OutputDir)
		if err != nil {
			return nil, nil, err
		}
		return store.Sink(), func() { _ = store.Close() }, nil
	default:
		arch, err := archive.NewFSArchiver(archive.FSConfig{
			OutputDir: cfg.Dataset.OutputDir,
			Prefix:    cfg.Dataset.OutputPrefix,
			Suffix:    cfg.Dataset.OutputSuffix,
			Total:     src.PacketCount(),
			Source:    src,
		})
		if err != nil {
			return nil, nil, err
		}
		return archive.Sink(arch), func() {}, nil
	}
}

// printSummary renders the per-engine counters as a table.
func printSummary(ld *loader.Loader, wr *writer.Writer, usingGT bool, elapsed time.Duration) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Engine", "Served", "Hits", "Misses", "Flushes", "Fills"})

	appendPrecache := func(name string, s precache.StatsSnapshot) {
		table.Append([]string{
			name,
			fmt.Sprintf("%d", s.Served),
			fmt.Sprintf("%d", s.Hits),
			fmt.Sprintf("%d", s.Misses),
			fmt.Sprintf("%d", s.Flushes),
			fmt.Sprintf("%d", s.Fills),
		})
	}
	appendPrecache("input precache", ld.InputStats())
	if usingGT {
		appendPrecache("gt precache", ld.GTStats())
	}

	ws := wr.Stats()
	table.Append([]string{
		"writer",
		fmt.Sprintf("%d", ws.Accepted),
		"-",
		fmt.Sprintf("dropped %d", ws.Dropped),
		fmt.Sprintf("sunk %d", ws.Sunk),
		fmt.Sprintf("peak %s", bytesize.ByteSize(ws.PeakQueuedBytes).String()),
	})

	table.Render()
	fmt.Printf("Elapsed: %s\n", elapsed.Round(time.Millisecond))
}
