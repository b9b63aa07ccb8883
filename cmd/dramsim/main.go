// Command dramsim drives a standalone dramsim.Controller: it ticks the
// controller for a configured number of cycles, optionally running a warmup
// phase first, and exposes its live stats over the diagnostics HTTP server.
package main

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	dramsim "github.com/sarchlab/dramsim"
	"github.com/sarchlab/dramsim/internal/diagnostics"
	"github.com/sarchlab/dramsim/internal/persistence"
)

// rootCmd is the base command when dramsim is called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "dramsim",
	Short: "dramsim runs the DRAM controller model standalone, with no endpoints attached.",
	Long: `dramsim drives a dramsim.Controller in isolation, without an ` +
		`upstream cache or core model, for exercising and profiling the ` +
		`timing model on its own.`,
}

var (
	flagTicks      int64
	flagWarmup     int64
	flagPortNumber int
	flagDBPath     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the controller for a fixed number of cycles and report stats.",
	Run: func(_ *cobra.Command, _ []string) {
		runController(flagWarmup, flagTicks)
	},
}

var warmupCmd = &cobra.Command{
	Use:   "warmup",
	Short: "Run only the warmup phase, then exit without an ROI phase.",
	Run: func(_ *cobra.Command, _ []string) {
		runController(flagWarmup, 0)
	},
}

func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	runCmd.Flags().Int64Var(&flagTicks, "ticks", 100000, "number of ROI cycles to simulate")
	runCmd.Flags().Int64Var(&flagWarmup, "warmup-ticks", 10000, "number of warmup cycles to simulate first")
	runCmd.Flags().IntVar(&flagPortNumber, "port", 0, "diagnostics HTTP server port (0 picks a random free port)")
	runCmd.Flags().StringVar(&flagDBPath, "db", "", "SQLite file to persist ROI stats to (defaults to a generated name)")

	warmupCmd.Flags().Int64Var(&flagWarmup, "warmup-ticks", 10000, "number of warmup cycles to simulate")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(warmupCmd)
}

func buildController() *dramsim.Controller {
	b := dramsim.MakeBuilder()

	if v := os.Getenv("DRAMSIM_BLOCK_SIZE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			b = b.WithBlockSize(n)
		}
	}
	if v := os.Getenv("DRAMSIM_CHAN_WIDTH"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			b = b.WithChanWidth(n)
		}
	}

	ctrl, err := b.Build("MemCtrl")
	if err != nil {
		log.Fatalf("failed to build controller: %v", err)
	}

	return ctrl
}

func runController(warmupTicks, roiTicks int64) {
	ctrl := buildController()
	log.Printf("dramsim: %s", ctrl.SummaryText())

	writer := persistence.NewStatsWriter(flagDBPath)
	writer.Init()
	atexit.Register(func() { writer.Flush() })

	server := diagnostics.NewServer(ctrl).WithPortNumber(flagPortNumber)
	addr, err := server.Start()
	if err != nil {
		log.Fatalf("failed to start diagnostics server: %v", err)
	}
	log.Printf("diagnostics listening on http://%s", addr)

	if warmupTicks > 0 {
		ctrl.BeginPhase(true)
		for i := int64(0); i < warmupTicks; i++ {
			ctrl.Tick()
		}
		ctrl.EndPhase()
	}

	if roiTicks == 0 {
		return
	}

	ctrl.BeginPhase(false)
	for i := int64(0); i < roiTicks; i++ {
		ctrl.Tick()
	}
	ctrl.EndPhase()

	for i, ch := range ctrl.Channels {
		writer.Write(persistence.StatsRecord{
			Phase:   "roi",
			Channel: i,
			Stats:   ch.ROIStats,
		})
	}
	writer.Flush()

	atexit.Exit(0)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
