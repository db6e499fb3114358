package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/scanforge/serialscan/internal/config"
	"github.com/scanforge/serialscan/internal/models"
	"github.com/scanforge/serialscan/internal/onnx"
	"github.com/scanforge/serialscan/internal/pipeline"
	"github.com/scanforge/serialscan/internal/validator"
)

// scanCmd scans a recorded frame sequence from image files.
var scanCmd = &cobra.Command{
	Use:   "scan [images...]",
	Short: "Scan a frame sequence for a serial number",
	Long: `Scan reads image files as an ordered camera frame sequence and runs one
scanning session over them, printing the decision.

A borderline decision normally stays unresolved; --auto-confirm accepts
it the way a user tapping "confirm" would.

Examples:
  serialscan scan frame1.jpg frame2.jpg frame3.jpg
  serialscan scan --format json --device-class low captures/*.png`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().String("format", "text", "output format (text, json)")
	scanCmd.Flags().String("device-class", "", "capture device class (high, mid, low)")
	scanCmd.Flags().String("accuracy", "", "recognition accuracy (fast, accurate)")
	scanCmd.Flags().Bool("auto-confirm", false, "resolve a borderline decision as confirmed")
	rootCmd.AddCommand(scanCmd)
}

// scanOutput is the JSON document printed by --format json.
type scanOutput struct {
	Result validator.Result       `json:"result"`
	Stats  pipeline.StatsSnapshot `json:"stats"`
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg := globalConfig
	if s, _ := cmd.Flags().GetString("device-class"); s != "" {
		cfg.Scan.DeviceClass = s
	}
	if s, _ := cmd.Flags().GetString("accuracy"); s != "" {
		cfg.Scan.Accuracy = s
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	// File sequences arrive as fast as they decode; the live-camera
	// admission interval would skip all but the first.
	pcfg := cfg.Pipeline()
	pcfg.MinFrameInterval = 0

	pipe, err := buildPipeline(cfg, pcfg)
	if err != nil {
		return err
	}
	defer pipe.Close()

	sess := pipe.NewSession()
	ctx := cmd.Context()
	if err := sess.Start(ctx); err != nil {
		return err
	}

	base := time.Now()
	pushed := int64(0)
	for i, path := range args {
		img, err := imaging.Open(path)
		if err != nil {
			return fmt.Errorf("open frame %q: %w", path, err)
		}
		sess.OnFrame(pipeline.Frame{Image: img, Timestamp: base.Add(time.Duration(i) * time.Millisecond)})
		pushed++
	}
	drainSession(ctx, sess, pushed)
	sess.Stop()

	result, err := sess.Wait(ctx)
	if err != nil {
		return err
	}
	if autoConfirm, _ := cmd.Flags().GetBool("auto-confirm"); autoConfirm && result.Level == validator.LevelBorderline {
		result = sess.Resolve(true)
	}

	format, _ := cmd.Flags().GetString("format")
	return printResult(cmd, format, result, sess.Stats())
}

// buildPipeline assembles a pipeline over the on-disk models.
func buildPipeline(cfg config.Config, pcfg pipeline.Config) (*pipeline.Pipeline, error) {
	registry := pipeline.NewRegistry(
		models.GetModelsDir(cfg.Models.Dir),
		onnx.ModelOptions{
			NumThreads: cfg.Models.NumThreads,
			GPU:        onnx.GPUConfig{UseGPU: cfg.Models.GPU},
		},
	)
	return pipeline.NewBuilder().
		WithConfig(pcfg).
		WithRegistry(registry).
		Build()
}

// drainSession waits until every pushed frame was fully processed, so
// stopping evaluates a complete candidate buffer rather than cancelling
// the last frame's inference mid-flight.
func drainSession(ctx context.Context, sess *pipeline.Session, pushed int64) {
	tick := time.NewTicker(2 * time.Millisecond)
	defer tick.Stop()
	for {
		if sess.Stats().FramesProcessed >= pushed {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-sess.Done():
			return
		case <-tick.C:
		}
	}
}

func printResult(cmd *cobra.Command, format string, result validator.Result, stats pipeline.StatsSnapshot) error {
	out := cmd.OutOrStdout()
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(scanOutput{Result: result, Stats: stats})
	case "text":
		fmt.Fprintf(out, "Decision:   %s (%s)\n", result.Level, result.Reason)
		if result.Serial != "" {
			fmt.Fprintf(out, "Serial:     %s\n", result.Serial)
		}
		fmt.Fprintf(out, "Confidence: %.2f\n", result.Confidence)
		fmt.Fprintf(out, "Frames:     %d scanned, %d skipped, %d dropped\n",
			stats.FramesScanned, stats.FramesSkipped, stats.FramesDropped)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
