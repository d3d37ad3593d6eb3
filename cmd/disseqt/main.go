package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pulseq-frame/disseqt"
	"github.com/pulseq-frame/disseqt/format"
	"github.com/pulseq-frame/disseqt/format/pulseq"
	"github.com/pulseq-frame/disseqt/internal/plot"
	"github.com/pulseq-frame/disseqt/seq"
)

var rootCmd = &cobra.Command{
	Use:   "disseqt",
	Short: "Inspect MRI pulse sequence files",
}

func init() {
	rootCmd.AddCommand(newInfoCmd())
	rootCmd.AddCommand(newBlocksCmd())
	rootCmd.AddCommand(newAdcCmd())
	rootCmd.AddCommand(newPlotCmd())
	rootCmd.AddCommand(newConvertCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "disseqt: %v\n", err)
		os.Exit(1)
	}
}

// loadFlags are the flags every sequence-reading subcommand shares.
type loadFlags struct {
	inputFormat  string
	sequencesDir string
	verbose      bool
}

func (f *loadFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.inputFormat, "input-format", "", "pin the sequence format instead of sniffing: "+strings.Join(format.Names(), ", "))
	flags.StringVar(&f.sequencesDir, "sequences-dir", defaultSequencesDir(), "directory searched for bare sequence names")
	flags.BoolVar(&f.verbose, "verbose", false, "log load stages to stderr")
}

func (f *loadFlags) load(arg string) (*seq.Sequence, error) {
	path, err := resolveSequencePath(arg, f.sequencesDir)
	if err != nil {
		return nil, err
	}

	var opts []disseqt.Option
	if f.inputFormat != "" {
		opts = append(opts, disseqt.WithFormat(f.inputFormat))
	}
	if f.verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		defer logger.Sync() //nolint:errcheck
		opts = append(opts, disseqt.WithLogger(logger))
	}
	return disseqt.Load(path, opts...)
}

func newInfoCmd() *cobra.Command {
	var (
		formatFlag string
		lf         loadFlags
	)

	cmd := &cobra.Command{
		Use:   "info <sequence-file>",
		Short: "Show sequence metadata and event counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := lf.load(args[0])
			if err != nil {
				return err
			}

			stats := s.Stats()
			rasters := s.Rasters()
			payload := struct {
				Version         string      `json:"version"`
				Name            string      `json:"name,omitempty"`
				DurationSeconds float64     `json:"duration_seconds"`
				Blocks          int         `json:"blocks"`
				RFPulses        int         `json:"rf_pulses"`
				Gradients       int         `json:"gradients"`
				ADCReadouts     int         `json:"adc_readouts"`
				Delays          int         `json:"delays"`
				Shapes          int         `json:"shapes"`
				FOV             *[3]float64 `json:"fov_m,omitempty"`
				BlockRasterNs   int64       `json:"block_raster_ns"`
				RFRasterNs      int64       `json:"rf_raster_ns"`
				GradRasterNs    int64       `json:"gradient_raster_ns"`
				ADCRasterNs     int64       `json:"adc_raster_ns"`
			}{
				Version:         s.Version().String(),
				Name:            s.Name(),
				DurationSeconds: s.Duration(),
				Blocks:          stats.Blocks,
				RFPulses:        stats.RFPulses,
				Gradients:       stats.Gradients,
				ADCReadouts:     stats.ADCs,
				Delays:          stats.Delays,
				Shapes:          stats.Shapes,
				BlockRasterNs:   rasters.Block.Nanoseconds(),
				RFRasterNs:      rasters.RF.Nanoseconds(),
				GradRasterNs:    rasters.Gradient.Nanoseconds(),
				ADCRasterNs:     rasters.ADC.Nanoseconds(),
			}
			if fov, ok := s.FOV(); ok {
				payload.FOV = &fov
			}

			switch strings.ToLower(formatFlag) {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(payload)
			case "text":
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Version: %s\n", payload.Version)
				if payload.Name != "" {
					fmt.Fprintf(out, "Name: %s\n", payload.Name)
				}
				fmt.Fprintf(out, "Duration: %gs\n", payload.DurationSeconds)
				fmt.Fprintf(out, "Blocks: %d\n", payload.Blocks)
				fmt.Fprintf(out, "RF Pulses: %d\n", payload.RFPulses)
				fmt.Fprintf(out, "Gradients: %d\n", payload.Gradients)
				fmt.Fprintf(out, "ADC Readouts: %d\n", payload.ADCReadouts)
				fmt.Fprintf(out, "Delays: %d\n", payload.Delays)
				fmt.Fprintf(out, "Shapes: %d\n", payload.Shapes)
				if payload.FOV != nil {
					fmt.Fprintf(out, "FOV: %g x %g x %g m\n", payload.FOV[0], payload.FOV[1], payload.FOV[2])
				}
				return nil
			default:
				return fmt.Errorf("unsupported format: %s", formatFlag)
			}
		},
	}

	cmd.Flags().StringVar(&formatFlag, "format", "json", "output format: json or text")
	lf.register(cmd)

	return cmd
}

func newBlocksCmd() *cobra.Command {
	var (
		limit int
		lf    loadFlags
	)

	cmd := &cobra.Command{
		Use:   "blocks <sequence-file>",
		Short: "List event spans in timeline order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := lf.load(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-16s %-16s %-8s %s\n", "START", "END", "KIND", "BLOCK")
			count := 0
			for _, ev := range s.EventsInRange(0, s.Duration()) {
				if limit > 0 && count >= limit {
					break
				}
				fmt.Fprintf(out, "%-16.9f %-16.9f %-8s %d\n", ev.Start, ev.End, ev.Kind, ev.Block)
				count++
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "limit number of events printed (0 means no limit)")
	lf.register(cmd)

	return cmd
}

func newAdcCmd() *cobra.Command {
	var (
		limit int
		lf    loadFlags
	)

	cmd := &cobra.Command{
		Use:   "adc <sequence-file>",
		Short: "Print ADC sample timestamps, one per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := lf.load(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			count := 0
			for ts := range s.AdcEvents() {
				if limit > 0 && count >= limit {
					break
				}
				fmt.Fprintf(out, "%.9f\n", ts)
				count++
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "limit number of timestamps printed (0 means no limit)")
	lf.register(cmd)

	return cmd
}

func newPlotCmd() *cobra.Command {
	var (
		from         float64
		to           float64
		width        int
		height       int
		channelsFlag string
		forceColor   bool
		noColor      bool
		lf           loadFlags
	)

	cmd := &cobra.Command{
		Use:   "plot <sequence-file>",
		Short: "Render channel waveforms as a terminal chart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if forceColor && noColor {
				return errors.New("--color cannot be used with --no-color")
			}

			s, err := lf.load(args[0])
			if err != nil {
				return err
			}

			var channels []string
			if channelsFlag != "" {
				for _, ch := range strings.Split(channelsFlag, ",") {
					channels = append(channels, strings.TrimSpace(strings.ToLower(ch)))
				}
			}

			opts := plot.Options{
				From:         from,
				To:           to,
				Width:        width,
				Height:       height,
				Channels:     channels,
				ForceColor:   forceColor,
				ForceNoColor: noColor,
				Out:          cmd.OutOrStdout(),
			}
			if f, ok := opts.Out.(*os.File); ok {
				opts.OutFile = f
			}
			return plot.Run(s, opts)
		},
	}

	flags := cmd.Flags()
	flags.Float64Var(&from, "from", 0, "window start in seconds")
	flags.Float64Var(&to, "to", 0, "window end in seconds (0 means the full duration)")
	flags.IntVar(&width, "width", 0, "chart width in columns (0 means auto-detect)")
	flags.IntVar(&height, "height", 0, "rows above and below each axis")
	flags.StringVar(&channelsFlag, "channels", "", "comma-separated subset of rf, gx, gy, gz, adc")
	flags.BoolVar(&forceColor, "color", false, "force colored output")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")
	lf.register(cmd)

	return cmd
}

func newConvertCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "convert <sequence-file> <output-file>",
		Short: "Convert a text sequence file to the binary container",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			tables, err := pulseq.ParseText(data)
			if err != nil {
				return err
			}

			if !force {
				if _, err := os.Stat(args[1]); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", args[1])
				}
			}
			out, err := os.Create(args[1])
			if err != nil {
				return err
			}
			if err := pulseq.WriteBinary(out, tables); err != nil {
				out.Close() //nolint:errcheck
				return err
			}
			return out.Close()
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite the output file if it exists")

	return cmd
}

func resolveSequencePath(arg, root string) (string, error) {
	if arg == "" {
		return "", errors.New("sequence path is empty")
	}

	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		return arg, nil
	}

	if root != "" {
		candidate := filepath.Join(root, arg)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("sequence file not found: %s", arg)
}

func defaultSequencesDir() string {
	if dir := os.Getenv("DISSEQT_SEQUENCES_DIR"); dir != "" {
		return dir
	}
	return ""
}
