package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"camrelay/internal/config"
	"camrelay/internal/media/ffprobe"
	"camrelay/internal/textutil"
	"camrelay/internal/transcode"
	"camrelay/internal/workflow"
)

func newTranscodeCommand(ctx *commandContext) *cobra.Command {
	var outputPath string
	var fps int

	cmd := &cobra.Command{
		Use:   "transcode <file>",
		Short: "Transcode one local file with frame rate detection and duration correction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			input, err := existingFile(args[0])
			if err != nil {
				return err
			}
			output := strings.TrimSpace(outputPath)
			if output == "" {
				output = defaultOutputPath(input)
			} else if output, err = config.ExpandPath(output); err != nil {
				return err
			}
			if fps < 0 {
				return errors.New("--fps must be positive")
			}
			if fps > 0 {
				cfg.Transcode.TargetFPS = fps
			}

			pipeline := workflow.BuildPipeline(cfg, ctx.cliLogger(cfg))
			report, err := pipeline.Run(cmd.Context(), transcode.Request{SourcePath: input, OutputPath: output})
			printReport(cmd.OutOrStdout(), report)
			if err != nil {
				return err
			}
			if report.Outcome == transcode.OutcomeCorrectionFailed {
				return fmt.Errorf("output kept uncorrected: %w", report.CorrectionErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output path (default: <input stem>.mp4 next to the input)")
	cmd.Flags().IntVar(&fps, "fps", 0, "Force the output frame rate (overrides transcode.target_fps)")
	return cmd
}

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	var fps int
	var fix bool

	cmd := &cobra.Command{
		Use:   "verify <source> <output>",
		Short: "Check an encoded file's duration against its source",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			source, err := existingFile(args[0])
			if err != nil {
				return err
			}
			output, err := existingFile(args[1])
			if err != nil {
				return err
			}
			if fps > 0 {
				cfg.Transcode.TargetFPS = fps
			}

			prober := ffprobe.NewProber(cfg.Transcode.FFprobeBinary, time.Duration(cfg.Transcode.ToolTimeout)*time.Second)
			facts := prober.Source(cmd.Context(), source)
			if facts.ToolMissing() {
				return ffprobe.ErrToolMissing
			}
			plan := transcode.Resolve(cfg.Transcode.TargetFPS, facts.FrameRate, cfg.Transcode.FallbackFPS)

			pipeline := workflow.BuildPipeline(cfg, ctx.cliLogger(cfg))
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Frame rate:  %s (%s)\n", plan.Formatted(), plan.Source)
			if !fix {
				validation := pipeline.Check(cmd.Context(), source, output, plan)
				printValidation(out, validation)
				if validation.Verdict == transcode.VerdictExceeded {
					fmt.Fprintln(out, "Run again with --fix to rewrite the output timestamps.")
				}
				return nil
			}
			validation, outcome, err := pipeline.Settle(cmd.Context(), source, output, plan, facts.HasAudio())
			printValidation(out, validation)
			fmt.Fprintf(out, "Outcome:     %s\n", outcome)
			return err
		},
	}
	cmd.Flags().IntVar(&fps, "fps", 0, "Frame rate the output was encoded at (default: detect from source)")
	cmd.Flags().BoolVar(&fix, "fix", false, "Correct the output in place when it is outside tolerance")
	return cmd
}

func newProbeCommand(ctx *commandContext) *cobra.Command {
	var rawJSON bool

	cmd := &cobra.Command{
		Use:   "probe <file>",
		Short: "Show what ffprobe reports for a segment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := existingFile(args[0])
			if err != nil {
				return err
			}
			prober := ffprobe.NewProber(cfg.Transcode.FFprobeBinary, time.Duration(cfg.Transcode.ToolTimeout)*time.Second)
			result, err := prober.Inspect(cmd.Context(), path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if rawJSON {
				_, err := out.Write(append(result.RawJSON(), '\n'))
				return err
			}

			facts := prober.Source(cmd.Context(), path)
			facts.FrameCount = prober.FrameCount(cmd.Context(), path)
			plan := transcode.Resolve(cfg.Transcode.TargetFPS, facts.FrameRate, cfg.Transcode.FallbackFPS)

			fmt.Fprintf(out, "File:        %s\n", path)
			fmt.Fprintf(out, "Container:   %s\n", result.Format.FormatName)
			fmt.Fprintf(out, "Duration:    %.3fs\n", result.DurationSeconds())
			fmt.Fprintf(out, "Frame rate:  %s\n", fieldText(facts.FrameRate))
			fmt.Fprintf(out, "Frames:      %s\n", fieldText(facts.FrameCount))
			fmt.Fprintf(out, "Audio:       %s\n", fieldText(facts.Audio))
			fmt.Fprintf(out, "Would encode at %s fps (%s)\n\n", plan.Formatted(), plan.Source)

			rows := make([][]string, 0, len(result.Streams))
			for _, s := range result.Streams {
				rate := s.AvgFrameRate
				if s.CodecType != "video" {
					rate = ""
				}
				rows = append(rows, []string{
					fmt.Sprintf("%d", s.Index),
					s.CodecType,
					s.CodecName,
					dimensions(s),
					rate,
					s.NBFrames,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"#", "Type", "Codec", "Size", "Rate", "Frames"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&rawJSON, "json", false, "Print the raw ffprobe JSON")
	return cmd
}

func printReport(out io.Writer, report transcode.Report) {
	fmt.Fprintf(out, "Output:      %s\n", report.OutputPath)
	if report.Plan.Source != 0 {
		fmt.Fprintf(out, "Frame rate:  %s (%s)\n", report.Plan.Formatted(), report.Plan.Source)
	}
	if report.Outcome.Usable() {
		printValidation(out, report.Validation)
	}
	fmt.Fprintf(out, "Outcome:     %s\n", report.Outcome)
	fmt.Fprintf(out, "Elapsed:     %s\n", report.Elapsed.Round(time.Millisecond))
}

func printValidation(out io.Writer, v transcode.Validation) {
	if v.Verdict == transcode.VerdictSkipped {
		reason := v.SkipReason
		if reason == "" {
			reason = "not enough probe data"
		}
		fmt.Fprintf(out, "Duration:    not checked (%s)\n", reason)
		return
	}
	fmt.Fprintf(out, "Duration:    expected %.3fs, actual %.3fs\n", v.ExpectedSeconds, v.ActualSeconds)
	fmt.Fprintf(out, "Multiplier:  %.4f (%s)\n", v.Multiplier, v.Verdict)
}

func fieldText[T any](f ffprobe.Field[T]) string {
	if v, ok := f.Get(); ok {
		return fmt.Sprint(v)
	}
	return "unknown (" + f.Reason() + ")"
}

func dimensions(s ffprobe.Stream) string {
	if s.Width == 0 || s.Height == 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

func existingFile(arg string) (string, error) {
	path, err := config.ExpandPath(strings.TrimSpace(arg))
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("inspect %q: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	return path, nil
}

// defaultOutputPath places <stem>.mp4 next to input, avoiding the input itself.
func defaultOutputPath(input string) string {
	dir := filepath.Dir(input)
	name := textutil.SanitizeFileName(textutil.Stem(filepath.Base(input)))
	if name == "" {
		name = "segment"
	}
	out := filepath.Join(dir, name+".mp4")
	if out == input {
		out = filepath.Join(dir, name+".camrelay.mp4")
	}
	return out
}
