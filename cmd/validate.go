package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/shadercam/internal/gpu"
	"github.com/smazurov/shadercam/internal/gpu/soft"
	"github.com/smazurov/shadercam/internal/shader"
	"github.com/spf13/cobra"
)

// ErrValidationFailed is returned when at least one shader does not build.
var ErrValidationFailed = errors.New("shader validation failed")

// ValidationReport is the TOML document written by validate-shaders.
type ValidationReport struct {
	Dir     string          `toml:"dir"`
	Passed  int             `toml:"passed"`
	Failed  int             `toml:"failed"`
	Shaders []shader.Result `toml:"shaders"`
}

// CreateValidateShadersCmd creates the validate-shaders command.
func CreateValidateShadersCmd() *cobra.Command {
	var dir, output string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "validate-shaders",
		Short: "Compile and link every available shader",
		Long: `Builds each embedded shader and every override in --dir against the software GPU ` +
			`device and reports compile and link errors. Exits non-zero when any shader fails.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := ValidateShaders(dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if quiet {
				out = io.Discard
			}
			PrintValidationReport(out, report)

			if output != "" {
				data, err := toml.Marshal(report)
				if err != nil {
					return fmt.Errorf("encode results: %w", err)
				}
				if err := os.WriteFile(output, data, 0o644); err != nil {
					return fmt.Errorf("write results: %w", err)
				}
				fmt.Fprintf(out, "\nResults saved to %s\n", output)
			}

			if report.Failed > 0 {
				return fmt.Errorf("%w: %d of %d", ErrValidationFailed, report.Failed, len(report.Shaders))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory with fragment shader overrides")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write results as TOML to this file")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress the per-shader report")
	return cmd
}

// ValidateShaders builds every shader visible from dir on a fresh software
// device.
func ValidateShaders(dir string) (*ValidationReport, error) {
	dev := soft.New(soft.Options{})
	if _, err := dev.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize device: %w", err)
	}
	defer dev.Terminate()

	cfg, err := dev.ChooseConfig(gpu.ConfigSpec{ClientVersion: 2, RedBits: 8, GreenBits: 8, BlueBits: 8, AlphaBits: 8})
	if err != nil {
		return nil, fmt.Errorf("choose config: %w", err)
	}
	if err := dev.CreateContext(cfg, 2); err != nil {
		return nil, fmt.Errorf("create context: %w", err)
	}
	defer dev.DestroyContext()

	results, err := shader.ValidateAll(dev, shader.NewLibrary(dir))
	if err != nil {
		return nil, err
	}

	report := &ValidationReport{Dir: dir, Shaders: results}
	for _, r := range results {
		if r.OK {
			report.Passed++
		} else {
			report.Failed++
		}
	}
	return report, nil
}

// PrintValidationReport writes a human readable summary of report.
func PrintValidationReport(w io.Writer, report *ValidationReport) {
	for _, r := range report.Shaders {
		if r.OK {
			fmt.Fprintf(w, "%s (%s): ✓ OK\n", r.Name, r.Origin)
			continue
		}
		stage := r.Stage
		if stage == "" {
			stage = "load"
		}
		fmt.Fprintf(w, "%s (%s): ✗ FAILED at %s\n", r.Name, r.Origin, stage)
		fmt.Fprintf(w, "    %s\n", r.Error)
	}

	fmt.Fprintln(w, "\n=== VALIDATION SUMMARY ===")
	fmt.Fprintf(w, "Shaders passed: %d\n", report.Passed)
	fmt.Fprintf(w, "Shaders failed: %d\n", report.Failed)
}
