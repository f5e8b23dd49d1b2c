package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/minph/pkg/calibration"
	"github.com/charlie0129/minph/pkg/client"
	"github.com/charlie0129/minph/pkg/linear"
)

func NewCalibrationCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "calibration",
		Aliases: []string{"cal"},
		Short:   "Manage buffer calibrations",
		GroupID: gCalibration,
		Long: `Manage buffer calibrations.

A calibration maps the pH of a buffer solution to the raw reading the probe
gives in it. Dip the probe in a buffer, wait for the reading to settle, then
run "minph calibration capture <pH>". Two buffers are enough for a fit, three
(e.g. 4, 7 and 10) are better.`,
	}

	cmd.AddCommand(
		newCalibrationListCommand(),
		newCalibrationGetCommand(),
		newCalibrationSetCommand(),
		newCalibrationCaptureCommand(),
		newCalibrationDeleteCommand(),
		newCalibrationFitCommand(),
		newCalibrationReloadCommand(),
		newCalibrationStatusCommand(),
	)

	return cmd
}

func newCalibrationListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List calibration points",
		RunE: func(cmd *cobra.Command, _ []string) error {
			points, err := apiClient.ListCalibrations()
			if err != nil {
				return err
			}
			printPoints(cmd, points)
			return nil
		},
	}
}

func printPoints(cmd *cobra.Command, points map[float64]int) {
	if len(points) == 0 {
		cmd.Println("no calibration points")
		return
	}

	phs := make([]float64, 0, len(points))
	for ph := range points {
		phs = append(phs, ph)
	}
	sort.Float64s(phs)

	for _, ph := range phs {
		cmd.Printf("  pH %-6s %s\n", calibration.FormatPH(ph), bold("%d", points[ph]))
	}
}

func newCalibrationGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get [pH]",
		Short: "Print the raw reading stored for a pH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ph, err := parsePHArg(args)
			if err != nil {
				return err
			}

			raw, err := apiClient.GetCalibration(ph)
			if err != nil {
				if errors.Is(err, client.ErrNotFound) {
					return fmt.Errorf("no calibration for pH %s", calibration.FormatPH(ph))
				}
				return err
			}

			cmd.Println(raw)
			return nil
		},
	}
}

func newCalibrationSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set [pH] [raw]",
		Short: "Store a raw reading for a pH",
		Long: `Store a raw reading for a pH by hand.

Use this to restore known values. To calibrate from the probe, use "capture".`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			ph, err := parsePHArg(args)
			if err != nil {
				return err
			}
			raw, err := parseReadingArg(args[1])
			if err != nil {
				return err
			}

			if _, err := apiClient.SetCalibration(ph, raw); err != nil {
				return fmt.Errorf("failed to set calibration: %w", err)
			}

			logrus.Infof("successfully stored reading %d for pH %s", raw, calibration.FormatPH(ph))
			return nil
		},
	}
}

func newCalibrationCaptureCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "capture [pH]",
		Short: "Store the probe's current reading for a buffer",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ph, err := parsePHArg(args)
			if err != nil {
				return err
			}

			raw, err := apiClient.CaptureCalibration(ph)
			if err != nil {
				return fmt.Errorf("failed to capture calibration: %w", err)
			}

			logrus.Infof("successfully stored reading %d for pH %s", raw, calibration.FormatPH(ph))
			return nil
		},
	}
}

func newCalibrationDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete [pH]",
		Aliases: []string{"rm"},
		Short:   "Delete the calibration for a pH",
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ph, err := parsePHArg(args)
			if err != nil {
				return err
			}

			if err := apiClient.DeleteCalibration(ph); err != nil {
				return fmt.Errorf("failed to delete calibration: %w", err)
			}

			logrus.Infof("successfully deleted calibration for pH %s", calibration.FormatPH(ph))
			return nil
		},
	}
}

func newCalibrationFitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fit",
		Short: "Refit the transfer function",
		Long: `Refit the transfer function from the stored calibrations.

The daemon refits after every change unless autoFit is disabled in its config.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tr, err := apiClient.Fit()
			if err != nil {
				return fmt.Errorf("failed to fit: %w", err)
			}

			printTransfer(cmd, tr.TransferFunction, false)
			return nil
		},
	}
}

func newCalibrationReloadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload the calibration file from disk",
		RunE: func(_ *cobra.Command, _ []string) error {
			n, err := apiClient.Reload()
			if err != nil {
				return fmt.Errorf("failed to reload: %w", err)
			}

			logrus.Infof("successfully loaded %d calibration points", n)
			return nil
		},
	}
}

func newCalibrationStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show calibration points, the fit and probe health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			points, err := apiClient.ListCalibrations()
			if err != nil {
				return err
			}

			cmd.Println(bold("Calibration points:"))
			printPoints(cmd, points)
			cmd.Println()

			cmd.Println(bold("Transfer function:"))
			tr, err := apiClient.GetTransfer()
			if err != nil {
				if errors.Is(err, client.ErrNotCalibrated) {
					cmd.Println("  Calibrated: " + bool2Text(false))
					return nil
				}
				return err
			}
			cmd.Println("  Calibrated: " + bool2Text(true))
			printTransfer(cmd, tr.TransferFunction, tr.Stale)
			cmd.Println()

			cmd.Println(bold("Probe:"))
			probe, err := apiClient.GetProbe()
			if err != nil {
				return err
			}
			printProbe(cmd, probe.ProbeHealth)

			return nil
		},
	}
}

func printTransfer(cmd *cobra.Command, tf linear.TransferFunction, stale bool) {
	cmd.Printf("  pH = %s * raw + %s\n", bold("%.6f", tf.Slope), bold("%.4f", tf.Intercept))
	cmd.Printf("  R²: %s  points: %d\n", bold("%.4f", tf.RSquared), tf.Points)
	if stale {
		cmd.Println("  Calibrations changed after this fit. Run \"minph calibration fit\" to refit.")
	}
	for _, w := range tf.Warnings {
		cmd.Printf("  Warning: %s\n", w)
	}
}

func printProbe(cmd *cobra.Command, h linear.ProbeHealth) {
	cmd.Printf("  Slope: %s (ideal %.2f mV/pH)\n", bold("%.2f mV/pH", h.Slope), linear.IdealSlope)
	cmd.Printf("  Efficiency: %s\n", efficiencyText(h.Efficiency))
}
