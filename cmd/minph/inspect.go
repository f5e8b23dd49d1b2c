package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/charlie0129/minph/pkg/calibration"
	"github.com/charlie0129/minph/pkg/config"
	"github.com/charlie0129/minph/pkg/linear"
)

func NewInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "inspect [calibration file]",
		Short:       "Fit a calibration file without the daemon",
		GroupID:     gAdvanced,
		Annotations: offline,
		Long: `Load a calibration file and print its points, the fitted transfer function
and the probe health. The daemon is not contacted.

Without an argument, the calibration file named in the config is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}

			path := conf.CalibrationFile()
			if len(args) == 1 {
				path = args[0]
			}

			store := calibration.NewStore()
			if err := store.Load(path); err != nil {
				return err
			}
			set := store.Snapshot()

			points := make(map[float64]int, set.Len())
			for _, p := range set.Points {
				points[p.PH] = p.Raw
			}
			cmd.Println(bold("Calibration points:"))
			printPoints(cmd, points)
			cmd.Println()

			tf, err := linear.Fit(set.Points, linear.MaxReadingForBits(conf.ADCBits()))
			if err != nil {
				return fmt.Errorf("failed to fit %s: %w", path, err)
			}

			cmd.Println(bold("Transfer function:"))
			printTransfer(cmd, tf, false)
			cmd.Println()

			health, err := linear.Probe(tf, linear.ProbeParams{
				ReferenceVoltage: conf.ReferenceVoltage(),
				AmplifierGain:    conf.AmplifierGain(),
				Bits:             conf.ADCBits(),
			})
			if err != nil {
				return err
			}
			cmd.Println(bold("Probe:"))
			printProbe(cmd, health)

			return nil
		},
	}

	return cmd
}
