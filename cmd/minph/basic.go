package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/minph/pkg/events"
	"github.com/charlie0129/minph/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version",
		Annotations: offline,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewReadCommand() *cobra.Command {
	raw := false
	cached := false

	cmd := &cobra.Command{
		Use:     "read",
		Short:   "Take a reading from the probe",
		GroupID: gBasic,
		Long: `Take a fresh reading from the probe.

Prints the pH and the raw converter value. With --raw, the raw value is
printed even if the probe is not calibrated yet. With --cached, the last
sample of the daemon's sampling loop is shown instead and the sensor is not
read.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cached {
				s, err := apiClient.GetLatestSample()
				if err != nil {
					return err
				}
				cmd.Println(formatSample(*s))
				return nil
			}

			if raw {
				r, err := apiClient.ReadRaw()
				if err != nil {
					return err
				}
				cmd.Printf("raw: %s  pH: %s\n", bold("%d", r.Raw), formatPH(r.PH))
				return nil
			}

			r, err := apiClient.ReadPH()
			if err != nil {
				return err
			}
			cmd.Printf("pH: %s  raw: %d\n", formatPH(r.PH), r.Raw)
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print the raw reading, even when uncalibrated")
	cmd.Flags().BoolVar(&cached, "cached", false, "Show the last sample of the sampling loop instead of reading the sensor")
	cmd.MarkFlagsMutuallyExclusive("raw", "cached")

	return cmd
}

func NewConvertCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "convert [raw]",
		Short:   "Convert a raw reading to pH",
		GroupID: gBasic,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := parseReadingArg(args[0])
			if err != nil {
				return err
			}

			ph, err := apiClient.Convert(raw)
			if err != nil {
				return fmt.Errorf("failed to convert: %w", err)
			}

			cmd.Printf("%.2f\n", ph)
			return nil
		},
	}
}

func NewWatchCommand() *cobra.Command {
	asJSON := false

	cmd := &cobra.Command{
		Use:     "watch",
		Short:   "Stream readings and calibration changes",
		GroupID: gBasic,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ch, err := apiClient.Watch(ctx)
			if err != nil {
				return err
			}

			for ev := range ch {
				if asJSON {
					cmd.Printf("{\"event\":%q,\"data\":%s}\n", ev.Name, ev.Data)
					continue
				}
				printEvent(cmd, ev)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print events as JSON lines")

	return cmd
}

func printEvent(cmd *cobra.Command, ev events.Event) {
	switch ev.Name {
	case events.Sample:
		s, err := events.DecodeAs[events.SampleEvent](ev)
		if err != nil {
			logrus.WithError(err).Errorf("failed to decode %s event", ev.Name)
			return
		}
		ts := time.Unix(s.Ts, 0).Format(time.TimeOnly)
		if s.PH == nil && s.Error != "" && s.Raw == 0 {
			cmd.Printf("%s  error: %s\n", ts, s.Error)
			return
		}
		cmd.Printf("%s  pH: %s  raw: %d\n", ts, formatPH(s.PH), s.Raw)
	case events.CalibrationChanged:
		c, err := events.DecodeAs[events.CalibrationChangedEvent](ev)
		if err != nil {
			logrus.WithError(err).Errorf("failed to decode %s event", ev.Name)
			return
		}
		cmd.Printf("%s  calibration %s (%d points)\n", time.Unix(c.Ts, 0).Format(time.TimeOnly), c.Action, c.Points)
	case events.CalibrationFit:
		f, err := events.DecodeAs[events.CalibrationFitEvent](ev)
		if err != nil {
			logrus.WithError(err).Errorf("failed to decode %s event", ev.Name)
			return
		}
		ts := time.Unix(f.Ts, 0).Format(time.TimeOnly)
		if f.Error != "" {
			cmd.Printf("%s  fit failed: %s\n", ts, f.Error)
			return
		}
		cmd.Printf("%s  fitted: pH = %.6f * raw + %.4f (R² %.4f)\n", ts, f.Slope, f.Intercept, f.RSquared)
	default:
		logrus.Debugf("ignoring event %s", ev.Name)
	}
}

func NewSamplesCommand() *cobra.Command {
	last := 20
	asJSON := false

	cmd := &cobra.Command{
		Use:     "samples",
		Short:   "Show recent samples of the daemon's sampling loop",
		GroupID: gBasic,
		RunE: func(cmd *cobra.Command, _ []string) error {
			samples, err := apiClient.GetSamples(last)
			if err != nil {
				return err
			}

			if asJSON {
				b, err := json.MarshalIndent(samples, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(b))
				return nil
			}

			for _, s := range samples {
				cmd.Println(formatSample(s))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&last, "last", "n", last, "Number of samples to show, 0 for all")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print samples as JSON")

	return cmd
}
