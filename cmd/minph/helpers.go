package main

import (
	"fmt"
	"math"
	"time"

	"github.com/fatih/color"

	"github.com/charlie0129/minph/pkg/calibration"
	"github.com/charlie0129/minph/pkg/types"
)

const annotationOffline = "minph/offline"

// offline marks commands that must not contact the daemon.
var offline = map[string]string{annotationOffline: "true"}

func parsePHArg(args []string) (float64, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("invalid number of arguments")
	}

	ph, err := calibration.ParsePH(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid pH: %w", err)
	}

	return ph, nil
}

func parseReadingArg(arg string) (int, error) {
	raw, err := calibration.ParseReading(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid reading: %w", err)
	}
	return raw, nil
}

func formatPH(ph *float64) string {
	if ph == nil {
		return color.YellowString("uncalibrated")
	}
	return bold("%.2f", *ph)
}

// efficiencyText colors a probe efficiency: green within 5% of ideal,
// yellow within 15%.
func efficiencyText(e float64) string {
	s := fmt.Sprintf("%.1f%%", e)
	switch {
	case math.IsNaN(e):
		return s
	case e >= 95 && e <= 105:
		return color.New(color.Bold, color.FgGreen).Sprint(s)
	case e >= 85 && e <= 115:
		return color.New(color.Bold, color.FgYellow).Sprint(s)
	default:
		return color.New(color.Bold, color.FgRed).Sprint(s)
	}
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

// formatSample renders one sampling loop record on a single line.
func formatSample(s types.Sample) string {
	ts := s.Time.Local().Format(time.DateTime)
	if s.Error != "" && s.PH == nil && s.Raw == 0 {
		return fmt.Sprintf("%s  error: %s", ts, s.Error)
	}
	return fmt.Sprintf("%s  pH: %s  raw: %d", ts, formatPH(s.PH), s.Raw)
}
