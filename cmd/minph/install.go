package main

import (
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/minph/pkg/config"
	"github.com/charlie0129/minph/pkg/sensor"
	daemonutils "github.com/charlie0129/minph/pkg/utils/daemon"
)

// installOptions are the install flags written to the config file.
type installOptions struct {
	allowNonRootAccess bool
	driver             string
	calibrationFile    string
	autoFit            bool
	// autoFitSet is whether --auto-fit was given; the configured value is
	// kept otherwise.
	autoFitSet bool
}

func (o installOptions) apply(conf config.Config) error {
	conf.SetAllowNonRootAccess(o.allowNonRootAccess)
	if o.allowNonRootAccess {
		logrus.Info("non-root users are allowed to access the minph daemon.")
	} else {
		logrus.Info("only root user is allowed to access the minph daemon.")
	}

	switch o.driver {
	case "":
	case sensor.DriverI2CDev, sensor.DriverCH347, sensor.DriverMock:
		conf.SetDriver(o.driver)
	default:
		return fmt.Errorf("unknown sensor driver %q", o.driver)
	}

	if o.calibrationFile != "" {
		conf.SetCalibrationFile(o.calibrationFile)
	}
	if o.autoFitSet {
		conf.SetAutoFit(o.autoFit)
	}

	return nil
}

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	opts := installOptions{}

	cmd := &cobra.Command{
		Use:         "install",
		Short:       "Install minph daemon (system-wide)",
		GroupID:     gInstallation,
		Annotations: offline,
		Long: `Install minph daemon as a systemd service (system-wide).

This makes minph run in the background and automatically start on boot. You must run this command as root.

By default, only root user is allowed to access the minph daemon. If you want to allow non-root users to read the probe and manage calibrations, use the --allow-non-root-access flag, so you don't have to use sudo every time.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}

			opts.autoFitSet = cmd.Flags().Changed("auto-fit")
			if err := opts.apply(conf); err != nil {
				return err
			}

			err = conf.Save()
			if err != nil {
				return pkgerrors.Wrapf(err, "failed to save config")
			}

			err = daemonutils.Install(configPath)
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to install daemon: %v. Are you root?", err)
			}

			logrus.Infof("installation succeeded")

			exePath, _ := os.Executable()

			cmd.Printf("systemd will use current binary (%s) at startup so please make sure you do not move this binary. Once this binary is moved or deleted, you will need to run `minph install' again.\n", exePath)

			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.allowNonRootAccess, "allow-non-root-access", false, "Allow non-root users to access minph daemon.")
	cmd.Flags().StringVar(&opts.driver, "driver", "", "Sensor driver to use (i2cdev, ch347 or mock)")
	cmd.Flags().StringVar(&opts.calibrationFile, "calibration-file", "", "Where the daemon keeps calibration points")
	cmd.Flags().BoolVar(&opts.autoFit, "auto-fit", true, "Refit after every calibration change")

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "uninstall",
		Short:       "Uninstall minph daemon (system-wide)",
		GroupID:     gInstallation,
		Annotations: offline,
		Long: `Uninstall minph daemon from systemd (system-wide).

This stops minph and removes its unit. Calibrations are kept.

You must run this command as root.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := daemonutils.Uninstall()
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to uninstall daemon: %v", err)
			}

			fmt.Println("successfully uninstalled")

			cmd.Printf("Your config is kept in %s and your calibrations are kept too, in case you want to use `minph' again. If you want a complete uninstall, remove them and minph itself manually.\n", configPath)

			return nil
		},
	}

	return cmd
}
