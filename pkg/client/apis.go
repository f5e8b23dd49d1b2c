package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/minph/pkg/calibration"
	"github.com/charlie0129/minph/pkg/config"
	"github.com/charlie0129/minph/pkg/types"
)

func calibrationPath(ph float64) string {
	return "/calibrations/" + url.PathEscape(calibration.FormatPH(ph))
}

// ListCalibrations returns every calibration point stored by the daemon.
func (c *Client) ListCalibrations() (map[float64]int, error) {
	ret, err := c.Get("/calibrations")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to list calibrations")
	}

	points, err := calibration.Decode(strings.NewReader(ret))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal calibrations")
	}
	return points, nil
}

func (c *Client) GetCalibration(ph float64) (int, error) {
	ret, err := c.Get(calibrationPath(ph))
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to get calibration for pH %s", calibration.FormatPH(ph))
	}
	return parseIntResponse(ret)
}

func (c *Client) SetCalibration(ph float64, raw int) (int, error) {
	ret, err := c.Put(calibrationPath(ph), strconv.Itoa(raw))
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to set calibration for pH %s", calibration.FormatPH(ph))
	}
	return parseIntResponse(ret)
}

// CaptureCalibration stores the sensor's current reading for ph and returns it.
func (c *Client) CaptureCalibration(ph float64) (int, error) {
	ret, err := c.Post(calibrationPath(ph)+"/capture", "")
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to capture calibration for pH %s", calibration.FormatPH(ph))
	}
	return parseIntResponse(ret)
}

func (c *Client) DeleteCalibration(ph float64) error {
	_, err := c.Delete(calibrationPath(ph))
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to delete calibration for pH %s", calibration.FormatPH(ph))
	}
	return nil
}

// Fit asks the daemon to refit its calibration points.
func (c *Client) Fit() (*types.Transfer, error) {
	ret, err := c.Post("/fit", "")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to fit calibration")
	}
	return unmarshal[types.Transfer](ret, "transfer function")
}

// Reload makes the daemon reread its calibration file. It returns the number
// of points loaded.
func (c *Client) Reload() (int, error) {
	ret, err := c.Post("/reload", "")
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to reload calibrations")
	}
	return parseIntResponse(ret)
}

func (c *Client) GetTransfer() (*types.Transfer, error) {
	ret, err := c.Get("/transfer")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get transfer function")
	}
	return unmarshal[types.Transfer](ret, "transfer function")
}

func (c *Client) GetProbe() (*types.Probe, error) {
	ret, err := c.Get("/probe")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get probe health")
	}
	return unmarshal[types.Probe](ret, "probe health")
}

func (c *Client) Convert(raw int) (float64, error) {
	ret, err := c.Get("/convert?raw=" + strconv.Itoa(raw))
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to convert %d", raw)
	}
	return parseFloatResponse(ret)
}

func (c *Client) Inverse(ph float64) (float64, error) {
	ret, err := c.Get("/inverse?ph=" + url.QueryEscape(calibration.FormatPH(ph)))
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to invert pH %s", calibration.FormatPH(ph))
	}
	return parseFloatResponse(ret)
}

// ReadRaw takes a fresh sample. PH is set when the daemon is calibrated.
func (c *Client) ReadRaw() (*types.Reading, error) {
	ret, err := c.Get("/raw")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read sensor")
	}
	return unmarshal[types.Reading](ret, "reading")
}

// ReadPH takes a fresh sample and converts it. It fails when the daemon is
// not calibrated.
func (c *Client) ReadPH() (*types.Reading, error) {
	ret, err := c.Get("/ph")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read pH")
	}
	return unmarshal[types.Reading](ret, "reading")
}

// GetSamples returns up to last recent samples of the sampling loop. 0 means
// all recorded samples.
func (c *Client) GetSamples(last int) ([]types.Sample, error) {
	ret, err := c.Get("/samples?last=" + strconv.Itoa(last))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get samples")
	}

	var samples []types.Sample
	if err := json.Unmarshal([]byte(ret), &samples); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal samples")
	}
	return samples, nil
}

// GetLatestSample returns the last sample of the sampling loop. It fails
// with ErrNotFound before the first sample.
func (c *Client) GetLatestSample() (*types.Sample, error) {
	ret, err := c.Get("/samples/latest")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get latest sample")
	}
	return unmarshal[types.Sample](ret, "sample")
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}
	return unmarshal[config.RawFileConfig](ret, "config")
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}

	var v string
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal version")
	}
	return v, nil
}

func unmarshal[T any](resp string, what string) (*T, error) {
	var v T
	if err := json.Unmarshal([]byte(resp), &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", what, err)
	}
	return &v, nil
}

func parseIntResponse(resp string) (int, error) {
	i, err := strconv.Atoi(strings.TrimSpace(resp))
	if err != nil {
		return 0, pkgerrors.Errorf("unexpected response: %s", resp)
	}
	return i, nil
}

func parseFloatResponse(resp string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(resp), 64)
	if err != nil {
		return 0, pkgerrors.Errorf("unexpected response: %s", resp)
	}
	return f, nil
}
