package daemon

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/minph/pkg/calibration"
	"github.com/charlie0129/minph/pkg/config"
	"github.com/charlie0129/minph/pkg/linear"
	"github.com/charlie0129/minph/pkg/sensor"
	"github.com/charlie0129/minph/pkg/types"
	"github.com/charlie0129/minph/pkg/version"
)

func (d *Daemon) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))

	router.GET("/calibrations", d.listCalibrations)
	router.GET("/calibrations/:ph", d.getCalibration)
	router.PUT("/calibrations/:ph", d.setCalibration)
	router.DELETE("/calibrations/:ph", d.deleteCalibration)
	router.POST("/calibrations/:ph/capture", d.captureCalibration)
	router.POST("/fit", d.fitCalibration)
	router.POST("/reload", d.reloadCalibrations)
	router.GET("/transfer", d.getTransfer)
	router.GET("/probe", d.getProbe)
	router.GET("/convert", d.convert)
	router.GET("/inverse", d.inverse)
	router.GET("/raw", d.getRaw)
	router.GET("/ph", d.getPH)
	router.GET("/samples", d.getSamples)
	router.GET("/samples/latest", d.getLatestSample)
	router.GET("/config", d.getConfig)
	router.GET("/version", getVersion)
	router.GET("/events", d.streamEvents)

	return router
}

func phParam(c *gin.Context) (float64, bool) {
	ph, err := calibration.ParsePH(c.Param("ph"))
	if err != nil {
		abort(c, err)
		return 0, false
	}
	return ph, true
}

func (d *Daemon) listCalibrations(c *gin.Context) {
	var buf bytes.Buffer
	if err := calibration.Encode(&buf, d.store.Snapshot()); err != nil {
		abort(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", buf.Bytes())
}

func (d *Daemon) getCalibration(c *gin.Context) {
	ph, ok := phParam(c)
	if !ok {
		return
	}

	raw, err := d.store.Get(ph)
	if err != nil {
		abort(c, err)
		return
	}

	c.IndentedJSON(http.StatusOK, raw)
}

func (d *Daemon) setCalibration(c *gin.Context) {
	ph, ok := phParam(c)
	if !ok {
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		abort(c, err)
		return
	}
	raw, err := calibration.ParseReading(strings.TrimSpace(string(body)))
	if err != nil {
		abort(c, err)
		return
	}

	if err := d.setPoint(ph, raw, "set"); err != nil {
		logrus.Errorf("failed to set calibration: %v", err)
		abort(c, err)
		return
	}

	c.IndentedJSON(http.StatusCreated, raw)
}

func (d *Daemon) deleteCalibration(c *gin.Context) {
	ph, ok := phParam(c)
	if !ok {
		return
	}

	if err := d.deletePoint(ph); err != nil {
		logrus.Errorf("failed to delete calibration: %v", err)
		abort(c, err)
		return
	}

	c.IndentedJSON(http.StatusOK, "deleted calibration for pH "+calibration.FormatPH(ph))
}

func (d *Daemon) captureCalibration(c *gin.Context) {
	ph, ok := phParam(c)
	if !ok {
		return
	}

	raw, err := d.capture(c.Request.Context(), ph)
	if err != nil {
		logrus.Errorf("failed to capture calibration: %v", err)
		abort(c, err)
		return
	}

	c.IndentedJSON(http.StatusCreated, raw)
}

func (d *Daemon) fitCalibration(c *gin.Context) {
	tf, err := d.fit()
	if err != nil {
		abort(c, err)
		return
	}

	c.IndentedJSON(http.StatusOK, types.Transfer{TransferFunction: tf})
}

func (d *Daemon) reloadCalibrations(c *gin.Context) {
	n, err := d.reload()
	if err != nil {
		logrus.Errorf("failed to reload calibrations: %v", err)
		abort(c, err)
		return
	}

	c.IndentedJSON(http.StatusOK, n)
}

func (d *Daemon) getTransfer(c *gin.Context) {
	tf, err := d.calibrator.TransferFunction()
	if err != nil {
		abort(c, err)
		return
	}

	c.IndentedJSON(http.StatusOK, types.Transfer{
		TransferFunction: tf,
		Stale:            d.calibrator.Stale(d.store.Version()),
	})
}

func (d *Daemon) probeParams() linear.ProbeParams {
	return linear.ProbeParams{
		ReferenceVoltage: d.conf.ReferenceVoltage(),
		AmplifierGain:    d.conf.AmplifierGain(),
		Bits:             d.conf.ADCBits(),
	}
}

func (d *Daemon) getProbe(c *gin.Context) {
	tf, err := d.calibrator.TransferFunction()
	if err != nil {
		abort(c, err)
		return
	}

	params := d.probeParams()
	health, err := linear.Probe(tf, params)
	if err != nil {
		abort(c, err)
		return
	}

	c.IndentedJSON(http.StatusOK, types.Probe{ProbeHealth: health, Params: params})
}

func (d *Daemon) convert(c *gin.Context) {
	raw, err := calibration.ParseReading(c.Query("raw"))
	if err != nil {
		abort(c, err)
		return
	}

	ph, err := d.calibrator.Convert(raw)
	if err != nil {
		abort(c, err)
		return
	}

	c.IndentedJSON(http.StatusOK, ph)
}

func (d *Daemon) inverse(c *gin.Context) {
	ph, err := calibration.ParsePH(c.Query("ph"))
	if err != nil {
		abort(c, err)
		return
	}

	raw, err := d.calibrator.Inverse(ph)
	if err != nil {
		abort(c, err)
		return
	}

	c.IndentedJSON(http.StatusOK, raw)
}

func (d *Daemon) read(c *gin.Context) (types.Reading, bool) {
	raw, err := sensor.ReadWithTimeout(c.Request.Context(), d.reader, d.conf.ReadTimeout())
	if err != nil {
		abort(c, err)
		return types.Reading{}, false
	}
	return types.Reading{Raw: raw, Time: time.Now()}, true
}

func (d *Daemon) getRaw(c *gin.Context) {
	r, ok := d.read(c)
	if !ok {
		return
	}

	if ph, err := d.calibrator.Convert(r.Raw); err == nil {
		r.PH = &ph
	}

	c.IndentedJSON(http.StatusOK, r)
}

func (d *Daemon) getPH(c *gin.Context) {
	r, ok := d.read(c)
	if !ok {
		return
	}

	ph, err := d.calibrator.Convert(r.Raw)
	if err != nil {
		abort(c, err)
		return
	}
	r.PH = &ph

	c.IndentedJSON(http.StatusOK, r)
}

func (d *Daemon) getSamples(c *gin.Context) {
	n := 0
	if s := c.Query("last"); s != "" {
		var err error
		n, err = strconv.Atoi(s)
		if err != nil || n < 0 {
			err = pkgerrors.Errorf("invalid sample count %q", s)
			c.IndentedJSON(http.StatusBadRequest, err.Error())
			_ = c.AbortWithError(http.StatusBadRequest, err)
			return
		}
	}

	c.IndentedJSON(http.StatusOK, d.recorder.Last(n))
}

func (d *Daemon) getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(d.conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}

func (d *Daemon) streamEvents(c *gin.Context) {
	ch := d.hub.Subscribe()
	defer d.hub.Unsubscribe(ch)

	c.Header("Content-Type", sse.ContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	// Send headers now so clients see the stream before the first event.
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.Render(-1, sse.Event{
				Id:    ev.ID,
				Event: ev.Name,
				Data:  string(ev.Data),
			})
			return true
		}
	})
}

// getLatestSample returns the last sample of the sampling loop without
// touching the sensor.
func (d *Daemon) getLatestSample(c *gin.Context) {
	s, ok := d.recorder.Latest()
	if !ok {
		err := pkgerrors.New("no samples recorded yet")
		c.IndentedJSON(http.StatusNotFound, err.Error())
		_ = c.AbortWithError(http.StatusNotFound, err)
		return
	}

	c.IndentedJSON(http.StatusOK, s)
}
