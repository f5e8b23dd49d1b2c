package daemon

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/minph/pkg/calibration"
	"github.com/charlie0129/minph/pkg/sensor"
)

// Logger is the logrus logger handler
func ginLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// other handler can change c.Path so:
		path := c.Request.URL.Path
		start := time.Now()
		c.Next()
		stop := time.Since(start)
		latency := int(math.Ceil(float64(stop.Nanoseconds()) / 1000000.0))
		statusCode := c.Writer.Status()
		dataLength := c.Writer.Size()
		if dataLength < 0 {
			dataLength = 0
		}

		entry := logger.WithFields(logrus.Fields{
			"statusCode": statusCode,
			"latency":    latency, // time to process
			"method":     c.Request.Method,
			"path":       path,
			"dataLength": dataLength,
		})

		if len(c.Errors) > 0 {
			entry.Error(c.Errors.ByType(gin.ErrorTypePrivate).String())
		} else {
			msg := fmt.Sprintf("%s %s %d (%dms)", c.Request.Method, path, statusCode, latency)
			//nolint:gocritic
			if statusCode >= http.StatusInternalServerError {
				entry.Error(msg)
			} else if statusCode >= http.StatusBadRequest {
				entry.Warn(msg)
			} else {
				entry.Debug(msg)
			}
		}
	}
}

// statusFor maps an error to the HTTP status the API reports it with.
func statusFor(err error) int {
	switch {
	case errors.Is(err, calibration.ErrStorage):
		return http.StatusInternalServerError
	case errors.Is(err, calibration.ErrInvalidReading), errors.Is(err, calibration.ErrInvalidPH):
		return http.StatusBadRequest
	case errors.Is(err, calibration.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, calibration.ErrNotCalibrated):
		return http.StatusConflict
	case errors.Is(err, calibration.ErrDegenerateCalibration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, sensor.ErrIO):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// abort writes err as a JSON string and records it for ginLogger.
func abort(c *gin.Context, err error) {
	code := statusFor(err)
	c.IndentedJSON(code, err.Error())
	_ = c.AbortWithError(code, err)
}
