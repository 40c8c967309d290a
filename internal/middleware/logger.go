package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ctf-arena/internal/logger"
)

// AccessLog writes one structured line per request.  Client addresses are
// masked; the request id comes from echo's RequestID middleware.
func AccessLog(log *zap.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req, res := c.Request(), c.Response()
			fields := []zap.Field{
				zap.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.String("route", c.Path()),
				zap.Int("status", res.Status),
				zap.Int64("bytes_out", res.Size),
				zap.Duration("latency", time.Since(start)),
				zap.String("client_ip", logger.MaskIP(c.RealIP())),
			}
			if id := userID(c); id != "anon" {
				fields = append(fields, zap.String("account_id", id))
			}

			switch {
			case err != nil:
				log.Error("request failed", append(fields, zap.Error(err))...)
			case res.Status >= 500:
				log.Error("request completed", fields...)
			default:
				log.Info("request completed", fields...)
			}
			return nil
		}
	}
}
