package server

import (
	"net/http"
	"time"

	"github.com/berfenger/homeconnect2mqtt/internal/core/domain"
	"github.com/berfenger/homeconnect2mqtt/pkg/homeconnect"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/stream/status", s.StreamStatusHandler)
	e.POST("/stream/connect", s.StreamConnectHandler)
	e.POST("/stream/disconnect", s.StreamDisconnectHandler)
	e.POST("/stream/clearratelimit", s.StreamClearRateLimitHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

// streamStatusJSON is the wire shape of a connection status snapshot.
type streamStatusJSON struct {
	State          string     `json:"state"`
	StatusText     string     `json:"status_text"`
	LastConnect    *time.Time `json:"last_connect,omitempty"`
	LastDisconnect *time.Time `json:"last_disconnect,omitempty"`
	LastEvent      *time.Time `json:"last_event,omitempty"`
	Failures       int        `json:"failures"`
	RateLimitedTil *time.Time `json:"rate_limited_until,omitempty"`
	QuotaRemaining *int       `json:"quota_remaining,omitempty"`
	QuotaLimit     *int       `json:"quota_limit,omitempty"`
}

func statusToJSON(status homeconnect.ConnStatus) streamStatusJSON {
	return streamStatusJSON{
		State:          status.State.String(),
		StatusText:     status.StatusText,
		LastConnect:    optionalTime(status.LastConnect),
		LastDisconnect: optionalTime(status.LastDisconnect),
		LastEvent:      optionalTime(status.LastEvent),
		Failures:       status.Failures,
		RateLimitedTil: optionalTime(status.RateLimitedTil),
	}
}

func (s *Server) StreamStatusHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.StreamStatusRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "stream_status: FAIL")
	}
	if response, ok := res.(domain.StreamStatusResponse); ok {
		js := statusToJSON(response.Status)
		// quota counters are -1 until a response carrying them has been seen
		if response.QuotaRemaining >= 0 {
			js.QuotaRemaining = &response.QuotaRemaining
		}
		if response.QuotaLimit >= 0 {
			js.QuotaLimit = &response.QuotaLimit
		}
		return c.JSON(http.StatusOK, js)
	}
	return c.String(http.StatusServiceUnavailable, "stream_status: FAIL")
}

func (s *Server) StreamConnectHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ConnectStreamRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "stream_connect: FAIL")
	}
	if response, ok := res.(domain.ConnectStreamResponse); ok {
		return c.JSON(http.StatusOK, statusToJSON(response.Status))
	}
	return c.String(http.StatusServiceUnavailable, "stream_connect: FAIL")
}

func (s *Server) StreamDisconnectHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.DisconnectStreamRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "stream_disconnect: FAIL")
	}
	if response, ok := res.(domain.DisconnectStreamResponse); ok {
		return c.JSON(http.StatusOK, statusToJSON(response.Status))
	}
	return c.String(http.StatusServiceUnavailable, "stream_disconnect: FAIL")
}

func (s *Server) StreamClearRateLimitHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ClearRateLimitRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "stream_clearratelimit: FAIL")
	}
	if response, ok := res.(domain.ClearRateLimitResponse); ok {
		return c.JSON(http.StatusOK, statusToJSON(response.Status))
	}
	return c.String(http.StatusServiceUnavailable, "stream_clearratelimit: FAIL")
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
