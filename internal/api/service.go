// Package api serves the admin HTTP+WebSocket surface: device listing,
// get-state/set-state/power triggers, a live event tail, health, and
// Prometheus metrics. Built on gofiber/fiber, gofiber/contrib/websocket,
// and golang-jwt/jwt — the same stack the teacher's own internal/api uses.
package api

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/slassabe/iot2mqtt/internal/access"
	"github.com/slassabe/iot2mqtt/internal/directory"
	"github.com/slassabe/iot2mqtt/internal/health"
)

// Service wires the directory, accessor, health checker, and event hub
// into a runnable fiber.App.
type Service struct {
	dir       *directory.Directory
	accessor  *access.Accessor
	checker   *health.Checker
	hub       *Hub
	jwt       JWTConfig
	log       *zap.Logger
	app       *fiber.App
}

// NewService builds the fiber.App and registers every route. Call Listen
// on the returned Service to start serving.
func NewService(dir *directory.Directory, accessor *access.Accessor, checker *health.Checker, hub *Hub, jwt JWTConfig, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{dir: dir, accessor: accessor, checker: checker, hub: hub, jwt: jwt, log: log}
	s.app = fiber.New(fiber.Config{DisableStartupMessage: true})
	s.routes()
	return s
}

// App exposes the underlying fiber.App, mainly so cmd/iot2mqttd can call
// Shutdown during graceful termination.
func (s *Service) App() *fiber.App { return s.app }

// Listen blocks serving on addr.
func (s *Service) Listen(addr string) error {
	return s.app.Listen(addr)
}

func (s *Service) routes() {
	app := s.app

	app.Get("/healthz", s.handleHealthz)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/devices", s.handleListDevices)
	app.Get("/devices/:name", s.handleGetDevice)

	app.Post("/devices/:name/get-state", requireJWT(s.jwt), s.handleTriggerGetState)
	app.Post("/devices/:name/set-state", requireJWT(s.jwt), s.handleTriggerSetState)
	app.Post("/devices/:name/power", requireJWT(s.jwt), s.handleTriggerPower)

	app.Use("/events", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/events", websocket.New(s.hub.Handle))
}

func (s *Service) handleHealthz(c *fiber.Ctx) error {
	snapshot := s.checker.Snapshot()
	status := fiber.StatusOK
	if s.checker.Overall() == health.StatusUnhealthy {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(snapshot)
}

func (s *Service) handleListDevices(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"devices": s.dir.GetDevices()})
}

func (s *Service) handleGetDevice(c *fiber.Ctx) error {
	name := c.Params("name")
	d, ok := s.dir.GetDevice(name)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown device"})
	}
	return c.JSON(d)
}

func (s *Service) handleTriggerGetState(c *fiber.Ctx) error {
	name := c.Params("name")
	d, ok := s.dir.GetDevice(name)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown device"})
	}
	if err := s.accessor.GetState(d.Name, d.Protocol, d.Model); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"triggered": true})
}

type setStateRequest struct {
	State map[string]interface{} `json:"state"`
}

func (s *Service) handleTriggerSetState(c *fiber.Ctx) error {
	name := c.Params("name")
	d, ok := s.dir.GetDevice(name)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown device"})
	}
	var req setStateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := s.accessor.SetState(d.Name, d.Protocol, req.State); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"triggered": true})
}

type powerRequest struct {
	On        bool `json:"on"`
	Countdown int  `json:"countdown_seconds"`
	OnTime    int  `json:"on_time_seconds"`
	OffTime   int  `json:"off_time_seconds"`
}

func (s *Service) handleTriggerPower(c *fiber.Ctx) error {
	name := c.Params("name")
	var req powerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	s.accessor.SwitchPowerChangeByName(name,
		req.On,
		time.Duration(req.Countdown)*time.Second,
		time.Duration(req.OnTime)*time.Second,
		time.Duration(req.OffTime)*time.Second,
	)
	return c.JSON(fiber.Map{"triggered": true})
}
