package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, PATCH, DELETE, OPTIONS",
	}))

	s.app.Get("/api/health", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))

	users := s.app.Group("/api/users/:user", s.validateUser)

	users.Get("/medications", s.handleListMedications)
	users.Post("/medications", s.rateLimit, s.handleCreateMedication)
	users.Get("/medications/:id", s.handleGetMedication)
	users.Patch("/medications/:id", s.rateLimit, s.handleUpdateMedication)
	users.Delete("/medications/:id", s.rateLimit, s.handleDeleteMedication)
	users.Post("/medications/:id/doses", s.rateLimit, s.handleRecordDose)
	users.Get("/medications/:id/adherence", s.handleMedicationAdherence)

	users.Get("/adherence", s.handleOverallAdherence)
	users.Get("/due", s.handleDue)
	users.Get("/stats", s.handleStats)
	users.Get("/report", s.handleReport)

	s.app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "route not found"})
	})
}
