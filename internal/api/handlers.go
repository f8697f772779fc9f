package api

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/medtrack/internal/errors"
	"github.com/gmsas95/medtrack/internal/security"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   s.version,
		"backend":   s.backend,
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleListMedications(c *fiber.Ctx) error {
	meds := s.meds.UserMedications(c.UserContext(), c.Params("user"))
	return c.JSON(meds)
}

func (s *Server) handleGetMedication(c *fiber.Ctx) error {
	med, ok := s.meds.GetMedication(c.UserContext(), c.Params("user"), c.Params("id"))
	if !ok {
		return s.fail(c, apperrors.ErrMedicationNotFound)
	}
	return c.JSON(med)
}

func (s *Server) handleCreateMedication(c *fiber.Ctx) error {
	var req createMedicationRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, apperrors.Malformed("invalid request body"))
	}

	in, err := req.toNew()
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.inputs.ValidateFields(
		security.Field{Name: "name", Value: &in.Name},
		security.Field{Name: "dosage", Value: &in.Dosage},
		security.Field{Name: "frequency", Value: &in.Frequency},
		security.Field{Name: "notes", Value: in.Notes},
	); err != nil {
		return s.fail(c, err)
	}

	med, err := s.meds.AddMedication(c.UserContext(), c.Params("user"), in)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(med)
}

func (s *Server) handleUpdateMedication(c *fiber.Ctx) error {
	u, err := parseUpdate(c.Body())
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.inputs.ValidateFields(
		security.Field{Name: "name", Value: u.Name},
		security.Field{Name: "dosage", Value: u.Dosage},
		security.Field{Name: "frequency", Value: u.Frequency},
		security.Field{Name: "notes", Value: u.Notes},
	); err != nil {
		return s.fail(c, err)
	}

	med, err := s.meds.UpdateMedication(c.UserContext(), c.Params("user"), c.Params("id"), u)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(med)
}

func (s *Server) handleDeleteMedication(c *fiber.Ctx) error {
	ok, err := s.meds.DeleteMedication(c.UserContext(), c.Params("user"), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	if !ok {
		return s.fail(c, apperrors.ErrMedicationNotFound)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleRecordDose(c *fiber.Ctx) error {
	var req doseRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, apperrors.Malformed("invalid request body"))
	}
	in, err := req.toInput()
	if err != nil {
		return s.fail(c, err)
	}

	ctx := c.UserContext()
	user, id := c.Params("user"), c.Params("id")

	ok, err := s.meds.RecordDose(ctx, user, id, in)
	if err != nil {
		return s.fail(c, err)
	}
	if !ok {
		return s.fail(c, apperrors.ErrMedicationNotFound)
	}

	med, found := s.meds.GetMedication(ctx, user, id)
	if !found {
		// deleted between the two calls
		return s.fail(c, apperrors.ErrMedicationNotFound)
	}
	return c.Status(fiber.StatusCreated).JSON(med)
}

func (s *Server) handleOverallAdherence(c *fiber.Ctx) error {
	user := c.Params("user")
	return c.JSON(rateResponse{
		UserID:        user,
		AdherenceRate: s.engine.AdherenceRate(c.UserContext(), user, ""),
	})
}

func (s *Server) handleMedicationAdherence(c *fiber.Ctx) error {
	user, id := c.Params("user"), c.Params("id")
	rate, err := s.engine.LookupRate(c.UserContext(), user, id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(rateResponse{UserID: user, MedicationID: id, AdherenceRate: rate})
}

func (s *Server) handleDue(c *fiber.Ctx) error {
	hours := c.QueryInt("hours", int(s.window.Load()))
	if hours < 0 {
		return s.fail(c, apperrors.Malformed("hours must not be negative"))
	}

	user := c.Params("user")
	return c.JSON(dueResponse{
		UserID:      user,
		WindowHours: hours,
		Medications: s.engine.DueMedications(c.UserContext(), user, hours),
	})
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	user := c.Params("user")
	return c.JSON(statsResponse{
		UserID:      user,
		Stats:       s.engine.Stats(c.UserContext(), user),
		GeneratedAt: time.Now(),
	})
}

func (s *Server) handleReport(c *fiber.Ctx) error {
	user := c.Params("user")

	data, err := s.engine.BuildReport(c.UserContext(), user)
	if err != nil {
		s.metrics.RecordReport("no_data")
		return s.fail(c, err)
	}

	pdf, err := s.reports.RenderBytes(data)
	if err != nil {
		s.metrics.RecordReport("error")
		s.logger.Error("Failed to render report", zap.String("user_id", user), zap.Error(err))
		return s.fail(c, apperrors.Wrap(err, apperrors.ErrInternal.Code, "failed to render report"))
	}
	s.metrics.RecordReport("ok")

	filename := fmt.Sprintf("adherence-%s.pdf", data.GeneratedAt.Format("20060102-150405"))
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Send(pdf)
}
