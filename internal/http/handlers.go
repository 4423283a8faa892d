package http

import (
	"errors"
	"net/http"

	"github.com/fyrsmithlabs/coachd/internal/coaching"
	"github.com/fyrsmithlabs/coachd/internal/feedback"
	"github.com/fyrsmithlabs/coachd/internal/insights"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return &coaching.ValidationError{Field: "body", Reason: "malformed JSON"}
	}
	return nil
}

func (s *Server) handleGetProfile(c echo.Context) error {
	p, err := s.services.Records().Profile(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) handlePutProfile(c echo.Context) error {
	var p coaching.UserProfile
	if err := bind(c, &p); err != nil {
		return err
	}
	p.UserID = userID(c)
	saved, err := s.services.Records().SaveProfile(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, saved)
}

func (s *Server) handleAddMeal(c echo.Context) error {
	var m coaching.MealRecord
	if err := bind(c, &m); err != nil {
		return err
	}
	m.UserID = userID(c)
	saved, err := s.services.Records().AddMeal(c.Request().Context(), m)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, saved)
}

func (s *Server) handleAddSleep(c echo.Context) error {
	var r coaching.SleepRecord
	if err := bind(c, &r); err != nil {
		return err
	}
	r.UserID = userID(c)
	saved, err := s.services.Records().AddSleep(c.Request().Context(), r)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, saved)
}

func (s *Server) handleAddEnergy(c echo.Context) error {
	var e coaching.EnergySample
	if err := bind(c, &e); err != nil {
		return err
	}
	e.UserID = userID(c)
	saved, err := s.services.Records().AddEnergy(c.Request().Context(), e)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, saved)
}

func (s *Server) handleAddActivity(c echo.Context) error {
	var a coaching.ActivityRecord
	if err := bind(c, &a); err != nil {
		return err
	}
	a.UserID = userID(c)
	saved, err := s.services.Records().AddActivity(c.Request().Context(), a)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, saved)
}

// handleGenerate runs the insight engine. Insights that could not be stored
// are still returned with persisted=false.
func (s *Server) handleGenerate(c echo.Context) error {
	out, err := s.services.Engine().GenerateForUser(c.Request().Context(), userID(c))
	persisted := true
	if errors.Is(err, insights.ErrPersist) {
		s.logger.Warn("insights generated but not persisted",
			zap.String("user_id", userID(c)), zap.Error(err))
		persisted = false
		err = nil
	}
	if err != nil {
		return err
	}
	if out == nil {
		out = []coaching.Insight{}
	}
	return c.JSON(http.StatusOK, GenerateResponse{Insights: out, Persisted: persisted})
}

func (s *Server) handleListInsights(c echo.Context) error {
	out, err := s.services.Insights().ListActive(c.Request().Context(), userID(c), s.now().UTC())
	if err != nil {
		return err
	}
	if out == nil {
		out = []coaching.Insight{}
	}
	return c.JSON(http.StatusOK, InsightsResponse{Insights: out})
}

func (s *Server) handleInsightFeedback(c echo.Context) error {
	var req InsightFeedbackRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	fb := coaching.InsightFeedback{
		Helpful:   req.Helpful,
		Comment:   req.Comment,
		Timestamp: s.now().UTC(),
	}
	in, err := s.services.Insights().AttachFeedback(c.Request().Context(), userID(c), c.Param("id"), fb)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, in)
}

// handleTrackInteraction records an interaction for the caller. Recording is
// best effort past validation, so the response is 202.
func (s *Server) handleTrackInteraction(c echo.Context) error {
	var in feedback.AIInteraction
	if err := bind(c, &in); err != nil {
		return err
	}
	in.UserID = userID(c)
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if err := s.services.Monitor().TrackInteraction(c.Request().Context(), in); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, TrackResponse{ID: in.ID})
}

func (s *Server) handleInteractionFeedback(c echo.Context) error {
	var fb feedback.UserFeedback
	if err := bind(c, &fb); err != nil {
		return err
	}
	if err := s.services.Monitor().ProcessFeedback(c.Request().Context(), c.Param("id"), fb); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleClarificationPerformance(c echo.Context) error {
	perf, err := s.services.Monitor().ClarificationPerformance(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, perf)
}

func (s *Server) handleReport(c echo.Context) error {
	reports, err := s.services.Monitor().GeneratePerformanceReport(c.Request().Context(), feedback.Period(c.Param("period")))
	if err != nil {
		return err
	}
	if reports == nil {
		reports = []feedback.ModelPerformanceReport{}
	}
	return c.JSON(http.StatusOK, reports)
}

func (s *Server) handleExport(c echo.Context) error {
	format := feedback.Format(c.QueryParam("format"))
	if format == "" {
		format = feedback.FormatJSON
	}
	body, err := s.services.Monitor().ExportMetrics(c.Request().Context(), format)
	if err != nil {
		return err
	}
	contentType := echo.MIMEApplicationJSON
	if format == feedback.FormatCSV {
		contentType = "text/csv"
	}
	return c.Blob(http.StatusOK, contentType, []byte(body))
}

func (s *Server) handleRealtime(c echo.Context) error {
	rm, err := s.services.Monitor().RealtimeMetrics(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rm)
}

func (s *Server) handleRegisterABTest(c echo.Context) error {
	var t feedback.ABTest
	if err := bind(c, &t); err != nil {
		return err
	}
	saved, err := s.services.Monitor().RegisterABTest(c.Request().Context(), t)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, saved)
}

func (s *Server) handleListABTests(c echo.Context) error {
	tests, err := s.services.Monitor().ABTests(c.Request().Context())
	if err != nil {
		return err
	}
	if tests == nil {
		tests = []feedback.ABTest{}
	}
	return c.JSON(http.StatusOK, tests)
}

func (s *Server) handleGetABTest(c echo.Context) error {
	t, err := s.services.Monitor().ABTest(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}
