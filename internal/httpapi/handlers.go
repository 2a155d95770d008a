package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/outreachd/internal/admission"
	"github.com/fyrsmithlabs/outreachd/internal/store"
)

// SubmitUpdateRequest is the JSON body for POST /api/v1/updates.
type SubmitUpdateRequest struct {
	ClientID         string         `json:"client_id"`
	Capability       string         `json:"capability"`
	Source           string         `json:"source"`
	Payload          map[string]any `json:"payload"`
	Confidence       float64        `json:"confidence"`
	RequiresApproval bool           `json:"requires_approval"`
}

// SubmitUpdateResponse reports the admission outcome.
type SubmitUpdateResponse struct {
	UpdateID int64  `json:"update_id"`
	Applied  bool   `json:"applied"`
	Status   string `json:"status"`
}

// ApproveRequest is the JSON body for approving a pending update.
type ApproveRequest struct {
	ApprovedBy string `json:"approved_by"`
}

// ApproveResponse reports whether the approval applied an update.
type ApproveResponse struct {
	UpdateID int64 `json:"update_id"`
	Applied  bool  `json:"applied"`
}

// PendingUpdate is the JSON shape of a queued approval.
type PendingUpdate struct {
	ID         int64          `json:"id"`
	ClientID   string         `json:"client_id"`
	Capability string         `json:"capability"`
	Source     string         `json:"source"`
	Payload    map[string]any `json:"payload"`
	Confidence float64        `json:"confidence"`
	CreatedAt  time.Time      `json:"created_at"`
}

// RecordMetricRequest is the JSON body for recording a performance
// metric against a client context.
type RecordMetricRequest struct {
	MetricName string  `json:"metric_name"`
	Value      float64 `json:"value"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleGetContext(c echo.Context) error {
	clientID := c.Param("client_id")
	capability := c.Param("capability")

	doc, err := s.registry.Contexts().GetContext(c.Request().Context(), clientID, capability)
	if err != nil {
		s.logger.Error("context fetch failed",
			zap.String("client_id", clientID),
			zap.String("capability", capability),
			zap.Error(err),
		)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to fetch context"})
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *Server) handleSubmitUpdate(c echo.Context) error {
	var req SubmitUpdateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	source, err := admission.ParseSource(req.Source)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	update := &admission.Update{
		ClientID:         req.ClientID,
		Capability:       req.Capability,
		Source:           source,
		Payload:          store.Document(req.Payload),
		Confidence:       req.Confidence,
		RequiresApproval: req.RequiresApproval,
	}
	applied, err := s.registry.Admission().SubmitUpdate(c.Request().Context(), update)
	if err != nil {
		var verr *admission.ValidationError
		if errors.As(err, &verr) {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: verr.Error()})
		}
		s.logger.Error("update submission failed",
			zap.String("client_id", req.ClientID),
			zap.Error(err),
		)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to submit update"})
	}

	status := "queued"
	if applied {
		status = "applied"
	}
	return c.JSON(http.StatusOK, SubmitUpdateResponse{
		UpdateID: update.ID,
		Applied:  applied,
		Status:   status,
	})
}

func (s *Server) handleListApprovals(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
		}
		limit = parsed
	}

	pending, err := s.registry.Admission().ListPendingApprovals(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error("listing pending approvals failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to list approvals"})
	}

	out := make([]PendingUpdate, 0, len(pending))
	for _, u := range pending {
		out = append(out, PendingUpdate{
			ID:         u.ID,
			ClientID:   u.ClientID,
			Capability: u.Capability,
			Source:     u.Source.String(),
			Payload:    u.Payload,
			Confidence: u.Confidence,
			CreatedAt:  u.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleApprove(c echo.Context) error {
	updateID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid update id"})
	}

	var req ApproveRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	applied, err := s.registry.Admission().ApproveUpdate(c.Request().Context(), updateID, req.ApprovedBy)
	if err != nil {
		s.logger.Error("approval failed",
			zap.Int64("update_id", updateID),
			zap.Error(err),
		)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to approve update"})
	}
	if !applied {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "no pending update with that id"})
	}
	return c.JSON(http.StatusOK, ApproveResponse{UpdateID: updateID, Applied: true})
}

func (s *Server) handleRecordMetric(c echo.Context) error {
	clientID := c.Param("client_id")
	capability := c.Param("capability")

	var req RecordMetricRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if req.MetricName == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "metric_name is required"})
	}

	if err := s.registry.Contexts().RecordMetric(c.Request().Context(), clientID, capability, req.MetricName, req.Value); err != nil {
		s.logger.Error("recording metric failed",
			zap.String("client_id", clientID),
			zap.String("metric_name", req.MetricName),
			zap.Error(err),
		)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to record metric"})
	}
	return c.NoContent(http.StatusNoContent)
}
