package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"guestflow/internal/types"
)

// webhookResponse is the acknowledgment shape payment providers receive.
type webhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// webhookPayload mirrors the provider notification body. The reservation is
// resolved from metadata when present, otherwise from the payment reference.
type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		PaymentID string  `json:"payment_id"`
		Reference string  `json:"reference"`
		AmountVal float64 `json:"amount"`
		Metadata  struct {
			ReservationID int64  `json:"reservation_id"`
			Reference     string `json:"reference"`
		} `json:"metadata"`
	} `json:"data"`
}

// handlePaymentWebhook processes payment provider notifications: verify the
// signature over the raw body, resolve the reservation, record the payment,
// and on a fulfilling event hand access-code issuance to the queue.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		Error(w, r, types.NewAppError(types.ErrCodeValidationBadPayload,
			"failed to read webhook body", err))
		return
	}

	sig := r.Header.Get(s.verifier.HeaderName())
	if err := s.verifier.Verify(body, sig, s.webhookSecret.Unmask()); err != nil {
		s.logger.Warn("webhook signature rejected", "error", err)
		Error(w, r, types.NewAppError(types.ErrCodeValidationBadPayload,
			"invalid webhook signature", err))
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		Error(w, r, types.NewAppError(types.ErrCodeValidationBadPayload,
			"webhook body is not valid JSON", err))
		return
	}

	event, err := types.ParsePaymentEvent(payload.Event)
	if err != nil {
		Error(w, r, err)
		return
	}

	reservationID, err := resolveWebhookReservation(payload)
	if err != nil {
		s.logger.Warn("webhook carries no reservation", "event", string(event), "error", err)
		JSON(w, r, http.StatusBadRequest, webhookResponse{
			Success: false,
			Message: "no reservation associated with webhook",
		})
		return
	}

	res, err := s.reservations.GetByID(r.Context(), reservationID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundReservation {
			JSON(w, r, http.StatusBadRequest, webhookResponse{
				Success: false,
				Message: "no reservation associated with webhook",
			})
			return
		}
		Error(w, r, err)
		return
	}

	s.logger.Info("payment webhook received",
		"event", string(event), "reservation_id", reservationID, "payment_id", payload.Data.PaymentID)

	if event == types.PaymentPaid || event == types.PaymentCompleted {
		if err := s.reservations.MarkPaid(r.Context(), reservationID, time.Now().UTC()); err != nil {
			Error(w, r, err)
			return
		}
	}

	if event.TriggersFulfillment() {
		err := s.queue.Enqueue(r.Context(), types.JobPayload{
			Type:          types.JobIssueAccess,
			ReservationID: reservationID,
			Override:      res.ContactSnapshot(),
		})
		if err != nil {
			Error(w, r, err)
			return
		}
	}

	JSON(w, r, http.StatusOK, webhookResponse{
		Success: true,
		Message: "webhook processed",
	})
}

func resolveWebhookReservation(payload webhookPayload) (int64, error) {
	if payload.Data.Metadata.ReservationID > 0 {
		return payload.Data.Metadata.ReservationID, nil
	}
	ref := payload.Data.Reference
	if ref == "" {
		ref = payload.Data.Metadata.Reference
	}
	if ref == "" {
		return 0, types.NewAppError(types.ErrCodeValidationBadReference,
			"webhook carries neither metadata nor reference", nil)
	}
	return types.ReservationIDFromReference(ref)
}

// fulfillRequest is the optional body of the manual trigger endpoints.
type fulfillRequest struct {
	Phone *string `json:"phone,omitempty"`
	Email *string `json:"email,omitempty"`
	Name  *string `json:"name,omitempty"`
}

func (req fulfillRequest) override() *types.ContactOverride {
	if req.Phone == nil && req.Email == nil && req.Name == nil {
		return nil
	}
	return &types.ContactOverride{Phone: req.Phone, Email: req.Email, Name: req.Name}
}

// handleFulfill enqueues a full fulfillment run for a reservation, optionally
// with a contact override for this run only.
func (s *Server) handleFulfill(w http.ResponseWriter, r *http.Request) {
	reservationID, err := reservationIDParam(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	var req fulfillRequest
	if r.ContentLength > 0 {
		if err := DecodeJSON(w, r, &req); err != nil {
			Error(w, r, err)
			return
		}
	}

	if _, err := s.reservations.GetByID(r.Context(), reservationID); err != nil {
		Error(w, r, err)
		return
	}

	err = s.queue.Enqueue(r.Context(), types.JobPayload{
		Type:          types.JobFulfillReservation,
		ReservationID: reservationID,
		Override:      req.override(),
	})
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusAccepted, APIResponse{Data: map[string]any{
		"reservation_id": reservationID,
		"queued":         true,
	}})
}

// handleUpdateContact persists corrected contact details and re-runs
// fulfillment with them. The body must carry at least one contact field.
func (s *Server) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	reservationID, err := reservationIDParam(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	var req fulfillRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	override := req.override()
	if override == nil {
		Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"at least one of phone, email, name is required", nil))
		return
	}

	if _, err := s.reservations.GetByID(r.Context(), reservationID); err != nil {
		Error(w, r, err)
		return
	}

	err = s.queue.Enqueue(r.Context(), types.JobPayload{
		Type:          types.JobUpdateGuestContact,
		ReservationID: reservationID,
		Override:      override,
	})
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusAccepted, APIResponse{Data: map[string]any{
		"reservation_id": reservationID,
		"queued":         true,
	}})
}

// handleCheckIn marks the reservation checked in and queues the welcome
// message. Status regressions (e.g. checking in a checked-out reservation)
// are rejected by the store.
func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	reservationID, err := reservationIDParam(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	if err := s.reservations.AdvanceStatus(r.Context(), reservationID, types.StatusCheckedIn); err != nil {
		Error(w, r, err)
		return
	}

	err = s.queue.Enqueue(r.Context(), types.JobPayload{
		Type:          types.JobSendCheckInConfirmation,
		ReservationID: reservationID,
	})
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusAccepted, APIResponse{Data: map[string]any{
		"reservation_id": reservationID,
		"status":         types.StatusCheckedIn,
		"queued":         true,
	}})
}

// handleListNotifications returns the delivery audit log for a reservation.
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	reservationID, err := reservationIDParam(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	if _, err := s.reservations.GetByID(r.Context(), reservationID); err != nil {
		Error(w, r, err)
		return
	}

	entries, err := s.notifications.ListByReservation(r.Context(), reservationID)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: map[string]any{
		"reservation_id": reservationID,
		"notifications":  entries,
	}})
}

// healthStatus is the /health response body.
type healthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// handleHealth reports liveness of the database pool and the job queue. Any
// failing dependency degrades the overall status to a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	if err := s.db.Ping(r.Context()); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if err := s.queueHealth.Health(r.Context()); err != nil {
		checks["queue"] = err.Error()
		healthy = false
	} else {
		checks["queue"] = "ok"
	}

	status := http.StatusOK
	resp := healthStatus{Status: "ok", Checks: checks}
	if !healthy {
		status = http.StatusServiceUnavailable
		resp.Status = "degraded"
	}
	JSON(w, r, status, resp)
}

func reservationIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, types.NewAppError(types.ErrCodeValidationBadPayload,
			"reservation id must be a positive integer", err)
	}
	return id, nil
}
