package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/osoriodev/vendelo-backend/api/middleware"
	"github.com/osoriodev/vendelo-backend/api/responses"
	"github.com/osoriodev/vendelo-backend/api/validators"
	"github.com/osoriodev/vendelo-backend/internal/assignment"
	"github.com/osoriodev/vendelo-backend/internal/distribution"
	"github.com/osoriodev/vendelo-backend/pkg/enums"
	pkgerrors "github.com/osoriodev/vendelo-backend/pkg/errors"
	"github.com/osoriodev/vendelo-backend/pkg/logger"
	"github.com/osoriodev/vendelo-backend/pkg/pagination"
)

type assignRequest struct {
	LeadID   uuid.UUID `json:"lead_id" validate:"required"`
	VendorID uuid.UUID `json:"vendor_id" validate:"required"`
}

type transferRequest struct {
	LeadID   uuid.UUID `json:"lead_id" validate:"required"`
	VendorID uuid.UUID `json:"vendor_id" validate:"required"`
	Reason   *string   `json:"reason,omitempty" validate:"omitempty,max=500"`
}

type concludeRequest struct {
	LeadID uuid.UUID `json:"lead_id" validate:"required"`
	Won    bool      `json:"won"`
}

// ManualAssign hands a lead to a chosen salesperson. A lead that already
// has an active owner is reported as a no-op rather than an error so
// client retries stay harmless.
func ManualAssign(svc distribution.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body assignRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.ManualAssign(r.Context(), assignment.AssignInput{
			LeadID:   body.LeadID,
			VendorID: body.VendorID,
			Actor:    actor,
		})
		if err != nil {
			if isBenignConflict(err) {
				responses.WriteSuccess(w, map[string]any{"status": "already_assigned"})
				return
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// TransferAssignment moves a lead's active assignment to a new salesperson.
func TransferAssignment(svc distribution.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body transferRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		reason := body.Reason
		if reason != nil {
			clean := validators.SanitizeString(*reason, 500)
			reason = &clean
		}

		created, err := svc.ManualTransfer(r.Context(), assignment.TransferInput{
			LeadID:   body.LeadID,
			VendorID: body.VendorID,
			Reason:   reason,
			Actor:    actor,
		})
		if err != nil {
			if isBenignConflict(err) {
				responses.WriteSuccess(w, map[string]any{"status": "already_assigned"})
				return
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, created)
	}
}

// ConcludeAssignment closes a lead's active assignment. Concluding a lead
// with nothing active is idempotent and reports concluded=false.
func ConcludeAssignment(svc distribution.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body concludeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		err = svc.ManualConclude(r.Context(), assignment.ConcludeInput{
			LeadID: body.LeadID,
			Won:    body.Won,
			Actor:  actor,
		})
		if err != nil {
			if isBenignConflict(err) {
				responses.WriteSuccess(w, map[string]any{"concluded": false})
				return
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"concluded": true})
	}
}

// ListAssignments returns the tenant's assignments, newest first, with
// optional status and vendor filters.
func ListAssignments(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID, err := clientIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, filters, err := listQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListAll(r.Context(), clientID, params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"items":  list.Items,
			"cursor": list.NextCursor,
		})
	}
}

// ListVendorAssignments returns one salesperson's assignments within the
// caller's tenant.
func ListVendorAssignments(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID, err := clientIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		vendorID, err := uuid.Parse(chi.URLParam(r, "vendorId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vendor id"))
			return
		}

		params, filters, err := listQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListByVendor(r.Context(), vendorID, clientID, params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"items":  list.Items,
			"cursor": list.NextCursor,
		})
	}
}

// ListLeadAssignments returns the full assignment history of one lead.
func ListLeadAssignments(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		leadID, err := uuid.Parse(chi.URLParam(r, "leadId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid lead id"))
			return
		}

		rows, err := svc.ListByLead(r.Context(), leadID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": rows})
	}
}

func listQuery(r *http.Request) (pagination.Params, assignment.ListFilters, error) {
	var params pagination.Params
	var filters assignment.ListFilters

	limit, err := validators.ParseQueryInt(r, "limit", 0, 1, 100)
	if err != nil {
		return params, filters, err
	}
	params.Limit = limit
	params.Cursor = strings.TrimSpace(r.URL.Query().Get("cursor"))

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseAssignmentStatus(raw)
		if err != nil {
			return params, filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filters.Status = &status
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("vendor_id")); raw != "" {
		vendorID, err := uuid.Parse(raw)
		if err != nil {
			return params, filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid vendor filter")
		}
		filters.VendorID = &vendorID
	}
	return params, filters, nil
}

func actorFromRequest(r *http.Request) (assignment.Actor, error) {
	userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
	if err != nil {
		return assignment.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	clientID, err := clientIDFromRequest(r)
	if err != nil {
		return assignment.Actor{}, err
	}
	return assignment.Actor{
		UserID:   userID,
		ClientID: clientID,
		Role:     middleware.RoleFromContext(r.Context()),
	}, nil
}

func clientIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.ClientIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "client context missing")
	}
	clientID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid client id")
	}
	return clientID, nil
}

// isBenignConflict matches the already-owned outcomes that retries should
// see as success. Eligibility rejections (inactive salesperson) carry
// CodeStateConflict and fall through to the error writer.
func isBenignConflict(err error) bool {
	typed := pkgerrors.As(err)
	return typed != nil && typed.Code() == pkgerrors.CodeConflict
}
