package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/osoriodev/vendelo-backend/api/responses"
	"github.com/osoriodev/vendelo-backend/api/validators"
	"github.com/osoriodev/vendelo-backend/internal/distribution"
	"github.com/osoriodev/vendelo-backend/pkg/logger"
	"github.com/osoriodev/vendelo-backend/pkg/pagination"
)

type distributeRequest struct {
	LeadID   uuid.UUID `json:"lead_id" validate:"required"`
	Priority int       `json:"priority,omitempty" validate:"omitempty,min=0,max=100"`
}

type distributeResponse struct {
	Outcome    string `json:"outcome"`
	Assignment any    `json:"assignment,omitempty"`
	QueueEntry any    `json:"queue_entry,omitempty"`
}

// DistributeLead routes a decided lead to the least-loaded salesperson, or
// parks it in the waiting queue when nobody is eligible.
func DistributeLead(svc distribution.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body distributeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.DistributeDecidedLead(r.Context(), distribution.DistributeInput{
			LeadID:   body.LeadID,
			ClientID: actor.ClientID,
			Actor:    &actor,
			Priority: body.Priority,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := distributeResponse{Outcome: string(result.Outcome)}
		if result.Assignment != nil {
			resp.Assignment = result.Assignment
		}
		if result.QueueEntry != nil {
			resp.QueueEntry = result.QueueEntry
		}
		responses.WriteSuccess(w, resp)
	}
}

// ProcessQueue drains the caller's waiting queue until no eligible
// salesperson remains. The cron worker covers the scheduled runs; this
// endpoint exists for on-demand drains after staffing changes.
func ProcessQueue(svc distribution.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID, err := clientIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		drained, err := svc.DrainClientQueue(r.Context(), clientID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"drained": drained})
	}
}

// PendingQueue lists the caller's waiting leads in drain order alongside
// the total backlog size.
func PendingQueue(svc distribution.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID, err := clientIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		list, pending, err := svc.PendingQueue(r.Context(), clientID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"entries":     list.Items,
			"next_cursor": list.NextCursor,
			"pending":     pending,
		})
	}
}

// DistributionDashboard reports per-salesperson workload for the caller's
// tenant, most loaded first.
func DistributionDashboard(svc distribution.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID, err := clientIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.Dashboard(r.Context(), clientID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"salespeople": rows})
	}
}
