package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/osoriodev/vendelo-backend/internal/assignment"
	"github.com/osoriodev/vendelo-backend/internal/distribution"
	"github.com/osoriodev/vendelo-backend/internal/queue"
	"github.com/osoriodev/vendelo-backend/pkg/db/models"
	"github.com/osoriodev/vendelo-backend/pkg/pagination"
)

func TestDistributeLeadReportsOutcome(t *testing.T) {
	leadID := uuid.New()
	var got distribution.DistributeInput
	svc := &fakeDistributionService{
		distributeFn: func(ctx context.Context, input distribution.DistributeInput) (*distribution.Result, error) {
			got = input
			return &distribution.Result{
				Outcome:    distribution.OutcomeAssigned,
				Assignment: &models.Assignment{ID: uuid.New(), LeadID: input.LeadID},
			}, nil
		},
	}

	body := `{"lead_id":"` + leadID.String() + `","priority":5}`
	req := authedRequest(http.MethodPost, "/api/v1/distribution/leads", body)
	resp := httptest.NewRecorder()
	DistributeLead(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if got.LeadID != leadID || got.Priority != 5 {
		t.Fatalf("unexpected input %+v", got)
	}
	if got.Actor == nil || got.Actor.ClientID != got.ClientID {
		t.Fatal("actor not propagated with tenant scope")
	}

	var envelope struct {
		Data distributeResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.Outcome != string(distribution.OutcomeAssigned) {
		t.Fatalf("unexpected outcome %s", envelope.Data.Outcome)
	}
	if envelope.Data.Assignment == nil {
		t.Fatal("expected assignment in response")
	}
}

func TestDistributeLeadQueuedOmitsAssignment(t *testing.T) {
	svc := &fakeDistributionService{
		distributeFn: func(ctx context.Context, input distribution.DistributeInput) (*distribution.Result, error) {
			return &distribution.Result{
				Outcome:    distribution.OutcomeQueued,
				QueueEntry: &models.WaitingQueueEntry{ID: uuid.New(), LeadID: input.LeadID},
			}, nil
		},
	}

	body := `{"lead_id":"` + uuid.NewString() + `"}`
	req := authedRequest(http.MethodPost, "/api/v1/distribution/leads", body)
	resp := httptest.NewRecorder()
	DistributeLead(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data distributeResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.Outcome != string(distribution.OutcomeQueued) {
		t.Fatalf("unexpected outcome %s", envelope.Data.Outcome)
	}
	if envelope.Data.Assignment != nil {
		t.Fatal("queued response must not carry an assignment")
	}
	if envelope.Data.QueueEntry == nil {
		t.Fatal("expected queue entry in response")
	}
}

func TestProcessQueueDrainsCallerTenant(t *testing.T) {
	var gotClient uuid.UUID
	svc := &fakeDistributionService{
		drainFn: func(ctx context.Context, clientID uuid.UUID) (int, error) {
			gotClient = clientID
			return 3, nil
		},
	}

	req := authedRequest(http.MethodPost, "/api/v1/distribution/queue/process", "")
	resp := httptest.NewRecorder()
	ProcessQueue(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if gotClient == uuid.Nil {
		t.Fatal("client scope not propagated")
	}
	var envelope struct {
		Data map[string]int `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data["drained"] != 3 {
		t.Fatalf("expected drained=3 got %v", envelope.Data["drained"])
	}
}

func TestPendingQueueListsBacklog(t *testing.T) {
	entryID := uuid.New()
	var gotParams pagination.Params
	svc := &fakeDistributionService{
		pendingFn: func(ctx context.Context, clientID uuid.UUID, params pagination.Params) (*queue.EntryList, int64, error) {
			gotParams = params
			return &queue.EntryList{
				Items:      []models.WaitingQueueEntry{{ID: entryID, ClientID: clientID}},
				NextCursor: "next",
			}, 7, nil
		},
	}

	req := authedRequest(http.MethodGet, "/api/v1/distribution/queue?limit=25&cursor=abc", "")
	resp := httptest.NewRecorder()
	PendingQueue(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if gotParams.Limit != 25 || gotParams.Cursor != "abc" {
		t.Fatalf("unexpected params %+v", gotParams)
	}
	var envelope struct {
		Data struct {
			Entries    []models.WaitingQueueEntry `json:"entries"`
			NextCursor string                     `json:"next_cursor"`
			Pending    int64                      `json:"pending"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(envelope.Data.Entries) != 1 || envelope.Data.Entries[0].ID != entryID {
		t.Fatalf("unexpected entries %+v", envelope.Data.Entries)
	}
	if envelope.Data.NextCursor != "next" || envelope.Data.Pending != 7 {
		t.Fatalf("unexpected page meta %+v", envelope.Data)
	}
}

func TestPendingQueueRejectsBadLimit(t *testing.T) {
	svc := &fakeDistributionService{}

	req := authedRequest(http.MethodGet, "/api/v1/distribution/queue?limit=500", "")
	resp := httptest.NewRecorder()
	PendingQueue(svc, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestDashboardReturnsRows(t *testing.T) {
	vendorID := uuid.New()
	svc := &fakeDistributionService{
		dashboardFn: func(ctx context.Context, clientID uuid.UUID) ([]assignment.DashboardRow, error) {
			return []assignment.DashboardRow{{VendorID: vendorID, Name: "Ana", Active: true, ActiveLeads: 2}}, nil
		},
	}

	req := authedRequest(http.MethodGet, "/api/v1/distribution/dashboard", "")
	resp := httptest.NewRecorder()
	DistributionDashboard(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data struct {
			Salespeople []assignment.DashboardRow `json:"salespeople"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(envelope.Data.Salespeople) != 1 || envelope.Data.Salespeople[0].VendorID != vendorID {
		t.Fatalf("unexpected rows %+v", envelope.Data.Salespeople)
	}
}
