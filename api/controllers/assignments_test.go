package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/osoriodev/vendelo-backend/api/middleware"
	"github.com/osoriodev/vendelo-backend/internal/assignment"
	"github.com/osoriodev/vendelo-backend/internal/distribution"
	"github.com/osoriodev/vendelo-backend/internal/queue"
	"github.com/osoriodev/vendelo-backend/pkg/db/models"
	"github.com/osoriodev/vendelo-backend/pkg/enums"
	pkgerrors "github.com/osoriodev/vendelo-backend/pkg/errors"
	"github.com/osoriodev/vendelo-backend/pkg/pagination"
)

type fakeDistributionService struct {
	assignFn     func(ctx context.Context, input assignment.AssignInput) (*models.Assignment, error)
	transferFn   func(ctx context.Context, input assignment.TransferInput) (*models.Assignment, error)
	concludeFn   func(ctx context.Context, input assignment.ConcludeInput) error
	distributeFn func(ctx context.Context, input distribution.DistributeInput) (*distribution.Result, error)
	drainFn      func(ctx context.Context, clientID uuid.UUID) (int, error)
	pendingFn    func(ctx context.Context, clientID uuid.UUID, params pagination.Params) (*queue.EntryList, int64, error)
	dashboardFn  func(ctx context.Context, clientID uuid.UUID) ([]assignment.DashboardRow, error)
}

func (f *fakeDistributionService) ManualAssign(ctx context.Context, input assignment.AssignInput) (*models.Assignment, error) {
	if f.assignFn != nil {
		return f.assignFn(ctx, input)
	}
	return &models.Assignment{}, nil
}

func (f *fakeDistributionService) ManualTransfer(ctx context.Context, input assignment.TransferInput) (*models.Assignment, error) {
	if f.transferFn != nil {
		return f.transferFn(ctx, input)
	}
	return &models.Assignment{}, nil
}

func (f *fakeDistributionService) ManualConclude(ctx context.Context, input assignment.ConcludeInput) error {
	if f.concludeFn != nil {
		return f.concludeFn(ctx, input)
	}
	return nil
}

func (f *fakeDistributionService) DistributeDecidedLead(ctx context.Context, input distribution.DistributeInput) (*distribution.Result, error) {
	if f.distributeFn != nil {
		return f.distributeFn(ctx, input)
	}
	return &distribution.Result{Outcome: distribution.OutcomeAssigned}, nil
}

func (f *fakeDistributionService) ProcessQueue(ctx context.Context) (*distribution.DrainSummary, error) {
	return &distribution.DrainSummary{}, nil
}

func (f *fakeDistributionService) DrainClientQueue(ctx context.Context, clientID uuid.UUID) (int, error) {
	if f.drainFn != nil {
		return f.drainFn(ctx, clientID)
	}
	return 0, nil
}

func (f *fakeDistributionService) PendingQueue(ctx context.Context, clientID uuid.UUID, params pagination.Params) (*queue.EntryList, int64, error) {
	if f.pendingFn != nil {
		return f.pendingFn(ctx, clientID, params)
	}
	return &queue.EntryList{}, 0, nil
}

func (f *fakeDistributionService) Dashboard(ctx context.Context, clientID uuid.UUID) ([]assignment.DashboardRow, error) {
	if f.dashboardFn != nil {
		return f.dashboardFn(ctx, clientID)
	}
	return nil, nil
}

type fakeAssignmentService struct {
	listAllFn      func(ctx context.Context, clientID uuid.UUID, params pagination.Params, filters assignment.ListFilters) (*assignment.AssignmentList, error)
	listByVendorFn func(ctx context.Context, vendorID, clientID uuid.UUID, params pagination.Params, filters assignment.ListFilters) (*assignment.AssignmentList, error)
	listByLeadFn   func(ctx context.Context, leadID uuid.UUID) ([]models.Assignment, error)
}

func (f *fakeAssignmentService) Assign(ctx context.Context, input assignment.AssignInput) (*models.Assignment, error) {
	return nil, nil
}

func (f *fakeAssignmentService) Transfer(ctx context.Context, input assignment.TransferInput) (*models.Assignment, error) {
	return nil, nil
}

func (f *fakeAssignmentService) Conclude(ctx context.Context, input assignment.ConcludeInput) error {
	return nil
}

func (f *fakeAssignmentService) MarkNotified(ctx context.Context, assignmentID uuid.UUID) error {
	return nil
}

func (f *fakeAssignmentService) ListByVendor(ctx context.Context, vendorID, clientID uuid.UUID, params pagination.Params, filters assignment.ListFilters) (*assignment.AssignmentList, error) {
	if f.listByVendorFn != nil {
		return f.listByVendorFn(ctx, vendorID, clientID, params, filters)
	}
	return &assignment.AssignmentList{}, nil
}

func (f *fakeAssignmentService) ListAll(ctx context.Context, clientID uuid.UUID, params pagination.Params, filters assignment.ListFilters) (*assignment.AssignmentList, error) {
	if f.listAllFn != nil {
		return f.listAllFn(ctx, clientID, params, filters)
	}
	return &assignment.AssignmentList{}, nil
}

func (f *fakeAssignmentService) ListByLead(ctx context.Context, leadID uuid.UUID) ([]models.Assignment, error) {
	if f.listByLeadFn != nil {
		return f.listByLeadFn(ctx, leadID)
	}
	return nil, nil
}

func (f *fakeAssignmentService) Dashboard(ctx context.Context, clientID uuid.UUID) ([]assignment.DashboardRow, error) {
	return nil, nil
}

func authedRequest(method, url string, body string) *http.Request {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	ctx := middleware.WithUserID(req.Context(), uuid.NewString())
	ctx = middleware.WithClientID(ctx, uuid.NewString())
	ctx = middleware.WithRole(ctx, string(enums.MemberRoleManager))
	return req.WithContext(ctx)
}

func TestManualAssignCreatesAssignment(t *testing.T) {
	leadID := uuid.New()
	vendorID := uuid.New()
	var got assignment.AssignInput
	svc := &fakeDistributionService{
		assignFn: func(ctx context.Context, input assignment.AssignInput) (*models.Assignment, error) {
			got = input
			return &models.Assignment{ID: uuid.New(), LeadID: input.LeadID, VendorID: input.VendorID}, nil
		},
	}

	body := `{"lead_id":"` + leadID.String() + `","vendor_id":"` + vendorID.String() + `"}`
	req := authedRequest(http.MethodPost, "/api/v1/assignments", body)
	resp := httptest.NewRecorder()
	ManualAssign(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if got.LeadID != leadID || got.VendorID != vendorID {
		t.Fatalf("unexpected input %+v", got)
	}
	if got.Actor.UserID == uuid.Nil || got.Actor.ClientID == uuid.Nil {
		t.Fatal("actor not seeded from context")
	}
}

func TestManualAssignReportsAlreadyAssigned(t *testing.T) {
	svc := &fakeDistributionService{
		assignFn: func(ctx context.Context, input assignment.AssignInput) (*models.Assignment, error) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "lead already has an active assignment")
		},
	}

	body := `{"lead_id":"` + uuid.NewString() + `","vendor_id":"` + uuid.NewString() + `"}`
	req := authedRequest(http.MethodPost, "/api/v1/assignments", body)
	resp := httptest.NewRecorder()
	ManualAssign(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data map[string]string `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data["status"] != "already_assigned" {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestManualAssignSurfacesInactiveVendorRejection(t *testing.T) {
	svc := &fakeDistributionService{
		assignFn: func(ctx context.Context, input assignment.AssignInput) (*models.Assignment, error) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "salesperson is inactive")
		},
	}

	body := `{"lead_id":"` + uuid.NewString() + `","vendor_id":"` + uuid.NewString() + `"}`
	req := authedRequest(http.MethodPost, "/api/v1/assignments", body)
	resp := httptest.NewRecorder()
	ManualAssign(svc, testLogger())(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d: %s", resp.Code, resp.Body.String())
	}
	if strings.Contains(resp.Body.String(), "already_assigned") {
		t.Fatal("rejection must not be reported as an assignment")
	}
}

func TestManualAssignRejectsMissingVendor(t *testing.T) {
	body := `{"lead_id":"` + uuid.NewString() + `"}`
	req := authedRequest(http.MethodPost, "/api/v1/assignments", body)
	resp := httptest.NewRecorder()
	ManualAssign(&fakeDistributionService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestManualAssignRequiresIdentity(t *testing.T) {
	body := `{"lead_id":"` + uuid.NewString() + `","vendor_id":"` + uuid.NewString() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/assignments", strings.NewReader(body))
	resp := httptest.NewRecorder()
	ManualAssign(&fakeDistributionService{}, testLogger())(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestTransferSanitizesReason(t *testing.T) {
	var got assignment.TransferInput
	svc := &fakeDistributionService{
		transferFn: func(ctx context.Context, input assignment.TransferInput) (*models.Assignment, error) {
			got = input
			return &models.Assignment{}, nil
		},
	}

	body := `{"lead_id":"` + uuid.NewString() + `","vendor_id":"` + uuid.NewString() + `","reason":"  vacation handoff  "}`
	req := authedRequest(http.MethodPost, "/api/v1/assignments/transfer", body)
	resp := httptest.NewRecorder()
	TransferAssignment(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if got.Reason == nil || *got.Reason != "vacation handoff" {
		t.Fatalf("unexpected reason %+v", got.Reason)
	}
}

func TestConcludeIdempotentWhenNothingActive(t *testing.T) {
	svc := &fakeDistributionService{
		concludeFn: func(ctx context.Context, input assignment.ConcludeInput) error {
			return pkgerrors.New(pkgerrors.CodeConflict, "lead has no active assignment")
		},
	}

	body := `{"lead_id":"` + uuid.NewString() + `"}`
	req := authedRequest(http.MethodPost, "/api/v1/assignments/conclude", body)
	resp := httptest.NewRecorder()
	ConcludeAssignment(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data map[string]bool `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data["concluded"] {
		t.Fatal("expected concluded=false")
	}
}

func TestListAssignmentsParsesFilters(t *testing.T) {
	vendorID := uuid.New()
	var gotFilters assignment.ListFilters
	var gotParams pagination.Params
	svc := &fakeAssignmentService{
		listAllFn: func(ctx context.Context, clientID uuid.UUID, params pagination.Params, filters assignment.ListFilters) (*assignment.AssignmentList, error) {
			gotParams = params
			gotFilters = filters
			return &assignment.AssignmentList{}, nil
		},
	}

	url := "/api/v1/assignments?status=active&vendor_id=" + vendorID.String() + "&limit=20&cursor=abc"
	req := authedRequest(http.MethodGet, url, "")
	resp := httptest.NewRecorder()
	ListAssignments(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if gotParams.Limit != 20 || gotParams.Cursor != "abc" {
		t.Fatalf("unexpected params %+v", gotParams)
	}
	if gotFilters.Status == nil || *gotFilters.Status != enums.AssignmentStatusActive {
		t.Fatalf("status filter not parsed: %+v", gotFilters)
	}
	if gotFilters.VendorID == nil || *gotFilters.VendorID != vendorID {
		t.Fatalf("vendor filter not parsed: %+v", gotFilters)
	}
}

func TestListAssignmentsRejectsBadStatus(t *testing.T) {
	req := authedRequest(http.MethodGet, "/api/v1/assignments?status=bogus", "")
	resp := httptest.NewRecorder()
	ListAssignments(&fakeAssignmentService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestListVendorAssignmentsRejectsBadVendor(t *testing.T) {
	req := authedRequest(http.MethodGet, "/api/v1/vendors/bad/assignments", "")
	req = addRouteParam(req, "vendorId", "bad")
	resp := httptest.NewRecorder()
	ListVendorAssignments(&fakeAssignmentService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
