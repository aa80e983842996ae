package services

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"

	"github.com/davidmoltin/procurement-workflows/internal/blobstore"
	"github.com/davidmoltin/procurement-workflows/internal/mocks"
	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/davidmoltin/procurement-workflows/internal/repository"
	"github.com/davidmoltin/procurement-workflows/internal/textsource"
	"github.com/davidmoltin/procurement-workflows/pkg/logger"
	"github.com/davidmoltin/procurement-workflows/pkg/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const matchingReceipt = `Vendor: ACME Office Supplies
Printer paper 10 x 5.00 50.00
Toner cartridge 2 x 50.00 100.00
Total: 150.00
`

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.NotificationEvent
}

func (p *recordingPublisher) Publish(e models.NotificationEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []models.NotificationEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.NotificationEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

type harness struct {
	svc    *WorkflowService
	docs   *DocumentService
	repo   *mocks.PurchaseRequestRepository
	blobs  *blobstore.MemoryStore
	events *recordingPublisher

	staff, otherStaff, l1, l2, l2b, finance, admin models.Actor
}

func newHarness(t *testing.T, opts ...func(*WorkflowOptions)) *harness {
	t.Helper()

	options := DefaultWorkflowOptions()
	for _, o := range opts {
		o(&options)
	}

	h := &harness{
		repo:   mocks.NewPurchaseRequestRepository(),
		blobs:  blobstore.NewMemoryStore(),
		events: &recordingPublisher{},
	}
	h.svc = NewWorkflowService(h.repo, NewLocalLocker(), h.blobs, h.events, nil, logger.NewForTesting(), options)
	h.docs = NewDocumentService(h.svc, textsource.New(nil), testutil.Dec("0.01"), 1<<20)

	actor := func(role models.Role) models.Actor { return models.Actor{UserID: uuid.New(), Role: role} }
	h.staff = actor(models.RoleStaff)
	h.otherStaff = actor(models.RoleStaff)
	h.l1 = actor(models.RoleApproverLevel1)
	h.l2 = actor(models.RoleApproverLevel2)
	h.l2b = actor(models.RoleApproverLevel2)
	h.finance = actor(models.RoleFinance)
	h.admin = actor(models.RoleAdmin)
	return h
}

func createInput() *models.CreatePurchaseRequestRequest {
	return &models.CreatePurchaseRequestRequest{
		Title:       "Office supplies",
		Description: "Quarterly restock",
		Amount:      testutil.Dec("150.00"),
		Items: []models.RequestItemInput{
			{Name: "Printer paper", Quantity: 10, UnitPrice: testutil.Dec("5.00")},
			{Name: "Toner cartridge", Quantity: 2, UnitPrice: testutil.Dec("50.00")},
		},
	}
}

func (h *harness) submit(t *testing.T) *models.PurchaseRequest {
	t.Helper()
	req, err := h.svc.Submit(context.Background(), h.staff, createInput())
	require.NoError(t, err)
	return req
}

func (h *harness) approveBoth(t *testing.T, id uuid.UUID) *models.PurchaseRequest {
	t.Helper()
	ctx := context.Background()
	_, err := h.svc.Approve(ctx, h.l1, id, nil, "Within budget")
	require.NoError(t, err)
	req, err := h.svc.Approve(ctx, h.l2, id, nil, "Approved for purchase")
	require.NoError(t, err)
	return req
}

func (h *harness) stored(t *testing.T, id uuid.UUID) *models.PurchaseRequest {
	t.Helper()
	req, err := h.repo.GetRequest(context.Background(), id)
	require.NoError(t, err)
	return req
}

func levelPtr(l models.ApprovalLevel) *models.ApprovalLevel { return &l }

func assertConflict(t *testing.T, err error, contains string) *StateConflictError {
	t.Helper()
	var conflict *StateConflictError
	require.True(t, errors.As(err, &conflict), "expected StateConflictError, got %v", err)
	if contains != "" {
		assert.Contains(t, conflict.Message, contains)
	}
	return conflict
}

func assertPermission(t *testing.T, err error) {
	t.Helper()
	var perm *PermissionError
	require.True(t, errors.As(err, &perm), "expected PermissionError, got %v", err)
}

func assertValidation(t *testing.T, err error, field string) *ValidationError {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	assert.Equal(t, field, verr.Field)
	return verr
}

func TestSubmit(t *testing.T) {
	h := newHarness(t)

	req := h.submit(t)

	assert.Equal(t, models.StatusPending, req.Status)
	assert.True(t, req.RequiresLevel1Approval)
	assert.True(t, req.RequiresLevel2Approval)
	assert.False(t, req.Level1Approved)
	assert.False(t, req.Level2Approved)
	assert.Equal(t, h.staff.UserID, req.CreatedBy)
	assert.Equal(t, 1, req.Version)
	require.Len(t, req.Items, 2)
	assert.True(t, testutil.Dec("50.00").Equal(req.Items[0].TotalPrice))
	assert.True(t, testutil.Dec("100.00").Equal(req.Items[1].TotalPrice))

	require.Len(t, h.events.events, 1)
	assert.Equal(t, models.EventAwaitingApproval, h.events.events[0].Type)
	assert.Equal(t, models.RoleApproverLevel1, h.events.events[0].AwaitingRole)
}

func TestSubmit_Validation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*models.CreatePurchaseRequestRequest)
		field  string
	}{
		{"missing title", func(r *models.CreatePurchaseRequestRequest) { r.Title = "" }, "title"},
		{"zero amount", func(r *models.CreatePurchaseRequestRequest) { r.Amount = testutil.Dec("0") }, "amount"},
		{"negative amount", func(r *models.CreatePurchaseRequestRequest) { r.Amount = testutil.Dec("-5") }, "amount"},
		{"no items", func(r *models.CreatePurchaseRequestRequest) { r.Items = nil }, "items"},
		{"zero quantity", func(r *models.CreatePurchaseRequestRequest) { r.Items[0].Quantity = 0 }, "items[0].quantity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			input := createInput()
			tt.modify(input)

			_, err := h.svc.Submit(context.Background(), h.staff, input)
			assertValidation(t, err, tt.field)
			assert.Empty(t, h.events.events)
		})
	}
}

func TestSubmit_RoleNotAllowed(t *testing.T) {
	h := newHarness(t)

	for _, actor := range []models.Actor{h.l1, h.l2, h.finance} {
		_, err := h.svc.Submit(context.Background(), actor, createInput())
		assertPermission(t, err)
	}

	_, err := h.svc.Submit(context.Background(), h.admin, createInput())
	assert.NoError(t, err)
}

// Scenario A: full two-level approval generates a purchase order
func TestApprove_HappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.submit(t)
	h.events.reset()

	afterL1, err := h.svc.Approve(ctx, h.l1, req.ID, levelPtr(models.LevelOne), "Within budget")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, afterL1.Status)
	assert.True(t, afterL1.Level1Approved)
	assert.False(t, afterL1.Level2Approved)
	assert.Nil(t, afterL1.PurchaseOrderData)

	final, err := h.svc.Approve(ctx, h.l2, req.ID, levelPtr(models.LevelTwo), "Approved for purchase")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, final.Status)
	assert.True(t, final.Level1Approved)
	assert.True(t, final.Level2Approved)

	require.NotNil(t, final.PurchaseOrderData)
	po := final.PurchaseOrderData
	assert.Regexp(t, regexp.MustCompile(`^PO-[0-9A-F]{8}-[0-9]{8}$`), po.PONumber)
	assert.True(t, testutil.Dec("150.00").Equal(po.TotalAmount))
	assert.Len(t, po.Items, 2)
	require.NotNil(t, final.PurchaseOrderKey)

	obj, err := h.blobs.Get(ctx, *final.PurchaseOrderKey)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", obj.ContentType)

	stored := h.stored(t, req.ID)
	require.Len(t, stored.Approvals, 2)
	assert.Equal(t, models.LevelOne, stored.Approvals[0].Level)
	assert.Equal(t, models.LevelTwo, stored.Approvals[1].Level)
	assert.Equal(t, models.ActionApproved, stored.Approvals[1].Action)
	assert.Equal(t, 3, stored.Version)

	assert.Equal(t, []models.NotificationEventType{
		models.EventAwaitingApproval,
		models.EventApproved,
		models.EventAwaitingApproval,
	}, h.events.types())
}

// Scenario B: a level 1 rejection ends the workflow
func TestReject_Level1EndsWorkflow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.submit(t)

	rejected, err := h.svc.Reject(ctx, h.l1, req.ID, nil, "Budget exceeded")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)
	assert.False(t, rejected.Level1Approved)
	require.Len(t, rejected.Approvals, 1)
	assert.Equal(t, models.ActionRejected, rejected.Approvals[0].Action)
	assert.Equal(t, "Budget exceeded", rejected.Approvals[0].Comments)

	_, err = h.svc.Approve(ctx, h.l2, req.ID, nil, "Looks fine")
	assertConflict(t, err, "")

	_, err = h.svc.Approve(ctx, h.l1, req.ID, nil, "Changed my mind")
	assertConflict(t, err, "")

	assert.Equal(t, models.StatusRejected, h.stored(t, req.ID).Status)
}

// Scenario C: levels must be approved in order
func TestApprove_LevelOrdering(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.submit(t)

	_, err := h.svc.Approve(ctx, h.l2, req.ID, nil, "Skipping ahead")
	assertConflict(t, err, "level 1 not yet approved")
	assert.Len(t, h.stored(t, req.ID).Approvals, 0)

	_, err = h.svc.Approve(ctx, h.l1, req.ID, nil, "Within budget")
	require.NoError(t, err)

	other := models.Actor{UserID: uuid.New(), Role: models.RoleApproverLevel1}
	_, err = h.svc.Approve(ctx, other, req.ID, nil, "Me too")
	assertConflict(t, err, "level 1 already approved")
}

func TestApprove_LevelMustMatchRole(t *testing.T) {
	h := newHarness(t)
	req := h.submit(t)

	_, err := h.svc.Approve(context.Background(), h.l2, req.ID, levelPtr(models.LevelOne), "Wrong level")
	assertPermission(t, err)

	_, err = h.svc.Approve(context.Background(), h.l1, req.ID, levelPtr(models.LevelAdminOverride), "Nope")
	assertValidation(t, err, "level")
}

func TestApprove_AlreadyActed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.submit(t)

	_, err := h.svc.Approve(ctx, h.l1, req.ID, nil, "Within budget")
	require.NoError(t, err)

	_, err = h.svc.Reject(ctx, h.l1, req.ID, nil, "Second thoughts")
	assertConflict(t, err, "already acted")
}

// Scenario E: staff and finance cannot approve
func TestApprove_PermissionDenied(t *testing.T) {
	h := newHarness(t)
	req := h.submit(t)

	for _, actor := range []models.Actor{h.staff, h.finance} {
		_, err := h.svc.Approve(context.Background(), actor, req.ID, nil, "Please")
		assertPermission(t, err)
	}

	_, err := h.svc.Approve(context.Background(), h.admin, req.ID, nil, "Admin approval")
	assertPermission(t, err)
	assert.Contains(t, err.Error(), "override")

	stored := h.stored(t, req.ID)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Empty(t, stored.Approvals)
}

func TestApprove_CommentsRequired(t *testing.T) {
	h := newHarness(t)
	req := h.submit(t)

	_, err := h.svc.Approve(context.Background(), h.l1, req.ID, nil, "   ")
	assertValidation(t, err, "comments")

	_, err = h.svc.Reject(context.Background(), h.l1, req.ID, nil, "")
	assertValidation(t, err, "comments")

	_, err = h.svc.Cancel(context.Background(), h.finance, req.ID, "")
	assertValidation(t, err, "comments")

	assert.Equal(t, 1, h.stored(t, req.ID).Version)
}

func TestApprove_NotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Approve(context.Background(), h.l1, uuid.New(), nil, "Ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOverrideApprove(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.submit(t)

	approved, err := h.svc.OverrideApprove(ctx, h.admin, req.ID, "Urgent purchase")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)
	assert.True(t, approved.Level1Approved)
	assert.True(t, approved.Level2Approved)
	require.NotNil(t, approved.PurchaseOrderData)
	require.Len(t, approved.Approvals, 1)
	assert.Equal(t, models.LevelAdminOverride, approved.Approvals[0].Level)

	_, err = h.svc.OverrideApprove(ctx, h.admin, req.ID, "Again")
	assertConflict(t, err, "")
}

func TestOverrideApprove_FromPendingL2(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.submit(t)

	_, err := h.svc.Approve(ctx, h.l1, req.ID, nil, "Within budget")
	require.NoError(t, err)

	approved, err := h.svc.OverrideApprove(ctx, h.admin, req.ID, "Expedite")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)
	assert.Len(t, approved.Approvals, 2)
}

func TestOverride_AdminOnly(t *testing.T) {
	h := newHarness(t)
	req := h.submit(t)

	_, err := h.svc.OverrideApprove(context.Background(), h.l2, req.ID, "Let me")
	assertPermission(t, err)

	_, err = h.svc.OverrideReject(context.Background(), h.finance, req.ID, "Let me")
	assertPermission(t, err)
}

func TestOverrideReject(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.submit(t)

	rejected, err := h.svc.OverrideReject(ctx, h.admin, req.ID, "Duplicate request")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)
	assert.Equal(t, models.LevelAdminOverride, rejected.Approvals[0].Level)

	_, err = h.svc.OverrideReject(ctx, h.admin, req.ID, "Again")
	assertConflict(t, err, "")
}

func TestCancel(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, h *harness, id uuid.UUID)
	}{
		{"pending level 1", func(t *testing.T, h *harness, id uuid.UUID) {}},
		{"pending level 2", func(t *testing.T, h *harness, id uuid.UUID) {
			_, err := h.svc.Approve(context.Background(), h.l1, id, nil, "ok")
			require.NoError(t, err)
		}},
		{"approved", func(t *testing.T, h *harness, id uuid.UUID) {
			h.approveBoth(t, id)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			req := h.submit(t)
			tt.prepare(t, h, req.ID)
			before := h.stored(t, req.ID)

			cancelled, err := h.svc.Cancel(context.Background(), h.finance, req.ID, "Receipt does not reconcile")
			require.NoError(t, err)
			assert.Equal(t, models.StatusCancelled, cancelled.Status)
			assert.Equal(t, before.Level1Approved, cancelled.Level1Approved)
			assert.Equal(t, before.Level2Approved, cancelled.Level2Approved)
			assert.Equal(t, before.PurchaseOrderData != nil, cancelled.PurchaseOrderData != nil)

			last := cancelled.Approvals[len(cancelled.Approvals)-1]
			assert.Equal(t, models.ActionCancelled, last.Action)
			assert.Equal(t, models.LevelFinanceOverride, last.Level)
		})
	}
}

func TestCancel_Rules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.submit(t)

	_, err := h.svc.Cancel(ctx, h.staff, req.ID, "Never mind")
	assertPermission(t, err)
	_, err = h.svc.Cancel(ctx, h.l2, req.ID, "Never mind")
	assertPermission(t, err)

	cancelled, err := h.svc.Cancel(ctx, h.admin, req.ID, "Admin cancel")
	require.NoError(t, err)
	last := cancelled.Approvals[len(cancelled.Approvals)-1]
	assert.Equal(t, models.LevelAdminOverride, last.Level)
	assert.Equal(t, models.ActionCancelled, last.Action)

	_, err = h.svc.Cancel(ctx, h.finance, req.ID, "Twice")
	assertConflict(t, err, "")

	rejected := h.submit(t)
	_, err = h.svc.Reject(ctx, h.l1, rejected.ID, nil, "No")
	require.NoError(t, err)
	_, err = h.svc.Cancel(ctx, h.finance, rejected.ID, "Cleanup")
	assertConflict(t, err, "")
}

func TestApprove_PurchaseOrderIsAtomic(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.submit(t)

	_, err := h.svc.Approve(ctx, h.l1, req.ID, nil, "Within budget")
	require.NoError(t, err)
	h.events.reset()

	h.repo.FailSave = errors.New("connection reset")
	_, err = h.svc.Approve(ctx, h.l2, req.ID, nil, "Approved for purchase")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	stored := h.stored(t, req.ID)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.False(t, stored.Level2Approved)
	assert.Nil(t, stored.PurchaseOrderData)
	assert.Nil(t, stored.PurchaseOrderKey)
	assert.Len(t, stored.Approvals, 1)
	assert.Equal(t, 0, h.blobs.Len())
	assert.Empty(t, h.events.types())

	h.repo.FailSave = nil
	approved, err := h.svc.Approve(ctx, h.l2, req.ID, nil, "Retry")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)
	assert.Equal(t, 1, h.blobs.Len())
}

func TestApprove_ConflictReportsStoredState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.submit(t)

	_, err := h.svc.Approve(ctx, h.l1, req.ID, nil, "Within budget")
	require.NoError(t, err)
	before := h.stored(t, req.ID)

	h.repo.FailSave = repository.ErrVersionConflict
	_, err = h.svc.Approve(ctx, h.l2, req.ID, nil, "Approved for purchase")
	conflict := assertConflict(t, err, "modified concurrently")

	// the final approval was rolled back, so the payload must not show it
	assert.Equal(t, models.StatusPending, conflict.Status)
	assert.True(t, conflict.Level1Approved)
	assert.False(t, conflict.Level2Approved)
	assert.Equal(t, before.Version, conflict.Version)
	assert.Equal(t, 0, h.blobs.Len())
}

func TestApprove_ConcurrentLevel2(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.submit(t)

	_, err := h.svc.Approve(ctx, h.l1, req.ID, nil, "Within budget")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, actor := range []models.Actor{h.l2, h.l2b} {
		wg.Add(1)
		go func(i int, actor models.Actor) {
			defer wg.Done()
			_, errs[i] = h.svc.Approve(ctx, actor, req.ID, nil, "Approved")
		}(i, actor)
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		var conflict *StateConflictError
		switch {
		case err == nil:
			succeeded++
		case errors.As(err, &conflict):
			conflicted++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)

	stored := h.stored(t, req.ID)
	assert.Len(t, stored.Approvals, 2)
	assert.Equal(t, 1, h.blobs.Len())
}

func TestProformaGate(t *testing.T) {
	tests := []struct {
		name     string
		proforma string
		enforce  bool
		wantErr  bool
	}{
		{"matching proforma", matchingReceipt, true, false},
		{"amount off by more than tolerance", "Vendor: ACME\nPrinter paper 10 x 5.00 50.00\nToner cartridge 2 x 50.00 100.00\nTotal: 180.00\n", true, true},
		{"missing item", "Vendor: ACME\nPrinter paper 10 x 5.00 50.00\nTotal: 150.00\n", true, true},
		{"mismatch with enforcement off", "Vendor: ACME\nTotal: 999.00\n", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(o *WorkflowOptions) { o.EnforceProformaMatch = tt.enforce })
			ctx := context.Background()
			req := h.submit(t)

			_, err := h.svc.Approve(ctx, h.l1, req.ID, nil, "Within budget")
			require.NoError(t, err)
			_, err = h.docs.SubmitProforma(ctx, h.staff, req.ID, Upload{Filename: "proforma.txt", Data: []byte(tt.proforma)})
			require.NoError(t, err)

			_, err = h.svc.Approve(ctx, h.l2, req.ID, nil, "Approved")
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			verr := assertValidation(t, err, "proforma")
			assert.NotEmpty(t, verr.Details)

			stored := h.stored(t, req.ID)
			assert.Equal(t, models.StatusPending, stored.Status)
			assert.False(t, stored.Level2Approved)

			// override skips the gate
			_, err = h.svc.OverrideApprove(ctx, h.admin, req.ID, "Vendor confirmed by phone")
			require.NoError(t, err)
		})
	}
}

func TestUpdate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.submit(t)

	input := &models.UpdatePurchaseRequestRequest{
		Title:  "Office supplies (revised)",
		Amount: testutil.Dec("60.00"),
		Items: []models.RequestItemInput{
			{Name: "Printer paper", Quantity: 12, UnitPrice: testutil.Dec("5.00")},
		},
	}

	_, err := h.svc.Update(ctx, h.otherStaff, req.ID, input)
	assertPermission(t, err)

	updated, err := h.svc.Update(ctx, h.staff, req.ID, input)
	require.NoError(t, err)
	assert.Equal(t, "Office supplies (revised)", updated.Title)
	assert.True(t, testutil.Dec("60.00").Equal(updated.Amount))

	stored := h.stored(t, req.ID)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, 12, stored.Items[0].Quantity)
	assert.Equal(t, 2, stored.Version)

	_, err = h.svc.Approve(ctx, h.l1, req.ID, nil, "ok")
	require.NoError(t, err)
	_, err = h.svc.Update(ctx, h.staff, req.ID, input)
	assertConflict(t, err, "")
}

func TestDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req := h.submit(t)
	_, err := h.docs.SubmitProforma(ctx, h.staff, req.ID, Upload{Filename: "p.txt", Data: []byte(matchingReceipt)})
	require.NoError(t, err)
	require.Equal(t, 1, h.blobs.Len())

	assertPermission(t, h.svc.Delete(ctx, h.otherStaff, req.ID))
	assertPermission(t, h.svc.Delete(ctx, h.l1, req.ID))

	require.NoError(t, h.svc.Delete(ctx, h.staff, req.ID))
	assert.Equal(t, 0, h.blobs.Len())
	assert.ErrorIs(t, h.svc.Delete(ctx, h.staff, req.ID), ErrNotFound)

	reviewed := h.submit(t)
	_, err = h.svc.Reject(ctx, h.l1, reviewed.ID, nil, "No")
	require.NoError(t, err)
	assertConflict(t, h.svc.Delete(ctx, h.staff, reviewed.ID), "")
}

func TestGet_Visibility(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.submit(t)

	for _, actor := range []models.Actor{h.staff, h.l1, h.admin} {
		_, err := h.svc.Get(ctx, actor, req.ID)
		assert.NoError(t, err)
	}
	for _, actor := range []models.Actor{h.otherStaff, h.l2, h.finance} {
		_, err := h.svc.Get(ctx, actor, req.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	}

	h.approveBoth(t, req.ID)
	_, err := h.svc.Get(ctx, h.finance, req.ID)
	assert.NoError(t, err)
	_, err = h.svc.Get(ctx, h.l1, req.ID)
	assert.NoError(t, err, "level 1 approver keeps access to requests they reviewed")
}

func TestList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		h.submit(t)
	}

	resp, err := h.svc.List(ctx, h.staff, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.Total)
	assert.Equal(t, 20, resp.Limit)
	assert.Len(t, resp.Requests, 3)

	resp, err = h.svc.List(ctx, h.staff, nil, 500, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, resp.Limit)

	resp, err = h.svc.List(ctx, h.otherStaff, nil, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), resp.Total)
	assert.NotNil(t, resp.Requests)

	bad := models.RequestStatus("archived")
	_, err = h.svc.List(ctx, h.staff, &bad, 10, 0)
	assertValidation(t, err, "status")
}
