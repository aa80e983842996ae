package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/davidmoltin/procurement-workflows/internal/blobstore"
	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/davidmoltin/procurement-workflows/internal/policy"
	"github.com/davidmoltin/procurement-workflows/internal/purchaseorder"
	"github.com/davidmoltin/procurement-workflows/internal/reconciliation"
	"github.com/davidmoltin/procurement-workflows/internal/repository"
	"github.com/davidmoltin/procurement-workflows/pkg/logger"
	"github.com/davidmoltin/procurement-workflows/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100

	purchaseOrderPrefix = "purchase_orders"
)

// EventPublisher receives notification events after a transition commits.
// Publish must not block.
type EventPublisher interface {
	Publish(event models.NotificationEvent)
}

// WorkflowOptions tunes the approval workflow
type WorkflowOptions struct {
	ProformaTolerance    decimal.Decimal
	EnforceProformaMatch bool
}

// DefaultWorkflowOptions returns the production defaults
func DefaultWorkflowOptions() WorkflowOptions {
	return WorkflowOptions{
		ProformaTolerance:    reconciliation.DefaultProformaTolerance,
		EnforceProformaMatch: true,
	}
}

// WorkflowService owns the purchase request state machine. It is the only
// writer of requests and their approval records.
type WorkflowService struct {
	repo      repository.PurchaseRequestRepository
	locker    Locker
	blobs     blobstore.Store
	generator *purchaseorder.Generator
	events    EventPublisher
	metrics   *metrics.Metrics
	logger    *logger.Logger
	opts      WorkflowOptions
}

// NewWorkflowService creates a new workflow service. events and m may be nil.
func NewWorkflowService(
	repo repository.PurchaseRequestRepository,
	locker Locker,
	blobs blobstore.Store,
	events EventPublisher,
	m *metrics.Metrics,
	log *logger.Logger,
	opts WorkflowOptions,
) *WorkflowService {
	return &WorkflowService{
		repo:      repo,
		locker:    locker,
		blobs:     blobs,
		generator: purchaseorder.NewGenerator(),
		events:    events,
		metrics:   m,
		logger:    log,
		opts:      opts,
	}
}

// Submit creates a pending purchase request owned by the actor
func (s *WorkflowService) Submit(ctx context.Context, actor models.Actor, input *models.CreatePurchaseRequestRequest) (*models.PurchaseRequest, error) {
	start := time.Now()

	if d := policy.Decide(actor.Role, policy.ActionSubmit, policy.StateNone); !d.Allowed {
		err := &PermissionError{Action: string(policy.ActionSubmit), Role: actor.Role, Message: d.Message}
		s.record(policy.ActionSubmit, actor, uuid.Nil, start, err)
		return nil, err
	}
	if err := validateInput(input); err != nil {
		s.record(policy.ActionSubmit, actor, uuid.Nil, start, err)
		return nil, err
	}

	now := time.Now().UTC()
	req := &models.PurchaseRequest{
		ID:                     uuid.New(),
		Title:                  strings.TrimSpace(input.Title),
		Description:            strings.TrimSpace(input.Description),
		Amount:                 input.Amount,
		Status:                 models.StatusPending,
		CreatedBy:              actor.UserID,
		RequiresLevel1Approval: true,
		RequiresLevel2Approval: true,
		Version:                1,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	req.SetItems(input.Items)

	if err := s.repo.CreateRequest(ctx, req); err != nil {
		err = fmt.Errorf("failed to create purchase request: %w", err)
		s.record(policy.ActionSubmit, actor, req.ID, start, err)
		return nil, err
	}

	s.record(policy.ActionSubmit, actor, req.ID, start, nil)
	s.publish(awaiting(req, actor, models.RoleApproverLevel1))
	return req, nil
}

// Get returns a request if the actor may see it
func (s *WorkflowService) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.PurchaseRequest, error) {
	req, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, nil)
	}
	if !policy.CanView(actor, req) {
		return nil, ErrNotFound
	}
	return req, nil
}

// List returns the requests visible to the actor
func (s *WorkflowService) List(ctx context.Context, actor models.Actor, status *models.RequestStatus, limit, offset int) (*models.PurchaseRequestListResponse, error) {
	if status != nil && !status.Valid() {
		return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", *status)}
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	requests, total, err := s.repo.ListRequests(ctx, models.PurchaseRequestFilter{
		Status: status,
		Viewer: actor,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list purchase requests: %w", err)
	}
	if requests == nil {
		requests = []*models.PurchaseRequest{}
	}

	return &models.PurchaseRequestListResponse{
		Requests: requests,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}, nil
}

// Update replaces the editable fields of a request nobody has reviewed yet
func (s *WorkflowService) Update(ctx context.Context, actor models.Actor, id uuid.UUID, input *models.UpdatePurchaseRequestRequest) (*models.PurchaseRequest, error) {
	if err := validateInput(input); err != nil {
		s.record(policy.ActionUpdate, actor, id, time.Now(), err)
		return nil, err
	}

	return s.transition(ctx, actor, id, transitionStep{
		action:    policy.ActionUpdate,
		ownerOnly: true,
		apply: func(tx *txn) error {
			if len(tx.req.Approvals) > 0 {
				return newStateConflict(&tx.loaded, "request already has approval records")
			}
			tx.req.Title = strings.TrimSpace(input.Title)
			tx.req.Description = strings.TrimSpace(input.Description)
			tx.req.Amount = input.Amount
			tx.req.SetItems(input.Items)
			return tx.store.ReplaceItems(tx.ctx, tx.req.ID, tx.req.Items)
		},
	})
}

// Delete removes a request nobody has reviewed yet, along with its uploaded documents
func (s *WorkflowService) Delete(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	start := time.Now()

	release, err := s.lock(ctx, id)
	if err != nil {
		s.record(policy.ActionDelete, actor, id, start, err)
		return err
	}
	defer release()

	req, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		err = mapStoreError(err, nil)
		s.record(policy.ActionDelete, actor, id, start, err)
		return err
	}

	if err := s.authorize(actor, req, policy.ActionDelete, true, false); err != nil {
		s.record(policy.ActionDelete, actor, id, start, err)
		return err
	}
	if len(req.Approvals) > 0 {
		err := newStateConflict(req, "request already has approval records")
		s.record(policy.ActionDelete, actor, id, start, err)
		return err
	}

	if err := s.repo.DeleteRequest(ctx, id, req.Version); err != nil {
		err = mapStoreError(err, req)
		s.record(policy.ActionDelete, actor, id, start, err)
		return err
	}

	for _, key := range []*string{req.ProformaKey, req.ReceiptKey} {
		if key != nil {
			s.deleteBlob(*key)
		}
	}

	s.record(policy.ActionDelete, actor, id, start, nil)
	return nil
}

// Approve records a review approval at level. A nil level is derived from
// the actor's role.
func (s *WorkflowService) Approve(ctx context.Context, actor models.Actor, id uuid.UUID, level *models.ApprovalLevel, comments string) (*models.PurchaseRequest, error) {
	return s.review(ctx, actor, id, level, comments, true)
}

// Reject records a review rejection at level, which ends the workflow
func (s *WorkflowService) Reject(ctx context.Context, actor models.Actor, id uuid.UUID, level *models.ApprovalLevel, comments string) (*models.PurchaseRequest, error) {
	return s.review(ctx, actor, id, level, comments, false)
}

func (s *WorkflowService) review(ctx context.Context, actor models.Actor, id uuid.UUID, level *models.ApprovalLevel, comments string, approve bool) (*models.PurchaseRequest, error) {
	lvl, action, err := s.reviewAction(actor, level, approve)
	if err != nil {
		s.record(action, actor, id, time.Now(), err)
		return nil, err
	}
	if comments, err = requireComments(comments); err != nil {
		s.record(action, actor, id, time.Now(), err)
		return nil, err
	}

	return s.transition(ctx, actor, id, transitionStep{
		action:     action,
		checkActed: true,
		apply: func(tx *txn) error {
			if !approve {
				tx.req.Status = models.StatusRejected
				tx.appendApproval(lvl, models.ActionRejected, comments)
				tx.emit(models.EventRejected, lvl, comments)
				return nil
			}

			if lvl == models.LevelOne {
				tx.req.Level1Approved = true
				tx.appendApproval(lvl, models.ActionApproved, comments)
				tx.awaiting(models.RoleApproverLevel2)
				return nil
			}

			if err := s.checkProforma(tx.req); err != nil {
				return err
			}
			tx.req.Level2Approved = true
			tx.req.Status = models.StatusApproved
			tx.appendApproval(lvl, models.ActionApproved, comments)
			if err := s.issuePurchaseOrder(tx); err != nil {
				return err
			}
			tx.emit(models.EventApproved, lvl, comments)
			tx.awaiting(models.RoleFinance)
			return nil
		},
	})
}

// reviewAction resolves the level and policy action for a normal review
func (s *WorkflowService) reviewAction(actor models.Actor, level *models.ApprovalLevel, approve bool) (models.ApprovalLevel, policy.Action, error) {
	fallback := policy.ActionApproveL1
	if !approve {
		fallback = policy.ActionRejectL1
	}

	var lvl models.ApprovalLevel
	if level != nil {
		lvl = *level
	} else {
		derived, ok := policy.LevelForRole(actor.Role)
		if !ok {
			msg := fmt.Sprintf("role %q does not review at a level", actor.Role)
			if actor.Role == models.RoleAdmin {
				msg += "; use the override endpoint"
			}
			return "", fallback, &PermissionError{Action: string(fallback), Role: actor.Role, Message: msg}
		}
		lvl = derived
	}

	if lvl != models.LevelOne && lvl != models.LevelTwo {
		return "", fallback, &ValidationError{Field: "level", Message: fmt.Sprintf("level must be %s or %s", models.LevelOne, models.LevelTwo)}
	}

	approveAction, rejectAction, _ := policy.ReviewActions(lvl)
	if approve {
		return lvl, approveAction, nil
	}
	return lvl, rejectAction, nil
}

// OverrideApprove approves a pending request regardless of level sequencing,
// generating the purchase order
func (s *WorkflowService) OverrideApprove(ctx context.Context, actor models.Actor, id uuid.UUID, comments string) (*models.PurchaseRequest, error) {
	comments, err := requireComments(comments)
	if err != nil {
		s.record(policy.ActionOverrideApprove, actor, id, time.Now(), err)
		return nil, err
	}

	return s.transition(ctx, actor, id, transitionStep{
		action: policy.ActionOverrideApprove,
		apply: func(tx *txn) error {
			tx.req.Level1Approved = true
			tx.req.Level2Approved = true
			tx.req.Status = models.StatusApproved
			tx.appendApproval(models.LevelAdminOverride, models.ActionApproved, comments)
			if err := s.issuePurchaseOrder(tx); err != nil {
				return err
			}
			tx.emit(models.EventApproved, models.LevelAdminOverride, comments)
			tx.awaiting(models.RoleFinance)
			return nil
		},
	})
}

// OverrideReject rejects a pending request at any level
func (s *WorkflowService) OverrideReject(ctx context.Context, actor models.Actor, id uuid.UUID, comments string) (*models.PurchaseRequest, error) {
	comments, err := requireComments(comments)
	if err != nil {
		s.record(policy.ActionOverrideReject, actor, id, time.Now(), err)
		return nil, err
	}

	return s.transition(ctx, actor, id, transitionStep{
		action: policy.ActionOverrideReject,
		apply: func(tx *txn) error {
			tx.req.Status = models.StatusRejected
			tx.appendApproval(models.LevelAdminOverride, models.ActionRejected, comments)
			tx.emit(models.EventRejected, models.LevelAdminOverride, comments)
			return nil
		},
	})
}

// Cancel ends a pending or approved request
func (s *WorkflowService) Cancel(ctx context.Context, actor models.Actor, id uuid.UUID, comments string) (*models.PurchaseRequest, error) {
	comments, err := requireComments(comments)
	if err != nil {
		s.record(policy.ActionCancel, actor, id, time.Now(), err)
		return nil, err
	}

	return s.transition(ctx, actor, id, transitionStep{
		action: policy.ActionCancel,
		apply: func(tx *txn) error {
			level := models.LevelFinanceOverride
			if actor.Role == models.RoleAdmin {
				level = models.LevelAdminOverride
			}
			tx.req.Status = models.StatusCancelled
			tx.appendApproval(level, models.ActionCancelled, comments)
			tx.emit(models.EventCancelled, level, comments)
			return nil
		},
	})
}

// checkProforma blocks a level 2 approval while the uploaded proforma disagrees with the request
func (s *WorkflowService) checkProforma(req *models.PurchaseRequest) error {
	if !s.opts.EnforceProformaMatch {
		return nil
	}
	discrepancies := reconciliation.ProformaDiscrepancies(req, s.opts.ProformaTolerance)
	if len(discrepancies) == 0 {
		return nil
	}
	return &ValidationError{
		Field:   "proforma",
		Message: "proforma does not match request: " + strings.Join(discrepancies, "; "),
		Details: discrepancies,
	}
}

// issuePurchaseOrder generates the PO snapshot and its PDF inside the
// approval transaction
func (s *WorkflowService) issuePurchaseOrder(tx *txn) error {
	po, err := s.generator.Generate(tx.ctx, tx.req, tx.store)
	if errors.Is(err, purchaseorder.ErrPurchaseOrderExists) {
		return newStateConflict(&tx.loaded, "purchase order already exists")
	}
	if err != nil {
		return fmt.Errorf("failed to generate purchase order: %w", err)
	}

	pdf, err := purchaseorder.RenderPDF(po)
	if err != nil {
		return fmt.Errorf("failed to render purchase order: %w", err)
	}

	key, err := s.blobs.Put(tx.ctx, purchaseOrderPrefix, po.PONumber+".pdf", "application/pdf", pdf)
	if err != nil {
		return fmt.Errorf("failed to store purchase order: %w", err)
	}
	tx.orphans = append(tx.orphans, key)

	tx.req.PurchaseOrderData = po
	tx.req.PurchaseOrderKey = &key
	tx.generatedPO = true
	return nil
}

// transitionStep describes one locked, transactional mutation of a request
type transitionStep struct {
	action policy.Action
	// ownerOnly restricts staff callers to their own requests
	ownerOnly bool
	// checkActed rejects reviewers who already left a review on the request
	checkActed bool
	apply      func(tx *txn) error
}

// txn carries the state of a transition in progress
type txn struct {
	ctx     context.Context
	store   repository.RequestStore
	req     *models.PurchaseRequest
	// loaded is the request as read, before apply mutates req
	loaded  models.PurchaseRequest
	actor   models.Actor
	events  []models.NotificationEvent
	orphans []string

	generatedPO bool
}

func (tx *txn) appendApproval(level models.ApprovalLevel, action models.ApprovalAction, comments string) {
	tx.req.Approvals = append(tx.req.Approvals, models.Approval{
		ID:           uuid.New(),
		RequestID:    tx.req.ID,
		ApproverID:   tx.actor.UserID,
		ApproverRole: tx.actor.Role,
		Level:        level,
		Action:       action,
		Comments:     comments,
		CreatedAt:    time.Now().UTC(),
	})
}

func (tx *txn) emit(t models.NotificationEventType, level models.ApprovalLevel, comments string) {
	e := models.NewNotificationEvent(t, tx.req, tx.actor)
	e.Level = level
	e.Comments = comments
	tx.events = append(tx.events, e)
}

func (tx *txn) awaiting(role models.Role) {
	tx.events = append(tx.events, awaiting(tx.req, tx.actor, role))
}

func awaiting(req *models.PurchaseRequest, actor models.Actor, role models.Role) models.NotificationEvent {
	e := models.NewNotificationEvent(models.EventAwaitingApproval, req, actor)
	e.AwaitingRole = role
	return e
}

// transition runs tr.apply under the request lock in a single transaction.
// Approval records appended by tr.apply are persisted with the request.
func (s *WorkflowService) transition(ctx context.Context, actor models.Actor, id uuid.UUID, tr transitionStep) (*models.PurchaseRequest, error) {
	start := time.Now()

	release, err := s.lock(ctx, id)
	if err != nil {
		s.record(tr.action, actor, id, start, err)
		return nil, err
	}
	defer release()

	var tx *txn
	err = s.repo.WithinTx(ctx, func(store repository.RequestStore) error {
		req, err := store.LoadRequest(ctx, id)
		if err != nil {
			return err
		}
		tx = &txn{ctx: ctx, store: store, req: req, loaded: *req, actor: actor}

		if err := s.authorize(actor, req, tr.action, tr.ownerOnly, tr.checkActed); err != nil {
			return err
		}

		known := len(req.Approvals)
		if err := tr.apply(tx); err != nil {
			return err
		}
		for i := known; i < len(req.Approvals); i++ {
			if err := store.AppendApproval(ctx, &req.Approvals[i]); err != nil {
				return err
			}
		}
		return store.SaveRequest(ctx, req)
	})

	if err != nil {
		var current *models.PurchaseRequest
		if tx != nil {
			current = &tx.loaded
			for _, key := range tx.orphans {
				s.deleteBlob(key)
			}
		}
		err = mapStoreError(err, current)
		s.record(tr.action, actor, id, start, err)
		return nil, err
	}

	if tx.generatedPO {
		s.metrics.RecordPurchaseOrder()
		s.logger.WithRequest(id).Info("Purchase order generated",
			zap.String("po_number", tx.req.PurchaseOrderData.PONumber),
		)
	}
	s.record(tr.action, actor, id, start, nil)
	for _, e := range tx.events {
		s.publish(e)
	}
	return tx.req, nil
}

// authorize runs the capability table plus the ownership and already-acted
// checks. Permission problems are reported before state problems.
func (s *WorkflowService) authorize(actor models.Actor, req *models.PurchaseRequest, action policy.Action, ownerOnly, checkActed bool) error {
	d := policy.Decide(actor.Role, action, policy.StateOf(req))
	if d.Reason == policy.ReasonPermission {
		return decisionError(d, action, actor.Role, req)
	}
	if ownerOnly && actor.Role == models.RoleStaff && req.CreatedBy != actor.UserID {
		return &PermissionError{Action: string(action), Role: actor.Role, Message: "only the request owner may do this"}
	}
	if checkActed && policy.HasActed(req, actor.UserID) {
		return newStateConflict(req, "you have already acted on this request")
	}
	if !d.Allowed {
		return decisionError(d, action, actor.Role, req)
	}
	return nil
}

func (s *WorkflowService) lock(ctx context.Context, id uuid.UUID) (func(), error) {
	release, err := s.locker.Acquire(ctx, id.String())
	if errors.Is(err, ErrLockTimeout) {
		s.metrics.RecordLockContention()
		return nil, &StateConflictError{Message: "another operation is in progress for this request, retry shortly"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock purchase request: %w", err)
	}
	return release, nil
}

func (s *WorkflowService) publish(e models.NotificationEvent) {
	if s.events != nil {
		s.events.Publish(e)
	}
}

func (s *WorkflowService) deleteBlob(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		s.logger.Warnf("Failed to delete blob %s: %v", key, err)
	}
}

// record logs and counts the outcome of a workflow action
func (s *WorkflowService) record(action policy.Action, actor models.Actor, id uuid.UUID, start time.Time, err error) {
	outcome := outcomeOf(err)
	s.metrics.RecordTransition(string(action), outcome, time.Since(start))

	fields := []zap.Field{
		zap.String("action", string(action)),
		logger.UserID(actor.UserID),
		zap.String("role", string(actor.Role)),
		zap.String("outcome", outcome),
	}
	if id != uuid.Nil {
		fields = append(fields, logger.RequestID(id))
	}

	switch outcome {
	case "success":
		s.logger.Info("Workflow transition applied", fields...)
	case "error":
		s.logger.Error("Workflow transition failed", append(fields, zap.Error(err))...)
	default:
		s.logger.Warn("Workflow transition denied", append(fields, zap.String("reason", err.Error()))...)
	}
}

func outcomeOf(err error) string {
	var (
		validationErr *ValidationError
		permissionErr *PermissionError
		conflictErr   *StateConflictError
	)
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &validationErr):
		return "validation"
	case errors.As(err, &permissionErr):
		return "permission"
	case errors.As(err, &conflictErr):
		return "state_conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}
	return "error"
}
