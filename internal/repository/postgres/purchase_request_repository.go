package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/davidmoltin/procurement-workflows/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const requestColumns = `
	id, title, description, amount, status, created_by,
	requires_level1_approval, requires_level2_approval, level1_approved, level2_approved,
	proforma_key, proforma_data, purchase_order_key, purchase_order_data,
	receipt_key, receipt_data, receipt_validation_result,
	version, created_at, updated_at`

// PurchaseRequestRepository handles purchase request database operations
type PurchaseRequestRepository struct {
	db DB
}

// NewPurchaseRequestRepository creates a new purchase request repository
func NewPurchaseRequestRepository(db DB) *PurchaseRequestRepository {
	return &PurchaseRequestRepository{db: db}
}

// CreateRequest inserts a request together with its line items
func (r *PurchaseRequestRepository) CreateRequest(ctx context.Context, req *models.PurchaseRequest) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		s := &requestStore{q: tx}

		proforma, err := marshalJSONB(req.ProformaData)
		if err != nil {
			return err
		}

		query := `
			INSERT INTO purchase_requests (
				id, title, description, amount, status, created_by,
				requires_level1_approval, requires_level2_approval, level1_approved, level2_approved,
				proforma_key, proforma_data, version, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

		_, err = s.q.Exec(
			ctx, query,
			req.ID, req.Title, req.Description, req.Amount, req.Status, req.CreatedBy,
			req.RequiresLevel1Approval, req.RequiresLevel2Approval, req.Level1Approved, req.Level2Approved,
			req.ProformaKey, proforma, req.Version, req.CreatedAt, req.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create purchase request: %w", err)
		}

		return s.ReplaceItems(ctx, req.ID, req.Items)
	})
}

// GetRequest reads a request with its items and approvals
func (r *PurchaseRequestRepository) GetRequest(ctx context.Context, id uuid.UUID) (*models.PurchaseRequest, error) {
	return loadRequest(ctx, r.db, id, false)
}

// DeleteRequest removes a request if it is still at version
func (r *PurchaseRequestRepository) DeleteRequest(ctx context.Context, id uuid.UUID, version int) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM purchase_requests WHERE id = $1 AND version = $2`, id, version)
	if err != nil {
		return fmt.Errorf("failed to delete purchase request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return missingOrConflict(ctx, r.db, id)
	}
	return nil
}

// ListRequests returns the requests visible to filter.Viewer, newest first
func (r *PurchaseRequestRepository) ListRequests(ctx context.Context, filter models.PurchaseRequestFilter) ([]*models.PurchaseRequest, int64, error) {
	where, args := visibilityClause(filter)

	var total int64
	countQuery := `SELECT COUNT(*) FROM purchase_requests pr WHERE ` + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count purchase requests: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM purchase_requests pr
		WHERE %s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d`,
		requestColumns, where, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list purchase requests: %w", err)
	}

	var requests []*models.PurchaseRequest
	byID := make(map[uuid.UUID]*models.PurchaseRequest)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("failed to scan purchase request: %w", err)
		}
		requests = append(requests, req)
		byID[req.ID] = req
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list purchase requests: %w", err)
	}

	if len(requests) > 0 {
		ids := make([]uuid.UUID, 0, len(requests))
		for _, req := range requests {
			ids = append(ids, req.ID)
		}
		if err := attachChildren(ctx, r.db, ids, byID); err != nil {
			return nil, 0, err
		}
	}

	return requests, total, nil
}

// WithinTx runs fn in a single database transaction
func (r *PurchaseRequestRepository) WithinTx(ctx context.Context, fn func(store repository.RequestStore) error) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		return fn(&requestStore{q: tx})
	})
}

// visibilityClause builds the WHERE clause limiting a listing to what the
// viewer's role may see
func visibilityClause(filter models.PurchaseRequestFilter) (string, []any) {
	viewer := filter.Viewer
	args := []any{viewer.UserID}
	acted := `EXISTS (SELECT 1 FROM approvals a WHERE a.request_id = pr.id AND a.approver_id = $1)`

	var scope string
	switch viewer.Role {
	case models.RoleAdmin:
		scope = "TRUE"
	case models.RoleApproverLevel1:
		scope = `(pr.status = 'pending' AND NOT pr.level1_approved) OR ` + acted
	case models.RoleApproverLevel2:
		scope = `(pr.status = 'pending' AND pr.level1_approved AND NOT pr.level2_approved) OR ` + acted
	case models.RoleFinance:
		scope = `pr.status = 'approved' OR ` + acted
	default:
		scope = "FALSE"
	}

	clauses := []string{fmt.Sprintf("(pr.created_by = $1 OR %s)", scope)}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("pr.status = $%d", len(args)))
	}

	return strings.Join(clauses, " AND "), args
}

// requestStore implements repository.RequestStore on a transaction
type requestStore struct {
	q querier
}

func (s *requestStore) LoadRequest(ctx context.Context, id uuid.UUID) (*models.PurchaseRequest, error) {
	return loadRequest(ctx, s.q, id, true)
}

func (s *requestStore) SaveRequest(ctx context.Context, req *models.PurchaseRequest) error {
	proforma, err := marshalJSONB(req.ProformaData)
	if err != nil {
		return err
	}
	po, err := marshalJSONB(req.PurchaseOrderData)
	if err != nil {
		return err
	}
	receipt, err := marshalJSONB(req.ReceiptData)
	if err != nil {
		return err
	}
	validation, err := marshalJSONB(req.ReceiptValidation)
	if err != nil {
		return err
	}

	var poNumber *string
	if req.PurchaseOrderData != nil {
		poNumber = &req.PurchaseOrderData.PONumber
	}

	updatedAt := time.Now().UTC()
	query := `
		UPDATE purchase_requests
		SET title = $3,
		    description = $4,
		    amount = $5,
		    status = $6,
		    level1_approved = $7,
		    level2_approved = $8,
		    proforma_key = $9,
		    proforma_data = $10,
		    purchase_order_key = $11,
		    po_number = $12,
		    purchase_order_data = $13,
		    receipt_key = $14,
		    receipt_data = $15,
		    receipt_validation_result = $16,
		    version = version + 1,
		    updated_at = $17
		WHERE id = $1 AND version = $2`

	tag, err := s.q.Exec(
		ctx, query,
		req.ID, req.Version,
		req.Title, req.Description, req.Amount, req.Status,
		req.Level1Approved, req.Level2Approved,
		req.ProformaKey, proforma,
		req.PurchaseOrderKey, poNumber, po,
		req.ReceiptKey, receipt, validation,
		updatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("purchase order number: %w", repository.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to save purchase request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return missingOrConflict(ctx, s.q, req.ID)
	}

	req.Version++
	req.UpdatedAt = updatedAt
	return nil
}

func (s *requestStore) ReplaceItems(ctx context.Context, requestID uuid.UUID, items []models.RequestItem) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM request_items WHERE request_id = $1`, requestID); err != nil {
		return fmt.Errorf("failed to clear request items: %w", err)
	}

	query := `
		INSERT INTO request_items (
			id, request_id, position, name, description, quantity, unit_price, total_price
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	for _, item := range items {
		_, err := s.q.Exec(
			ctx, query,
			item.ID, requestID, item.Position, item.Name, item.Description,
			item.Quantity, item.UnitPrice, item.TotalPrice,
		)
		if err != nil {
			return fmt.Errorf("failed to insert request item: %w", err)
		}
	}

	return nil
}

func (s *requestStore) AppendApproval(ctx context.Context, a *models.Approval) error {
	query := `
		INSERT INTO approvals (
			id, request_id, approver_id, approver_role, level, action, comments, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.q.Exec(
		ctx, query,
		a.ID, a.RequestID, a.ApproverID, a.ApproverRole, a.Level, a.Action, a.Comments, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append approval: %w", err)
	}
	return nil
}

func (s *requestStore) PONumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM purchase_requests WHERE po_number = $1)`, number).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check purchase order number: %w", err)
	}
	return exists, nil
}

func loadRequest(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*models.PurchaseRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM purchase_requests WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	req, err := scanRequest(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("purchase request %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase request: %w", err)
	}

	if err := attachChildren(ctx, q, []uuid.UUID{id}, map[uuid.UUID]*models.PurchaseRequest{id: req}); err != nil {
		return nil, err
	}
	return req, nil
}

// attachChildren loads items and approvals for every request in byID
func attachChildren(ctx context.Context, q querier, ids []uuid.UUID, byID map[uuid.UUID]*models.PurchaseRequest) error {
	rows, err := q.Query(ctx, `
		SELECT id, request_id, position, name, description, quantity, unit_price, total_price
		FROM request_items
		WHERE request_id = ANY($1)
		ORDER BY request_id, position`, ids)
	if err != nil {
		return fmt.Errorf("failed to load request items: %w", err)
	}
	for rows.Next() {
		var item models.RequestItem
		if err := rows.Scan(
			&item.ID, &item.RequestID, &item.Position, &item.Name, &item.Description,
			&item.Quantity, &item.UnitPrice, &item.TotalPrice,
		); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan request item: %w", err)
		}
		if req := byID[item.RequestID]; req != nil {
			req.Items = append(req.Items, item)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to load request items: %w", err)
	}

	rows, err = q.Query(ctx, `
		SELECT id, request_id, approver_id, approver_role, level, action, comments, created_at
		FROM approvals
		WHERE request_id = ANY($1)
		ORDER BY created_at, id`, ids)
	if err != nil {
		return fmt.Errorf("failed to load approvals: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a models.Approval
		if err := rows.Scan(
			&a.ID, &a.RequestID, &a.ApproverID, &a.ApproverRole, &a.Level, &a.Action, &a.Comments, &a.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to scan approval: %w", err)
		}
		if req := byID[a.RequestID]; req != nil {
			req.Approvals = append(req.Approvals, a)
		}
	}
	return rows.Err()
}

func scanRequest(row pgx.Row) (*models.PurchaseRequest, error) {
	req := &models.PurchaseRequest{}
	var proforma, po, receipt, validation []byte

	err := row.Scan(
		&req.ID, &req.Title, &req.Description, &req.Amount, &req.Status, &req.CreatedBy,
		&req.RequiresLevel1Approval, &req.RequiresLevel2Approval, &req.Level1Approved, &req.Level2Approved,
		&req.ProformaKey, &proforma, &req.PurchaseOrderKey, &po,
		&req.ReceiptKey, &receipt, &validation,
		&req.Version, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if req.ProformaData, err = unmarshalJSONB[models.DocumentData](proforma); err != nil {
		return nil, err
	}
	if req.PurchaseOrderData, err = unmarshalJSONB[models.PurchaseOrderData](po); err != nil {
		return nil, err
	}
	if req.ReceiptData, err = unmarshalJSONB[models.DocumentData](receipt); err != nil {
		return nil, err
	}
	if req.ReceiptValidation, err = unmarshalJSONB[models.ReceiptValidationResult](validation); err != nil {
		return nil, err
	}

	req.Items = []models.RequestItem{}
	return req, nil
}

// missingOrConflict explains why a conditional write touched no rows
func missingOrConflict(ctx context.Context, q querier, id uuid.UUID) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM purchase_requests WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check purchase request: %w", err)
	}
	if !exists {
		return fmt.Errorf("purchase request %s: %w", id, repository.ErrNotFound)
	}
	return fmt.Errorf("purchase request %s: %w", id, repository.ErrVersionConflict)
}
