package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/davidmoltin/procurement-workflows/internal/blobstore"
	"github.com/davidmoltin/procurement-workflows/internal/extraction"
	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/davidmoltin/procurement-workflows/internal/policy"
	"github.com/davidmoltin/procurement-workflows/internal/reconciliation"
	"github.com/davidmoltin/procurement-workflows/internal/textsource"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrDocumentNotFound is returned when a document slot is empty
var ErrDocumentNotFound = errors.New("document not found")

// Upload is a document file received from a caller
type Upload struct {
	Filename string
	Data     []byte
}

// DocumentService ingests proformas and receipts and serves stored documents.
// State changes go through the workflow service's transition path.
type DocumentService struct {
	workflow  *WorkflowService
	text      *textsource.Extractor
	extractor *extraction.Extractor
	validator *reconciliation.Validator
	maxUpload int64
}

// NewDocumentService creates a new document service
func NewDocumentService(workflow *WorkflowService, text *textsource.Extractor, amountTolerance decimal.Decimal, maxUpload int64) *DocumentService {
	return &DocumentService{
		workflow:  workflow,
		text:      text,
		extractor: extraction.New(),
		validator: reconciliation.NewValidator(amountTolerance),
		maxUpload: maxUpload,
	}
}

// SubmitProforma stores a proforma and its extracted data on a request under review.
// The upload is kept even when extraction fails; the failure is recorded on the data.
func (s *DocumentService) SubmitProforma(ctx context.Context, actor models.Actor, id uuid.UUID, upload Upload) (*models.PurchaseRequest, error) {
	return s.ingest(ctx, actor, id, upload, models.DocumentProforma)
}

// SubmitReceipt stores a receipt, extracts it and reconciles it against the purchase order
func (s *DocumentService) SubmitReceipt(ctx context.Context, actor models.Actor, id uuid.UUID, upload Upload) (*models.PurchaseRequest, error) {
	return s.ingest(ctx, actor, id, upload, models.DocumentReceipt)
}

func (s *DocumentService) ingest(ctx context.Context, actor models.Actor, id uuid.UUID, upload Upload, kind models.DocumentKind) (*models.PurchaseRequest, error) {
	action, prefix := policy.ActionSubmitProforma, "proformas"
	if kind == models.DocumentReceipt {
		action, prefix = policy.ActionSubmitReceipt, "receipts"
	}
	w := s.workflow

	mediaType, err := s.checkUpload(upload)
	if err != nil {
		w.record(action, actor, id, time.Now(), err)
		return nil, err
	}

	// authorized again inside the transition
	current, err := w.repo.GetRequest(ctx, id)
	if err != nil {
		err = mapStoreError(err, nil)
		w.record(action, actor, id, time.Now(), err)
		return nil, err
	}
	if err := w.authorize(actor, current, action, true, false); err != nil {
		w.record(action, actor, id, time.Now(), err)
		return nil, err
	}

	key, err := w.blobs.Put(ctx, prefix, upload.Filename, mediaType, upload.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to store %s: %w", kind, err)
	}

	data := s.extract(ctx, kind, upload.Data)

	var previous *string
	req, err := w.transition(ctx, actor, id, transitionStep{
		action:    action,
		ownerOnly: true,
		apply: func(tx *txn) error {
			if kind == models.DocumentProforma {
				previous = tx.req.ProformaKey
				tx.req.ProformaKey = &key
				tx.req.ProformaData = data
				return nil
			}

			result, err := s.validator.Validate(tx.req, data)
			if errors.Is(err, reconciliation.ErrNoPurchaseOrder) {
				return newStateConflict(&tx.loaded, "request has no purchase order")
			}
			if err != nil {
				return err
			}
			previous = tx.req.ReceiptKey
			tx.req.ReceiptKey = &key
			tx.req.ReceiptData = data
			tx.req.ReceiptValidation = result
			return nil
		},
	})
	if err != nil {
		w.deleteBlob(key)
		return nil, err
	}

	if previous != nil {
		w.deleteBlob(*previous)
	}
	if kind == models.DocumentReceipt && req.ReceiptValidation != nil {
		w.metrics.RecordReceiptValidation(req.ReceiptValidation.IsValid)
		w.logger.WithRequest(id).Info("Receipt reconciled",
			zap.Bool("valid", req.ReceiptValidation.IsValid),
			zap.Strings("errors", req.ReceiptValidation.Errors),
		)
	}
	return req, nil
}

func (s *DocumentService) checkUpload(upload Upload) (string, error) {
	if len(upload.Data) == 0 {
		return "", &ValidationError{Field: "file", Message: "file is empty"}
	}
	if s.maxUpload > 0 && int64(len(upload.Data)) > s.maxUpload {
		return "", &ValidationError{Field: "file", Message: fmt.Sprintf("file exceeds the %d byte limit", s.maxUpload)}
	}
	mediaType := textsource.Detect(upload.Data)
	if mediaType == textsource.MediaUnknown {
		return "", &ValidationError{Field: "file", Message: "file must be a PDF, JPEG, PNG or plain text document"}
	}
	return mediaType, nil
}

// extract never fails: text source errors are recorded on the returned data
func (s *DocumentService) extract(ctx context.Context, kind models.DocumentKind, data []byte) *models.DocumentData {
	w := s.workflow

	raw, err := s.text.RawText(ctx, data)
	if err != nil {
		w.metrics.RecordExtraction(string(kind), "error", len(data))
		w.logger.Warn("Document text extraction failed",
			zap.String("document", string(kind)),
			zap.Error(err),
		)
		return &models.DocumentData{
			Items: []models.ExtractedItem{},
			Error: err.Error(),
		}
	}

	result := s.extractor.Extract(raw)
	outcome := "success"
	if result.Failed() {
		outcome = "partial"
	}
	w.metrics.RecordExtraction(string(kind), outcome, len(data))
	return result
}

// Download returns a stored document. The owner may always download; other
// callers need the download capability.
func (s *DocumentService) Download(ctx context.Context, actor models.Actor, id uuid.UUID, kind models.DocumentKind) (*blobstore.Object, error) {
	w := s.workflow

	req, err := w.repo.GetRequest(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, nil)
	}

	if req.CreatedBy != actor.UserID {
		d := policy.Decide(actor.Role, policy.ActionDownload, policy.StateOf(req))
		if !d.Allowed {
			return nil, decisionError(d, policy.ActionDownload, actor.Role, req)
		}
	}

	var key *string
	switch kind {
	case models.DocumentProforma:
		key = req.ProformaKey
	case models.DocumentPurchaseOrder:
		key = req.PurchaseOrderKey
	case models.DocumentReceipt:
		key = req.ReceiptKey
	default:
		return nil, &ValidationError{Field: "document", Message: fmt.Sprintf("unknown document %q", kind)}
	}
	if key == nil {
		return nil, ErrDocumentNotFound
	}

	obj, err := w.blobs.Get(ctx, *key)
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", kind, err)
	}
	return obj, nil
}
