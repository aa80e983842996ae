package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/davidmoltin/procurement-workflows/internal/api/rest/middleware"
	"github.com/davidmoltin/procurement-workflows/internal/blobstore"
	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/davidmoltin/procurement-workflows/internal/services"
	"github.com/davidmoltin/procurement-workflows/pkg/logger"
)

const multipartMemory = 8 << 20

// DocumentHandler handles document upload and download endpoints
type DocumentHandler struct {
	logger    *logger.Logger
	documents *services.DocumentService
	maxUpload int64
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(log *logger.Logger, documents *services.DocumentService, maxUpload int64) *DocumentHandler {
	return &DocumentHandler{
		logger:    log,
		documents: documents,
		maxUpload: maxUpload,
	}
}

// UploadProforma handles POST /api/v1/requests/{id}/proforma
func (h *DocumentHandler) UploadProforma(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, models.DocumentProforma)
}

// UploadReceipt handles POST /api/v1/requests/{id}/receipt
func (h *DocumentHandler) UploadReceipt(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, models.DocumentReceipt)
}

// DownloadProforma handles GET /api/v1/requests/{id}/proforma
func (h *DocumentHandler) DownloadProforma(w http.ResponseWriter, r *http.Request) {
	h.download(w, r, models.DocumentProforma)
}

// DownloadPurchaseOrder handles GET /api/v1/requests/{id}/purchase-order
func (h *DocumentHandler) DownloadPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	h.download(w, r, models.DocumentPurchaseOrder)
}

// DownloadReceipt handles GET /api/v1/requests/{id}/receipt
func (h *DocumentHandler) DownloadReceipt(w http.ResponseWriter, r *http.Request) {
	h.download(w, r, models.DocumentReceipt)
}

func (h *DocumentHandler) upload(w http.ResponseWriter, r *http.Request, kind models.DocumentKind) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, err := parseRequestID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request ID")
		return
	}

	upload, err := h.readUpload(r)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respondError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Field: "file"})
		return
	}

	var updated *models.PurchaseRequest
	if kind == models.DocumentReceipt {
		updated, err = h.documents.SubmitReceipt(r.Context(), actor, id, upload)
	} else {
		updated, err = h.documents.SubmitProforma(r.Context(), actor, id, upload)
	}
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, updated)
}

// readUpload pulls the "file" part out of a multipart form. Reading stops one
// byte past the limit so the service can report the oversize.
func (h *DocumentHandler) readUpload(r *http.Request) (services.Upload, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return services.Upload{}, fmt.Errorf("invalid multipart form: %w", err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return services.Upload{}, errors.New("missing file field")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		return services.Upload{}, fmt.Errorf("failed to read file: %w", err)
	}

	return services.Upload{Filename: header.Filename, Data: data}, nil
}

func (h *DocumentHandler) download(w http.ResponseWriter, r *http.Request, kind models.DocumentKind) {
	actor, ok := middleware.GetActor(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, err := parseRequestID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request ID")
		return
	}

	obj, err := h.documents.Download(r.Context(), actor, id, kind)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", blobstore.SanitizeFilename(obj.Filename)))
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(obj.Data); err != nil {
		h.logger.Warn("Failed to write document", logger.Err(err))
	}
}
