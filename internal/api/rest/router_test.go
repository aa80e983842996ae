package rest

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/davidmoltin/procurement-workflows/internal/api/rest/handlers"
	customMiddleware "github.com/davidmoltin/procurement-workflows/internal/api/rest/middleware"
	"github.com/davidmoltin/procurement-workflows/internal/blobstore"
	"github.com/davidmoltin/procurement-workflows/internal/mocks"
	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/davidmoltin/procurement-workflows/internal/services"
	"github.com/davidmoltin/procurement-workflows/internal/textsource"
	"github.com/davidmoltin/procurement-workflows/pkg/auth"
	"github.com/davidmoltin/procurement-workflows/pkg/config"
	"github.com/davidmoltin/procurement-workflows/pkg/logger"
	"github.com/davidmoltin/procurement-workflows/pkg/metrics"
	"github.com/davidmoltin/procurement-workflows/pkg/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const receiptText = `Vendor: ACME Office Supplies
Printer paper 10 x 5.00 50.00
Toner cartridge 2 x 50.00 100.00
Total: 150.00
`

type discardEvents struct{}

func (discardEvents) Publish(models.NotificationEvent) {}

// stubEvents stands in for the websocket feed and echoes the caller's role
type stubEvents struct{}

func (stubEvents) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	actor, ok := customMiddleware.GetActor(r.Context())
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Write([]byte(actor.Role))
}

func (stubEvents) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(`{"total_clients":0}`))
}

type apiHarness struct {
	handler    http.Handler
	jwt        *auth.JWTManager
	users      map[models.Role]*models.User
	otherStaff *models.User
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	fb := testutil.NewFixtureBuilder()
	h := &apiHarness{
		jwt:        auth.NewJWTManager("test-secret-0123456789", 0),
		users:      make(map[models.Role]*models.User),
		otherStaff: fb.User(models.RoleStaff),
	}

	all := []*models.User{h.otherStaff}
	for _, role := range []models.Role{
		models.RoleStaff,
		models.RoleApproverLevel1,
		models.RoleApproverLevel2,
		models.RoleFinance,
		models.RoleAdmin,
	} {
		u := fb.User(role)
		h.users[role] = u
		all = append(all, u)
	}

	log := logger.NewForTesting()
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	workflow := services.NewWorkflowService(
		mocks.NewPurchaseRequestRepository(),
		services.NewLocalLocker(),
		blobstore.NewMemoryStore(),
		discardEvents{},
		m,
		log,
		services.DefaultWorkflowOptions(),
	)
	svc := handlers.Services{
		Workflow:  workflow,
		Documents: services.NewDocumentService(workflow, textsource.New(nil), testutil.Dec("0.01"), 1<<20),
		Auth:      services.NewAuthService(mocks.NewUserRepository(all...), h.jwt, m, log),
	}

	cfg := config.ServerConfig{
		AllowedOrigins: []string{"*"},
		MaxRequestMB:   2,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	}
	hs := handlers.NewHandlers(log, svc, 1<<20, nil, "test")
	hs.Events = stubEvents{}
	router := NewRouter(log, cfg, hs, h.jwt, m, reg)
	router.SetupRoutes()
	h.handler = router.Handler()
	return h
}

func (h *apiHarness) token(t *testing.T, u *models.User) string {
	t.Helper()
	token, err := h.jwt.GenerateAccessToken(u.ID, u.Username, u.Email, string(u.Role))
	require.NoError(t, err)
	return token
}

func (h *apiHarness) serve(t *testing.T, req *http.Request, u *models.User) *httptest.ResponseRecorder {
	t.Helper()
	if u != nil {
		req.Header.Set("Authorization", "Bearer "+h.token(t, u))
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func (h *apiHarness) as(t *testing.T, role models.Role, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return h.serve(t, testutil.MakeJSONRequest(t, method, path, body), h.users[role])
}

func (h *apiHarness) create(t *testing.T) *models.PurchaseRequest {
	t.Helper()
	w := h.as(t, models.RoleStaff, http.MethodPost, "/api/v1/requests", map[string]interface{}{
		"title":       "Office supplies",
		"description": "Quarterly restock",
		"amount":      "150.00",
		"items": []map[string]interface{}{
			{"name": "Printer paper", "quantity": 10, "unit_price": "5.00"},
			{"name": "Toner cartridge", "quantity": 2, "unit_price": "50.00"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var req models.PurchaseRequest
	testutil.DecodeJSON(t, w, &req)
	return &req
}

func uploadRequest(t *testing.T, path, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestRouter_Health(t *testing.T) {
	h := newAPIHarness(t)

	w := h.serve(t, httptest.NewRequest(http.MethodGet, "/health", nil), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = h.serve(t, httptest.NewRequest(http.MethodGet, "/ready", nil), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.serve(t, httptest.NewRequest(http.MethodGet, "/metrics", nil), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestRouter_RequiresAuthentication(t *testing.T) {
	h := newAPIHarness(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"bad token", "Bearer not-a-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/requests", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := h.serve(t, req, nil)
			testutil.AssertErrorResponse(t, w, http.StatusUnauthorized, "")
		})
	}
}

func TestRouter_ApprovalFlow(t *testing.T) {
	h := newAPIHarness(t)
	created := h.create(t)
	base := "/api/v1/requests/" + created.ID.String()

	assert.Equal(t, models.StatusPending, created.Status)
	assert.True(t, created.Amount.Equal(testutil.Dec("150")))

	w := h.as(t, models.RoleApproverLevel1, http.MethodPost, base+"/approve", map[string]string{"comments": "Within budget"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var afterL1 models.PurchaseRequest
	testutil.DecodeJSON(t, w, &afterL1)
	assert.True(t, afterL1.Level1Approved)
	assert.False(t, afterL1.Level2Approved)

	w = h.as(t, models.RoleApproverLevel2, http.MethodPost, base+"/approve", map[string]string{"comments": "Go ahead"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var approved models.PurchaseRequest
	testutil.DecodeJSON(t, w, &approved)
	assert.Equal(t, models.StatusApproved, approved.Status)
	require.NotNil(t, approved.PurchaseOrderData)

	w = h.serve(t, httptest.NewRequest(http.MethodGet, base+"/purchase-order", nil), h.users[models.RoleFinance])
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), approved.PurchaseOrderData.PONumber+".pdf")
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))

	w = h.serve(t, uploadRequest(t, base+"/receipt", "receipt.txt", []byte(receiptText)), h.users[models.RoleStaff])
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var withReceipt models.PurchaseRequest
	testutil.DecodeJSON(t, w, &withReceipt)
	require.NotNil(t, withReceipt.ReceiptValidation)
	assert.True(t, withReceipt.ReceiptValidation.IsValid)

	w = h.serve(t, httptest.NewRequest(http.MethodGet, base+"/receipt", nil), h.users[models.RoleStaff])
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, receiptText, w.Body.String())
	assert.Equal(t, `attachment; filename="receipt.txt"`, w.Header().Get("Content-Disposition"))
}

func TestRouter_ErrorMapping(t *testing.T) {
	h := newAPIHarness(t)
	created := h.create(t)
	base := "/api/v1/requests/" + created.ID.String()

	t.Run("permission", func(t *testing.T) {
		w := h.as(t, models.RoleStaff, http.MethodPost, base+"/approve", map[string]string{"comments": "mine"})
		testutil.AssertErrorResponse(t, w, http.StatusForbidden, "")
	})

	t.Run("state conflict carries current state", func(t *testing.T) {
		w := h.as(t, models.RoleApproverLevel2, http.MethodPost, base+"/approve", map[string]string{"comments": "early"})
		body := testutil.AssertErrorResponse(t, w, http.StatusConflict, "")
		assert.Equal(t, "pending", body["status"])
		assert.Equal(t, false, body["level_1_approved"])
		assert.Equal(t, false, body["level_2_approved"])
	})

	t.Run("comments required", func(t *testing.T) {
		w := h.as(t, models.RoleApproverLevel1, http.MethodPost, base+"/reject", map[string]string{"comments": "  "})
		body := testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "comments")
		assert.Equal(t, "comments", body["field"])
	})

	t.Run("empty body", func(t *testing.T) {
		w := h.serve(t, httptest.NewRequest(http.MethodPost, base+"/approve", nil), h.users[models.RoleApproverLevel1])
		testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "comments")
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, base+"/approve", bytes.NewBufferString("{"))
		w := h.serve(t, req, h.users[models.RoleApproverLevel1])
		testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "Invalid request body")
	})

	t.Run("invalid id", func(t *testing.T) {
		w := h.as(t, models.RoleStaff, http.MethodGet, "/api/v1/requests/not-a-uuid", nil)
		testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "Invalid request ID")
	})

	t.Run("not visible to other staff", func(t *testing.T) {
		w := h.serve(t, httptest.NewRequest(http.MethodGet, base, nil), h.otherStaff)
		testutil.AssertErrorResponse(t, w, http.StatusNotFound, "")
	})

	t.Run("invalid status filter", func(t *testing.T) {
		w := h.as(t, models.RoleAdmin, http.MethodGet, "/api/v1/requests?status=archived", nil)
		body := testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "")
		assert.Equal(t, "status", body["field"])
	})

	t.Run("validation details", func(t *testing.T) {
		w := h.as(t, models.RoleStaff, http.MethodPost, "/api/v1/requests", map[string]interface{}{
			"title":  "",
			"amount": "10.00",
			"items":  []interface{}{},
		})
		testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "")
	})

	t.Run("missing document", func(t *testing.T) {
		w := h.as(t, models.RoleStaff, http.MethodGet, base+"/purchase-order", nil)
		testutil.AssertErrorResponse(t, w, http.StatusNotFound, "document not found")
	})

	t.Run("upload without file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, base+"/proforma", bytes.NewBufferString("{}"))
		req.Header.Set("Content-Type", "application/json")
		w := h.serve(t, req, h.users[models.RoleStaff])
		body := testutil.AssertErrorResponse(t, w, http.StatusBadRequest, "")
		assert.Equal(t, "file", body["field"])
	})
}

func TestRouter_RoleGates(t *testing.T) {
	h := newAPIHarness(t)
	created := h.create(t)
	base := "/api/v1/requests/" + created.ID.String()
	comments := map[string]string{"comments": "because"}

	tests := []struct {
		name string
		role models.Role
		path string
		want int
	}{
		{"approver cannot create", models.RoleApproverLevel1, "/api/v1/requests", http.StatusForbidden},
		{"approver cannot override", models.RoleApproverLevel2, base + "/override/approve", http.StatusForbidden},
		{"staff cannot cancel", models.RoleStaff, base + "/cancel", http.StatusForbidden},
		{"admin overrides", models.RoleAdmin, base + "/override/approve", http.StatusOK},
		{"finance cancels approved", models.RoleFinance, base + "/cancel", http.StatusOK},
		{"nothing after cancel", models.RoleAdmin, base + "/override/reject", http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.as(t, tt.role, http.MethodPost, tt.path, comments)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestRouter_UpdateAndDelete(t *testing.T) {
	h := newAPIHarness(t)
	created := h.create(t)
	base := "/api/v1/requests/" + created.ID.String()

	w := h.as(t, models.RoleStaff, http.MethodPut, base, map[string]interface{}{
		"title":  "Office supplies (revised)",
		"amount": "50.00",
		"items": []map[string]interface{}{
			{"name": "Printer paper", "quantity": 10, "unit_price": "5.00"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated models.PurchaseRequest
	testutil.DecodeJSON(t, w, &updated)
	assert.Equal(t, "Office supplies (revised)", updated.Title)
	assert.Len(t, updated.Items, 1)

	w = h.as(t, models.RoleStaff, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = h.as(t, models.RoleStaff, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_List(t *testing.T) {
	h := newAPIHarness(t)
	h.create(t)
	h.create(t)

	w := h.as(t, models.RoleStaff, http.MethodGet, "/api/v1/requests?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list models.PurchaseRequestListResponse
	testutil.DecodeJSON(t, w, &list)
	assert.Equal(t, int64(2), list.Total)
	assert.Len(t, list.Requests, 1)
	assert.Equal(t, 1, list.Limit)

	w = h.serve(t, httptest.NewRequest(http.MethodGet, "/api/v1/requests", nil), h.otherStaff)
	require.Equal(t, http.StatusOK, w.Code)
	testutil.DecodeJSON(t, w, &list)
	assert.Equal(t, int64(0), list.Total)

	w = h.as(t, models.RoleStaff, http.MethodGet, "/api/v1/requests?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_Auth(t *testing.T) {
	auth.BcryptCost = bcrypt.MinCost
	t.Cleanup(func() { auth.BcryptCost = 12 })

	h := newAPIHarness(t)

	w := h.serve(t, testutil.MakeJSONRequest(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username": "newhire",
		"email":    "newhire@example.com",
		"password": "correct-horse",
	}), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = h.serve(t, testutil.MakeJSONRequest(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"username": "newhire",
		"email":    "other@example.com",
		"password": "correct-horse",
	}), nil)
	testutil.AssertErrorResponse(t, w, http.StatusConflict, "")

	w = h.serve(t, testutil.MakeJSONRequest(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": "newhire",
		"password": "wrong-password",
	}), nil)
	testutil.AssertErrorResponse(t, w, http.StatusUnauthorized, "Invalid credentials")

	w = h.serve(t, testutil.MakeJSONRequest(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": "newhire",
		"password": "correct-horse",
	}), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login models.LoginResponse
	testutil.DecodeJSON(t, w, &login)
	assert.Equal(t, "Bearer", login.TokenType)
	assert.Equal(t, models.RoleStaff, login.User.Role)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	w = h.serve(t, req, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var me models.User
	testutil.DecodeJSON(t, w, &me)
	assert.Equal(t, "newhire", me.Username)
}

func TestRouter_Events(t *testing.T) {
	h := newAPIHarness(t)

	w := h.serve(t, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// browsers pass the token as a query parameter
	token := h.token(t, h.users[models.RoleApproverLevel1])
	w = h.serve(t, httptest.NewRequest(http.MethodGet, "/api/v1/events?access_token="+token, nil), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(models.RoleApproverLevel1), w.Body.String())

	w = h.as(t, models.RoleStaff, http.MethodGet, "/api/v1/events/stats", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = h.as(t, models.RoleAdmin, http.MethodGet, "/api/v1/events/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
