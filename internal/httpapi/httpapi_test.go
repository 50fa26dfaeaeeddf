package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mitienda/backend/internal/blob"
	"mitienda/backend/internal/cache"
	"mitienda/backend/internal/service"
	"mitienda/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopCatalogCache{}, blob.Disabled{}, 5*time.Second, nil)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

func doJSON(t *testing.T, handler http.Handler, method, path, token, csrf string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func loginAs(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", "", map[string]string{
		"username": username,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d (%s)", username, rec.Code, rec.Body.String())
	}
	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return body.AccessToken
}

func csrfToken(t *testing.T, handler http.Handler) string {
	t.Helper()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/auth/csrf-token", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("csrf token request failed: %d", rec.Code)
	}
	var body struct {
		CSRFToken string `json:"csrf_token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode csrf response: %v", err)
	}
	return body.CSRFToken
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleLogin(t *testing.T) {
	handler := newTestAPI(t).Handler()

	token := loginAs(t, handler, "admin", "admin123")
	if token == "" {
		t.Fatalf("expected a token")
	}

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", "", map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleLogin_RateLimit(t *testing.T) {
	handler := newTestAPI(t).Handler()

	payload, _ := json.Marshal(map[string]string{"username": "admin", "password": "badpass"})

	var lastCode int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}

	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after 6 attempts, got %d", lastCode)
	}
}

func TestCatalogIsPublic(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/catalog", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Catalog []struct {
			Product struct {
				Name string `json:"name"`
			} `json:"product"`
		} `json:"catalog"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode catalog: %v", err)
	}
	if len(body.Catalog) == 0 {
		t.Fatalf("expected seeded catalog entries")
	}
}

func TestProductsRequireAuth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", "", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMutationsRequireCSRF(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAs(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", token, "", map[string]any{
		"name":  "Producto CSRF",
		"price": "1.00",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF token, got %d", rec.Code)
	}
}

func TestCreateProductAndDuplicate(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAs(t, handler, "admin", "admin123")
	csrf := csrfToken(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", token, csrf, map[string]any{
		"name":  "Aceitunas Rellenas",
		"price": "1.75",
		"stock": 40,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/products", token, csrf, map[string]any{
		"name":  "aceitunas rellenas",
		"price": "2.00",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate name, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestOperatorCannotCreateProducts(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAs(t, handler, "operator", "operator123")
	csrf := csrfToken(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", token, csrf, map[string]any{
		"name":  "Producto Prohibido",
		"price": "1.00",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for operator, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestSaleInsufficientStockPayload(t *testing.T) {
	handler := newTestAPI(t).Handler()
	adminToken := loginAs(t, handler, "admin", "admin123")
	operatorToken := loginAs(t, handler, "operator", "operator123")
	csrf := csrfToken(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", adminToken, csrf, map[string]any{
		"name":  "Artículo Escaso",
		"price": "2.50",
		"stock": 2,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create product: %d (%s)", rec.Code, rec.Body.String())
	}
	var created struct {
		Product struct {
			ID string `json:"id"`
		} `json:"product"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode product: %v", err)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/clients?kind=customer", operatorToken, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list clients: %d", rec.Code)
	}
	var clients struct {
		Clients []struct {
			ID string `json:"id"`
		} `json:"clients"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&clients); err != nil {
		t.Fatalf("decode clients: %v", err)
	}
	if len(clients.Clients) == 0 {
		t.Fatalf("expected seeded customers")
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", operatorToken, csrf, map[string]any{
		"customer_id": clients.Clients[0].ID,
		"items": []map[string]any{
			{"product_id": created.Product.ID, "quantity": 5},
		},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (%s)", rec.Code, rec.Body.String())
	}

	var payload struct {
		ProductID string `json:"product_id"`
		Available int    `json:"available"`
		Requested int    `json:"requested"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if payload.ProductID != created.Product.ID || payload.Available != 2 || payload.Requested != 5 {
		t.Fatalf("unexpected stock error payload: %+v", payload)
	}
}

func TestFeatureFlagRequiresSuperAdmin(t *testing.T) {
	handler := newTestAPI(t).Handler()
	adminToken := loginAs(t, handler, "admin", "admin123")
	rootToken := loginAs(t, handler, "root", "admin123")
	csrf := csrfToken(t, handler)

	rec := doJSON(t, handler, http.MethodPatch, "/api/v1/config/features", adminToken, csrf, map[string]any{
		"feature": "offers",
		"enabled": true,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for admin, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPatch, "/api/v1/config/features", rootToken, csrf, map[string]any{
		"feature": "offers",
		"enabled": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for superadmin, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/config", adminToken, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get config: %d", rec.Code)
	}
	var body struct {
		Config struct {
			Features struct {
				Offers bool `json:"offers"`
			} `json:"features"`
		} `json:"config"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if !body.Config.Features.Offers {
		t.Fatalf("expected offers flag enabled")
	}
}

func TestNextCodePreview(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAs(t, handler, "operator", "operator123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/codes/next?series=sale", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/codes/next?series=invoices", token, "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown series, got %d", rec.Code)
	}
}

func TestUsersEndpointRequiresSuperAdmin(t *testing.T) {
	handler := newTestAPI(t).Handler()
	adminToken := loginAs(t, handler, "admin", "admin123")
	rootToken := loginAs(t, handler, "root", "admin123")
	csrf := csrfToken(t, handler)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/users", adminToken, "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for admin, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/users", rootToken, csrf, map[string]any{
		"username": "cajero2",
		"password": "secret123",
		"role":     "operator",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	// The new account can log in right away.
	if token := loginAs(t, handler, "cajero2", "secret123"); token == "" {
		t.Fatalf("expected new user to log in")
	}
}

func TestUnknownDocumentIDReturns404(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAs(t, handler, "operator", "operator123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/sales/sal_missing", token, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAs(t, handler, "admin", "admin123")
	csrf := csrfToken(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/categories", token, csrf, map[string]any{
		"name":       "Congelados",
		"unexpected": "field",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d (%s)", rec.Code, rec.Body.String())
	}
}
