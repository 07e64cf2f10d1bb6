package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/cafestock/internal/store/memstore"
	"github.com/MarkoPoloResearchLab/cafestock/pkg/inventory"
)

func newTestConfig(test *testing.T) Config {
	test.Helper()
	cfg := Config{
		AllowedOrigins:    []string{"http://localhost:8000"},
		SessionSigningKey: "secret-key",
		SessionIssuer:     "tauth",
		SessionCookieName: "app_session",
		NotifyRecipients:  []string{"owner@example.com"},
	}
	if err := cfg.Validate(); err != nil {
		test.Fatalf("config validate failed: %v", err)
	}
	return cfg
}

func newSeededService(test *testing.T) (*inventory.Service, *memstore.Store) {
	test.Helper()
	store := memstore.New()
	ctx := context.Background()
	tables := inventory.DefaultTables()
	seed := func(table inventory.Table, rows ...inventory.Row) {
		if err := store.Append(ctx, table, rows); err != nil {
			test.Fatalf("seed %s: %v", table.Name, err)
		}
	}
	seed(tables.CatalogTable(), inventory.Row{inventory.ColumnUPC: "MILK", inventory.ColumnProductName: "Whole Milk", inventory.ColumnReorderPoint: "10", inventory.ColumnParLevel: "20", inventory.ColumnBaseUnit: "gal"})
	seed(tables.SalesTable(), inventory.Row{inventory.ColumnDate: "2026-02-05", inventory.ColumnMenuItem: "Latte", inventory.ColumnQtySold: "10"})
	seed(tables.RecipesTable(), inventory.Row{inventory.ColumnMenuItem: "Latte", inventory.ColumnIngredientUPC: "MILK", inventory.ColumnQtyPerItem: "0.25"})
	now := func() time.Time { return time.Date(2026, time.February, 6, 13, 0, 0, 0, time.UTC) }
	service, err := inventory.NewService(store, now)
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	return service, store
}

func newTestServer(test *testing.T, service Inventory, validator *sessionvalidator.Validator) *httptest.Server {
	test.Helper()
	router := NewRouter(newTestConfig(test), service, zap.NewNop(), validator)
	server := httptest.NewServer(router)
	test.Cleanup(server.Close)
	return server
}

func execRequest(test *testing.T, server *httptest.Server, method string, path string, cookie *http.Cookie, payload any) (int, []byte) {
	test.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			test.Fatalf("marshal failed: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	request, err := http.NewRequest(method, server.URL+path, body)
	if err != nil {
		test.Fatalf("request build failed: %v", err)
	}
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		request.AddCookie(cookie)
	}
	response, err := server.Client().Do(request)
	if err != nil {
		test.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()
	var buffer bytes.Buffer
	if _, err := buffer.ReadFrom(response.Body); err != nil {
		test.Fatalf("read body failed: %v", err)
	}
	return response.StatusCode, buffer.Bytes()
}

func decode[T any](test *testing.T, raw []byte) T {
	test.Helper()
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		test.Fatalf("decode %s: %v", raw, err)
	}
	return value
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestAPIDailyFlow(test *testing.T) {
	test.Parallel()
	service, _ := newSeededService(test)
	server := newTestServer(test, service, nil)

	status, body := execRequest(test, server, http.MethodPost, "/api/purchases", nil, map[string]any{"upc": "milk", "base_units_added": "10.5", "vendor": "Dairy Co"})
	if status != http.StatusCreated {
		test.Fatalf("purchase: expected 201, got %d: %s", status, body)
	}

	status, body = execRequest(test, server, http.MethodPost, "/api/usage/recompute", nil, map[string]any{"date": "2026-02-05", "mode": "replace"})
	if status != http.StatusOK {
		test.Fatalf("usage: expected 200, got %d: %s", status, body)
	}
	usage := decode[usagePayload](test, body)
	if usage.RowsWritten != 1 || !usage.Rows[0].UsedQty.Equal(decimal.NewFromFloat(2.5)) {
		test.Fatalf("unexpected usage payload: %+v", usage)
	}

	status, body = execRequest(test, server, http.MethodPost, "/api/reorder/recompute", nil, nil)
	if status != http.StatusOK {
		test.Fatalf("reorder: expected 200, got %d: %s", status, body)
	}
	reorder := decode[reorderPayload](test, body)
	if reorder.Flagged != 1 || reorder.Rows[0].OnHand.String() != "8" || reorder.Rows[0].QtyToOrder.String() != "12" {
		test.Fatalf("unexpected reorder payload: %+v", reorder)
	}

	status, body = execRequest(test, server, http.MethodGet, "/api/on-hand/MILK", nil, nil)
	if status != http.StatusOK {
		test.Fatalf("on-hand: expected 200, got %d: %s", status, body)
	}
	if reading := decode[onHandPayload](test, body); reading.OnHand.String() != "8" || reading.BaseUnit != "gal" {
		test.Fatalf("unexpected on-hand payload: %+v", reading)
	}

	status, body = execRequest(test, server, http.MethodGet, "/api/shopping-list", nil, nil)
	if list := decode[shoppingListPayload](test, body); status != http.StatusOK || len(list.Items) != 1 || list.Date != "2026-02-06" {
		test.Fatalf("unexpected shopping list %d: %s", status, body)
	}

	status, body = execRequest(test, server, http.MethodPost, "/api/shopping-actions", nil, map[string]any{"upc": "MILK", "action": "dismissed"})
	if status != http.StatusCreated {
		test.Fatalf("action: expected 201, got %d: %s", status, body)
	}

	_, body = execRequest(test, server, http.MethodGet, "/api/shopping-list", nil, nil)
	if list := decode[shoppingListPayload](test, body); len(list.Items) != 0 {
		test.Fatalf("dismissed row must be hidden: %s", body)
	}
	_, body = execRequest(test, server, http.MethodGet, "/api/shopping-list?include_hidden=true", nil, nil)
	if list := decode[shoppingListPayload](test, body); len(list.Items) != 1 {
		test.Fatalf("include_hidden must return the dismissed row: %s", body)
	}
}

func TestAPIManualRows(test *testing.T) {
	test.Parallel()
	service, _ := newSeededService(test)
	server := newTestServer(test, service, nil)

	status, body := execRequest(test, server, http.MethodDelete, "/api/manual-rows/CUPS", nil, nil)
	if status != http.StatusNotFound {
		test.Fatalf("expected 404 for a missing manual row, got %d: %s", status, body)
	}
	status, body = execRequest(test, server, http.MethodPut, "/api/manual-rows/CUPS", nil, map[string]any{"product_name": "12oz Cups", "qty_to_order": 2, "base_unit": "sleeve"})
	if status != http.StatusOK {
		test.Fatalf("expected 200, got %d: %s", status, body)
	}
	_, body = execRequest(test, server, http.MethodGet, "/api/shopping-list", nil, nil)
	list := decode[shoppingListPayload](test, body)
	if len(list.Items) != 1 || list.Items[0].UPC != "CUPS" {
		test.Fatalf("manual row must appear on the list: %s", body)
	}
	status, body = execRequest(test, server, http.MethodDelete, "/api/manual-rows/CUPS", nil, nil)
	if status != http.StatusOK {
		test.Fatalf("expected 200, got %d: %s", status, body)
	}
}

func TestAPIValidationErrors(test *testing.T) {
	test.Parallel()
	service, _ := newSeededService(test)
	server := newTestServer(test, service, nil)

	testCases := []struct {
		name     string
		method   string
		path     string
		payload  any
		wantCode string
	}{
		{name: "unknown action", method: http.MethodPost, path: "/api/shopping-actions", payload: map[string]any{"upc": "MILK", "action": "bogus"}, wantCode: "invalid_request"},
		{name: "bad date", method: http.MethodGet, path: "/api/on-hand/MILK?date=06/02/2026", wantCode: "invalid_request"},
		{name: "bad mode", method: http.MethodPost, path: "/api/usage/recompute", payload: map[string]any{"mode": "upsert"}, wantCode: "invalid_request"},
		{name: "bad force level", method: http.MethodPost, path: "/api/notifications/reorder", payload: map[string]any{"force_level": 7}, wantCode: "invalid_request"},
		{name: "zero purchase", method: http.MethodPost, path: "/api/purchases", payload: map[string]any{"upc": "MILK"}, wantCode: "invalid_request"},
		{name: "zero adjustment", method: http.MethodPost, path: "/api/adjustments", payload: map[string]any{"upc": "MILK", "base_units_delta": "0"}, wantCode: "invalid_request"},
		{name: "bad include_hidden", method: http.MethodGet, path: "/api/shopping-list?include_hidden=maybe", wantCode: "invalid_request"},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			status, body := execRequest(test, server, testCase.method, testCase.path, nil, testCase.payload)
			if status != http.StatusBadRequest {
				test.Fatalf("expected 400, got %d: %s", status, body)
			}
			if envelope := decode[errorEnvelope](test, body); envelope.Error.Code != testCase.wantCode {
				test.Fatalf("expected code %s, got %+v", testCase.wantCode, envelope)
			}
		})
	}
}

type stubInventory struct {
	Inventory
	reorderErr error
}

func (stub *stubInventory) RecomputeReorder(context.Context) (inventory.ReorderResult, error) {
	return inventory.ReorderResult{}, stub.reorderErr
}

func TestAPIMapsServiceErrors(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "run in progress", err: inventory.ErrRunInProgress, wantStatus: http.StatusConflict, wantCode: "run_in_progress"},
		{name: "rate limited", err: inventory.ErrRateLimited, wantStatus: http.StatusBadGateway, wantCode: "store_rate_limited"},
		{name: "missing column", err: inventory.ErrMissingColumn, wantStatus: http.StatusBadGateway, wantCode: "store_schema"},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			server := newTestServer(test, &stubInventory{reorderErr: testCase.err}, nil)
			status, body := execRequest(test, server, http.MethodPost, "/api/reorder/recompute", nil, nil)
			if status != testCase.wantStatus {
				test.Fatalf("expected %d, got %d: %s", testCase.wantStatus, status, body)
			}
			if envelope := decode[errorEnvelope](test, body); envelope.Error.Code != testCase.wantCode {
				test.Fatalf("expected code %s, got %+v", testCase.wantCode, envelope)
			}
		})
	}
}

func TestAPISessionActor(test *testing.T) {
	test.Parallel()
	service, store := newSeededService(test)
	cfg := newTestConfig(test)
	validator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		test.Fatalf("validator init failed: %v", err)
	}
	server := newTestServer(test, service, validator)

	status, _ := execRequest(test, server, http.MethodPost, "/api/shopping-actions", nil, map[string]any{"upc": "MILK", "action": "snoozed"})
	if status != http.StatusUnauthorized {
		test.Fatalf("expected 401 without a session, got %d", status)
	}

	cookie := buildSessionCookie(test, cfg)
	status, body := execRequest(test, server, http.MethodPost, "/api/shopping-actions", cookie, map[string]any{"upc": "MILK", "action": "snoozed", "note": "next week"})
	if status != http.StatusCreated {
		test.Fatalf("expected 201, got %d: %s", status, body)
	}
	records, err := store.ReadAll(context.Background(), inventory.DefaultTables().ActionsTable())
	if err != nil {
		test.Fatalf("read actions: %v", err)
	}
	if len(records.Rows) != 1 || records.Rows[0].Value(inventory.ColumnActor) != "manager@example.com" {
		test.Fatalf("actor must come from the session: %+v", records.Rows)
	}

	status, _ = execRequest(test, server, http.MethodGet, "/healthz", nil, nil)
	if status != http.StatusOK {
		test.Fatalf("healthz must stay public, got %d", status)
	}
	status, _ = execRequest(test, server, http.MethodGet, "/metrics", nil, nil)
	if status != http.StatusOK {
		test.Fatalf("metrics must stay public, got %d", status)
	}
}

func buildSessionCookie(test *testing.T, cfg Config) *http.Cookie {
	test.Helper()
	claims := &sessionvalidator.Claims{
		UserID:          "manager-1",
		UserEmail:       "manager@example.com",
		UserDisplayName: "Manager",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.SessionIssuer,
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.SessionSigningKey))
	if err != nil {
		test.Fatalf("token signing failed: %v", err)
	}
	return &http.Cookie{Name: cfg.SessionCookieName, Value: signed}
}
