package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/ration-portal/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return NewClient(ts.URL, time.Second, nil)
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	return ctx
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, body); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestLogin_OK(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/login" {
			t.Fatalf("path = %s, want /api/login", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Fatalf("login must not send a bearer token")
		}

		var form model.LoginForm
		if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if form.Email != "a@b.c" {
			t.Fatalf("email = %s", form.Email)
		}

		writeJSON(t, w, http.StatusOK, `{"success":true,"status_code":200,"message":"ok",
			"data":{"token":"tok","user":{"id":"7","name":"Ann","email":"a@b.c","role":"user","my_role":"Admin"}}}`)
	})

	creds, err := client.Login(testCtx(t), model.LoginForm{Email: "a@b.c", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "tok", creds.Token)
	assert.Equal(t, int64(7), creds.User.ID)
	assert.Equal(t, model.RoleAdmin, creds.User.Role)
}

func TestLogin_ValidationError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusForbidden, `{"success":false,"status_code":403,"message":"Validation failed",
			"errors":{"password":["The password field is required."],"email":["The email must be valid."]}}`)
	})

	_, err := client.Login(testCtx(t), model.LoginForm{Email: "x"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.True(t, apiErr.Validation())
	assert.Equal(t, []string{"The password field is required."}, apiErr.Fields["password"])
	assert.Equal(t, "The email must be valid., The password field is required.", apiErr.Summary())
}

func TestDo_Unauthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer stale" {
			t.Fatalf("authorization = %q", r.Header.Get("Authorization"))
		}
		writeJSON(t, w, http.StatusUnauthorized, `{"message":"Unauthenticated."}`)
	})

	_, err := client.UserDetails(testCtx(t), "stale")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestDo_EnvelopeFailureWith200(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, `{"success":false,"status_code":422,"message":"Order limit reached"}`)
	})

	_, err := client.EditLastOrder(testCtx(t), "tok")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 422, apiErr.StatusCode)
	assert.Equal(t, "Order limit reached", apiErr.Message)
}

func TestDo_Unavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	client := NewClient(url, time.Second, nil)
	_, err := client.GetCart(testCtx(t), "tok")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestDo_NonJSONError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "<html>bad gateway</html>")
	})

	_, err := client.GetCart(testCtx(t), "tok")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestNewClient_AddsScheme(t *testing.T) {
	c := NewClient("example.org:8000/", time.Second, nil)
	assert.Equal(t, "http://example.org:8000", c.baseURL)
}

func TestSyncCart_SendsWholeLineSet(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/cart/add" {
			t.Fatalf("path = %s", r.URL.Path)
		}

		var req cartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(req.Products) != 2 {
			t.Fatalf("products = %d, want 2", len(req.Products))
		}

		writeJSON(t, w, http.StatusOK, `{"success":true,"data":{"cart_data":{"items":[
			{"id":1,"product_id":10,"quantity":"2","unit_price":"100.50","total":"201.00","product":{"id":10,"name":"Rice","measure":"kg"}},
			{"id":2,"product_id":11,"quantity":1,"unit_price":50,"total":50}
		],"payable_amount":"125.50","employee_contribution":"125.50","company_discount":"125.50"}}}`)
	})

	cart, err := client.SyncCart(testCtx(t), "tok", []model.CartLine{
		{ProductID: 10, Quantity: 2, LineID: 1},
		{ProductID: 11, Quantity: 1},
	})
	require.NoError(t, err)
	require.Len(t, cart.Lines, 2)
	assert.Equal(t, 2, cart.Lines[0].Quantity)
	assert.True(t, cart.Lines[0].UnitPrice.Equal(decimal.RequireFromString("100.50")))
	assert.Equal(t, "Rice", cart.Lines[0].Product.Name)
	assert.Equal(t, model.LineReconciled, cart.Lines[1].State)
	assert.True(t, cart.Summary.PayableAmount.Equal(decimal.RequireFromString("125.50")))
}

func TestDecodeCart_Shapes(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantLines int
		wantPay   string
	}{
		{name: "array", raw: `[{"product_id":1,"quantity":1}]`, wantLines: 1, wantPay: "0"},
		{name: "cart_data array, summary beside", raw: `{"cart_data":[{"product_id":1,"quantity":1}],"payable_amount":10}`, wantLines: 1, wantPay: "10"},
		{name: "cart_data object with items", raw: `{"cart_data":{"items":[{"product_id":1},{"product_id":2}],"payable_amount":"1,200.00"}}`, wantLines: 2, wantPay: "1200"},
		{name: "null", raw: `null`, wantLines: 0, wantPay: "0"},
		{name: "empty items", raw: `{"items":[]}`, wantLines: 0, wantPay: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cart, err := decodeCart(json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.Len(t, cart.Lines, tt.wantLines)
			assert.True(t, cart.Summary.PayableAmount.Equal(decimal.RequireFromString(tt.wantPay)),
				"payable = %s", cart.Summary.PayableAmount)
		})
	}
}

func TestDecodeCart_Invalid(t *testing.T) {
	_, err := decodeCart(json.RawMessage(`"nope"`))
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestCorrectedCart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusForbidden, `{"success":false,"status_code":403,"message":"Cap exceeded",
			"errors":{"cart_data":[{"id":3,"product_id":10,"quantity":4,"unit_price":"10","total":"40"}],"payable_amount":"20"}}`)
	})

	_, err := client.SyncCart(testCtx(t), "tok", []model.CartLine{{ProductID: 10, Quantity: 9}})
	require.Error(t, err)

	cart, ok := CorrectedCart(err)
	require.True(t, ok)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, 4, cart.Lines[0].Quantity)

	_, ok = CorrectedCart(errors.New("other"))
	assert.False(t, ok)
}

func TestCorrectedCart_FieldErrorsOnly(t *testing.T) {
	err := newAPIError(http.StatusForbidden, &envelope{
		Message: "invalid",
		Errors:  json.RawMessage(`{"quantity":["must be positive"]}`),
	})
	_, ok := CorrectedCart(err)
	assert.False(t, ok)
	assert.Equal(t, "must be positive", err.Summary())
}

func TestPlaceOrder_IdempotencyKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/orders/place" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get(IdempotencyHeader); got != "key-1" {
			t.Fatalf("idempotency key = %q", got)
		}
		writeJSON(t, w, http.StatusOK, `{"success":true,"data":{"id":"42"}}`)
	})

	id, err := client.PlaceOrder(testCtx(t), "tok", []model.CartLine{{ProductID: 1, Quantity: 1}}, "key-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestProducts_Page(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "2" {
			t.Fatalf("page = %s", r.URL.Query().Get("page"))
		}
		writeJSON(t, w, http.StatusOK, `{"success":true,"data":{"current_page":2,"last_page":3,"per_page":1,"total":3,
			"data":[{"id":5,"name":"Oil","price":"450.00","status":"1"}],
			"links":[{"url":"http://b/api/products?page=1","label":"&laquo; Previous","active":false},
			{"url":"http://b/api/products?page=2","label":"2","active":true},
			{"url":null,"label":"...","active":false},
			{"url":"http://b/api/products?page=3","label":"Next &raquo;","active":false}]}}`)
	})

	page, err := client.Products(testCtx(t), "tok", 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, model.ProductActive, page.Items[0].Status)
	assert.Equal(t, 2, page.CurrentPage)
	assert.Len(t, page.Links, 3)
}

func TestAdminUsers_Search(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("search") != "ann" {
			t.Fatalf("search = %q", r.URL.Query().Get("search"))
		}
		writeJSON(t, w, http.StatusOK, `{"success":true,"data":[{"id":1,"emp_id":1001,"name":"Ann","probation":"no"}]}`)
	})

	page, err := client.AdminUsers(testCtx(t), "tok", 1, " ann ")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "1001", page.Items[0].EmpID)
	assert.Equal(t, 1, page.LastPage)
}

func TestImportEmployees_Multipart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Fatalf("content type = %s", r.Header.Get("Content-Type"))
		}
		f, hdr, err := r.FormFile(EmployeeImportField)
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "staff.csv" || string(data) != "a,b\n" {
			t.Fatalf("unexpected upload %s %q", hdr.Filename, data)
		}
		writeJSON(t, w, http.StatusOK, `{"success":true,"message":"Imported 1 employees"}`)
	})

	msg, err := client.ImportEmployees(testCtx(t), "tok", model.Upload{Filename: "staff.csv", ContentType: "text/csv", Data: []byte("a,b\n")})
	require.NoError(t, err)
	assert.Equal(t, "Imported 1 employees", msg)
}

func TestStoreProduct_Fields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse: %v", err)
		}
		if r.FormValue("id") != "9" || r.FormValue("name") != "Tea" {
			t.Fatalf("fields = %v", r.MultipartForm.Value)
		}
		if _, ok := r.MultipartForm.Value["brand"]; ok {
			t.Fatalf("empty brand must be omitted")
		}
		if _, _, err := r.FormFile(ImageField); err != nil {
			t.Fatalf("image: %v", err)
		}
		writeJSON(t, w, http.StatusOK, `{"success":true,"message":"Product saved"}`)
	})

	msg, err := client.StoreProduct(testCtx(t), "tok",
		model.ProductForm{ID: 9, Name: " Tea ", Detail: "Green", Price: "10", Measure: "g", Type: "drink"},
		&model.Upload{Filename: "tea.png", ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}})
	require.NoError(t, err)
	assert.Equal(t, "Product saved", msg)
}

func TestDashboardSummary(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, `{"success":true,"data":{"total_users":"12","employee_ration_this_month":1500,
			"employee_cash_this_month":"300.5","recent_orders":[{"order_no":1001,"user_name":"Ann","grand_total":"10","discount":"5"}],
			"top_users":[{"employee_name":"Ann","grand_total":10}],"month_wise_ration":[{"month":"Jan","grand_total":"10"}]}}`)
	})

	s, err := client.DashboardSummary(testCtx(t), "tok")
	require.NoError(t, err)
	assert.Equal(t, 12, s.TotalUsers)
	assert.Equal(t, "1001", s.RecentOrders[0].OrderNo)
	assert.True(t, s.EmployeeCashThisMonth.Equal(decimal.RequireFromString("300.5")))
	assert.Len(t, s.MonthWiseRation, 1)
}

func TestOrder_Detail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/orders/5" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		writeJSON(t, w, http.StatusOK, `{"success":true,"data":{"id":5,"order_number":"ORD-5","status":"pending",
			"grand_total":"200.00","discount":"100.00","created_at":"2024-05-01 10:00:00","is_editable":1,
			"items":[{"id":1,"product_id":3,"quantity":"2","unit_price":"100","price":"200","product":{"id":3,"name":"Flour"}}]}}`)
	})

	o, err := client.Order(testCtx(t), "tok", 5)
	require.NoError(t, err)
	assert.True(t, o.IsEditable)
	assert.Equal(t, 2024, o.CreatedAt.Year())
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Flour", o.Items[0].Product.Name)
}
