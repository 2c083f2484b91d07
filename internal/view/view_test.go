package view

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/ration-portal/internal/cart"
	"github.com/mmeshcher/ration-portal/internal/model"
	"github.com/mmeshcher/ration-portal/internal/session"
)

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := New(nil)
	require.NoError(t, err)
	return r
}

func render(t *testing.T, r *Renderer, name string, p Page) string {
	t.Helper()
	w := httptest.NewRecorder()
	r.Render(w, http.StatusOK, name, p)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return w.Body.String()
}

func TestNew_ParsesAllPages(t *testing.T) {
	r := newRenderer(t)
	for _, name := range []string{
		"login", "signup", "user_dashboard", "policy", "product_list", "cart_confirm",
		"orders", "order", "password", "admin_dashboard", "admin_products",
		"product_form", "employees", "import", "denied", "error",
	} {
		assert.True(t, r.Has(name), name)
	}
	assert.False(t, r.Has("layout"))
}

func TestRender_UnknownTemplate(t *testing.T) {
	w := httptest.NewRecorder()
	newRenderer(t).Render(w, http.StatusOK, "missing", Page{})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRender_LayoutNavigationByRole(t *testing.T) {
	r := newRenderer(t)

	user := render(t, r, "policy", Page{
		Title: "Ration Policy",
		Path:  "/dashboard/user/rashan-policy",
		User:  &model.User{Name: "Ann", Role: model.RoleUser},
		Data:  model.DefaultPolicy,
	})
	assert.Contains(t, user, `href="/dashboard/user/product-list"`)
	assert.NotContains(t, user, `href="/dashboard/admin/products"`)
	assert.Contains(t, user, `class="theme-user"`)
	assert.Contains(t, user, "25,000.00")

	admin := render(t, r, "denied", Page{
		Path: "/dashboard/admin",
		User: &model.User{Name: "Bob", Role: model.RoleSuperAdmin},
	})
	assert.Contains(t, admin, `href="/dashboard/admin/import-products"`)
	assert.Contains(t, admin, `class="theme-admin"`)
}

func TestRender_NoticesAndCSRF(t *testing.T) {
	body := render(t, newRenderer(t), "password", Page{
		User:      &model.User{Name: "Ann", Role: model.RoleUser},
		CSRFToken: "tok-123",
		Notices:   []session.Notice{{Kind: session.NoticeSuccess, Text: "Password updated"}},
		Data:      PasswordData{Action: "/dashboard/user/update-password", Form: NewForm(nil)},
	})
	assert.Contains(t, body, "notice-success")
	assert.Contains(t, body, "Password updated")
	assert.Contains(t, body, `name="csrf_token" value="tok-123"`)
}

func TestRender_LoginFieldErrors(t *testing.T) {
	form := NewForm(map[string]string{"email": "ann@"})
	form.Errors = map[string][]string{"email": {"The email must be a valid email address."}}

	body := render(t, newRenderer(t), "login", Page{Data: AuthData{Form: form}})
	assert.Contains(t, body, `value="ann@"`)
	assert.Contains(t, body, "The email must be a valid email address.")
	assert.NotContains(t, body, "sidebar")
}

func TestRender_CatalogWithCart(t *testing.T) {
	body := render(t, newRenderer(t), "product_list", Page{
		User: &model.User{Name: "Ann", Role: model.RoleUser},
		Data: CatalogData{
			Page: 2,
			Products: &model.Page[model.Product]{
				Items:       []model.Product{{ID: 1, Name: "Rice", Price: decimal.NewFromInt(1200)}, {ID: 2, Name: "Oil"}},
				CurrentPage: 2,
				Links:       []model.PageLink{{Page: 1, Label: "«"}, {Page: 2, Label: "2", Active: true}},
			},
			Cart: cart.Snapshot{
				Loaded:          true,
				FailedProductID: 2,
				Lines: []model.CartLine{
					{LineID: 7, ProductID: 1, Quantity: 3, UnitPrice: decimal.NewFromInt(1200), LineTotal: decimal.NewFromInt(3600), Product: model.ProductSnapshot{Name: "Rice"}, State: model.LineReconciled},
				},
				Summary: model.CartSummary{PayableAmount: decimal.NewFromInt(1800)},
			},
		},
	})
	assert.Contains(t, body, "1,200.00")
	assert.Contains(t, body, `value="3"`)
	assert.Contains(t, body, "/dashboard/user/cart/lines/7/delete")
	assert.Contains(t, body, `href="/dashboard/user/product-list?page=1"`)
	assert.Contains(t, body, "row-failed")
	assert.Contains(t, body, "1,800.00")
}

func TestRender_LoadErrorHasRetry(t *testing.T) {
	body := render(t, newRenderer(t), "orders", Page{
		User: &model.User{Name: "Ann", Role: model.RoleUser},
		Data: OrdersData{LoadError: LoadError{Error: "Backend unavailable", RetryURL: "/dashboard/user/orders?page=3"}},
	})
	assert.Contains(t, body, "Backend unavailable")
	assert.Contains(t, body, `href="/dashboard/user/orders?page=3"`)
}

func TestRender_OrderEditButton(t *testing.T) {
	r := newRenderer(t)
	page := func(editable bool) string {
		return render(t, r, "order", Page{
			User: &model.User{Name: "Ann", Role: model.RoleUser},
			Data: OrderData{Order: &model.Order{ID: 5, IsEditable: editable}, CanEdit: true, Back: "/dashboard/user/orders"},
		})
	}
	assert.NotContains(t, page(true), "disabled")
	assert.Contains(t, page(false), "disabled")
}

func TestRender_EmployeesEditRow(t *testing.T) {
	form := NewForm(map[string]string{"name": "Ann", "email": "ann@x.io", "probation": "no"})
	body := render(t, newRenderer(t), "employees", Page{
		User: &model.User{Name: "Bob", Role: model.RoleAdmin},
		Data: EmployeesData{
			Employees: &model.Page[model.User]{Items: []model.User{{ID: 3, Name: "Ann"}, {ID: 4, Name: "Cid"}}},
			Search:    "an n",
			Page:      1,
			EditID:    3,
			Form:      form,
		},
	})
	assert.Contains(t, body, `action="/dashboard/admin/all-employees/3"`)
	assert.Contains(t, body, `<option value="no" selected>`)
	assert.Contains(t, body, "edit=4")
	assert.Contains(t, body, "search=an")
}

func TestMoney(t *testing.T) {
	tests := map[string]string{
		"0":         "0.00",
		"999.5":     "999.50",
		"1000":      "1,000.00",
		"25000":     "25,000.00",
		"1234567.8": "1,234,567.80",
		"-2500":     "-2,500.00",
	}
	for in, want := range tests {
		assert.Equal(t, want, Money(decimal.RequireFromString(in)), in)
	}
}

func TestNavigation_LongestPrefixActive(t *testing.T) {
	links := Navigation(model.RoleAdmin, "/dashboard/admin/products/add")

	var active []string
	for _, l := range links {
		if l.Active {
			active = append(active, l.Label)
		}
	}
	assert.Equal(t, []string{"Add Product"}, active)

	for _, l := range Navigation(model.RoleUser, "/dashboard/user/orders/12") {
		if l.Label == "Orders" {
			assert.True(t, l.Active)
		}
		if l.Label == "Dashboard" {
			assert.False(t, l.Active)
		}
	}
}

func TestDict(t *testing.T) {
	m, err := dict("a", 1, "b", "x")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1, "b": "x"}, m)

	_, err = dict("a")
	assert.Error(t, err)
	_, err = dict(1, 2)
	assert.Error(t, err)
}
