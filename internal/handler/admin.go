package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/ration-portal/internal/backend"
	"github.com/mmeshcher/ration-portal/internal/model"
	"github.com/mmeshcher/ration-portal/internal/pagination"
	"github.com/mmeshcher/ration-portal/internal/service"
	"github.com/mmeshcher/ration-portal/internal/session"
	"github.com/mmeshcher/ration-portal/internal/validation"
	"github.com/mmeshcher/ration-portal/internal/view"
)

const (
	adminProductsPath  = "/dashboard/admin/products"
	adminOrdersPath    = "/dashboard/admin/orders"
	adminEmployeesPath = "/dashboard/admin/all-employees"
)

var productFields = []string{"id", "name", "detail", "price", "measure", "type", "brand"}

func listURL(base, rawPage, search string) string {
	page := pagination.ParsePage(rawPage)
	u := base + "?page=" + strconv.Itoa(page)
	if search = strings.TrimSpace(search); search != "" {
		u += "&search=" + url.QueryEscape(search)
	}
	return u
}

// AdminDashboard показывает сводку заказов и сотрудников.
func (h *Handler) AdminDashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.DashboardSummary(r.Context(), current(r))
	if err != nil {
		if h.expired(w, r, err) {
			return
		}
		le, status := h.loadError(r, err)
		h.render(w, r, status, "admin_dashboard", "Admin Dashboard", view.DashboardData{LoadError: le})
		return
	}
	h.render(w, r, http.StatusOK, "admin_dashboard", "Admin Dashboard", view.DashboardData{Summary: summary})
}

// AdminProducts показывает каталог с быстрым изменением цены и статуса.
func (h *Handler) AdminProducts(w http.ResponseWriter, r *http.Request) {
	page := pagination.ParsePage(r.URL.Query().Get("page"))

	products, err := h.service.AdminProducts(r.Context(), current(r), page)
	if err != nil {
		if h.expired(w, r, err) {
			return
		}
		le, status := h.loadError(r, err)
		h.render(w, r, status, "admin_products", "Products", view.ProductsData{LoadError: le, Page: page})
		return
	}
	h.render(w, r, http.StatusOK, "admin_products", "Products", view.ProductsData{Products: products, Page: page})
}

// NewProductPage показывает пустую форму товара.
func (h *Handler) NewProductPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "product_form", "Add Product", view.ProductFormData{
		Form:   view.NewForm(nil),
		Action: adminProductsPath + "/add",
	})
}

// EditProductPage показывает форму товара с текущими значениями.
func (h *Handler) EditProductPage(w http.ResponseWriter, r *http.Request) {
	id, ok := validation.ID(chi.URLParam(r, "productID"))
	if !ok {
		h.NotFound(w, r)
		return
	}

	p, err := h.service.AdminProduct(r.Context(), current(r), id)
	if err != nil {
		h.fail(w, r, err, adminProductsPath)
		return
	}

	h.render(w, r, http.StatusOK, "product_form", "Edit Product", view.ProductFormData{
		Form: view.NewForm(map[string]string{
			"id":      strconv.FormatInt(p.ID, 10),
			"name":    p.Name,
			"detail":  p.Detail,
			"price":   p.Price.StringFixed(2),
			"measure": p.Measure,
			"type":    p.Type,
			"brand":   p.Brand,
		}),
		Editing: true,
		Action:  fmt.Sprintf("%s/%d/edit", adminProductsPath, p.ID),
		Image:   p.Image,
	})
}

// SaveProduct создаёт товар или сохраняет изменения.
func (h *Handler) SaveProduct(w http.ResponseWriter, r *http.Request) {
	var form model.ProductForm
	if err := h.decodeMultipart(w, r, &form); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	editing := false
	action := adminProductsPath + "/add"
	if raw := chi.URLParam(r, "productID"); raw != "" {
		id, ok := validation.ID(raw)
		if !ok {
			h.NotFound(w, r)
			return
		}
		form.ID = id
		editing = true
		action = fmt.Sprintf("%s/%d/edit", adminProductsPath, id)
	}

	image, err := upload(r, backend.ImageField)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	msg, err := h.service.SaveProduct(r.Context(), current(r), form, image)
	if err != nil {
		if h.expired(w, r, err) {
			return
		}
		h.logFailure(r, err)
		h.render(w, r, http.StatusUnprocessableEntity, "product_form", "Product", view.ProductFormData{
			Form:    formState(values(r.MultipartForm.Value, productFields...), err),
			Editing: editing,
			Action:  action,
		})
		return
	}

	if msg == "" {
		msg = "Product saved."
	}
	h.notify(r, session.NoticeSuccess, msg)
	redirect(w, r, adminProductsPath)
}

type productUpdateForm struct {
	Price       string `schema:"price"`
	OrderUpdate bool   `schema:"order_update"`
	Page        string `schema:"page"`
}

// ToggleProductStatus переключает товар между активным и неактивным.
func (h *Handler) ToggleProductStatus(w http.ResponseWriter, r *http.Request) {
	h.updateProduct(w, r, func(id int64, form productUpdateForm) (string, error) {
		return h.service.ToggleProductStatus(r.Context(), current(r), id, form.OrderUpdate)
	})
}

// UpdateProductPrice меняет цену товара.
func (h *Handler) UpdateProductPrice(w http.ResponseWriter, r *http.Request) {
	h.updateProduct(w, r, func(id int64, form productUpdateForm) (string, error) {
		return h.service.UpdateProductPrice(r.Context(), current(r), id, form.Price, form.OrderUpdate)
	})
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request, update func(id int64, form productUpdateForm) (string, error)) {
	var form productUpdateForm
	if err := h.decodeForm(w, r, &form); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	back := listURL(adminProductsPath, form.Page, "")

	id, ok := validation.ID(chi.URLParam(r, "productID"))
	if !ok {
		h.NotFound(w, r)
		return
	}

	msg, err := update(id, form)
	if err != nil {
		h.fail(w, r, err, back)
		return
	}
	if msg == "" {
		msg = "Product updated."
	}
	h.notify(r, session.NoticeSuccess, msg)
	redirect(w, r, back)
}

// AdminOrders показывает заказы всех сотрудников.
func (h *Handler) AdminOrders(w http.ResponseWriter, r *http.Request) {
	page := pagination.ParsePage(r.URL.Query().Get("page"))

	orders, err := h.service.AdminOrders(r.Context(), current(r), page)
	if err != nil {
		if h.expired(w, r, err) {
			return
		}
		le, status := h.loadError(r, err)
		h.render(w, r, status, "orders", "Orders", view.OrdersData{LoadError: le, Base: adminOrdersPath, ShowEmployee: true})
		return
	}
	h.render(w, r, http.StatusOK, "orders", "Orders", view.OrdersData{Orders: orders, Base: adminOrdersPath, ShowEmployee: true})
}

// AdminOrder показывает карточку заказа любого сотрудника.
func (h *Handler) AdminOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := validation.ID(chi.URLParam(r, "orderID"))
	if !ok {
		h.NotFound(w, r)
		return
	}

	order, err := h.service.AdminOrder(r.Context(), current(r), id)
	if err != nil {
		if h.expired(w, r, err) {
			return
		}
		le, status := h.loadError(r, err)
		h.render(w, r, status, "order", "Order", view.OrderData{LoadError: le, Back: adminOrdersPath})
		return
	}
	h.render(w, r, http.StatusOK, "order", "Order", view.OrderData{Order: order, Back: adminOrdersPath})
}

// Employees показывает сотрудников с поиском; параметр edit открывает строку для изменения.
func (h *Handler) Employees(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := view.EmployeesData{
		Search: strings.TrimSpace(q.Get("search")),
		Page:   pagination.ParsePage(q.Get("page")),
	}
	data.EditID, _ = validation.ID(q.Get("edit"))

	h.renderEmployees(w, r, http.StatusOK, data)
}

func (h *Handler) renderEmployees(w http.ResponseWriter, r *http.Request, status int, data view.EmployeesData) {
	employees, err := h.service.Employees(r.Context(), current(r), data.Page, data.Search)
	if err != nil {
		if h.expired(w, r, err) {
			return
		}
		le, st := h.loadError(r, err)
		data.LoadError = le
		h.render(w, r, st, "employees", "Employees", data)
		return
	}
	data.Employees = employees

	if data.EditID != 0 && data.Form.Values == nil {
		for _, u := range employees.Items {
			if u.ID == data.EditID {
				data.Form = view.NewForm(map[string]string{"name": u.Name, "email": u.Email, "probation": u.Probation})
			}
		}
	}
	if data.Form.Values == nil {
		data.Form = view.NewForm(nil)
	}

	h.render(w, r, status, "employees", "Employees", data)
}

type employeeForm struct {
	model.EmployeeUpdate
	Page   string `schema:"page"`
	Search string `schema:"search"`
}

// UpdateEmployee сохраняет карточку сотрудника. Ошибки показываются в редактируемой строке.
func (h *Handler) UpdateEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := validation.ID(chi.URLParam(r, "userID"))
	if !ok {
		h.NotFound(w, r)
		return
	}

	var form employeeForm
	if err := h.decodeForm(w, r, &form); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	msg, err := h.service.UpdateEmployee(r.Context(), current(r), id, form.EmployeeUpdate)
	if err != nil {
		if h.expired(w, r, err) {
			return
		}
		h.logFailure(r, err)
		h.renderEmployees(w, r, http.StatusUnprocessableEntity, view.EmployeesData{
			Search: strings.TrimSpace(form.Search),
			Page:   pagination.ParsePage(form.Page),
			EditID: id,
			Form:   formState(values(r.PostForm, "name", "email", "probation"), err),
		})
		return
	}

	if msg == "" {
		msg = "Employee updated."
	}
	h.notify(r, session.NoticeSuccess, msg)
	redirect(w, r, listURL(adminEmployeesPath, form.Page, form.Search))
}

type importKind struct {
	heading string
	field   string
	accept  string
	run     func(h *Handler, r *http.Request, file model.Upload) (string, error)
}

var (
	employeeImport = importKind{
		heading: "Import Employees",
		field:   backend.EmployeeImportField,
		accept:  ".csv,.txt,.xlsx",
		run: func(h *Handler, r *http.Request, file model.Upload) (string, error) {
			return h.service.ImportEmployees(r.Context(), current(r), file)
		},
	}
	productImport = importKind{
		heading: "Import Products",
		field:   backend.ProductImportField,
		accept:  ".csv,.xlsx,.xls",
		run: func(h *Handler, r *http.Request, file model.Upload) (string, error) {
			return h.service.ImportProducts(r.Context(), current(r), file)
		},
	}
)

func (k importKind) data(r *http.Request, form view.Form, result string) view.ImportData {
	return view.ImportData{
		Form:    form,
		Heading: k.heading,
		Action:  r.URL.Path,
		Field:   k.field,
		Accept:  k.accept,
		Result:  result,
	}
}

// ImportEmployeesPage показывает форму импорта сотрудников.
func (h *Handler) ImportEmployeesPage(w http.ResponseWriter, r *http.Request) {
	h.importPage(w, r, employeeImport)
}

// ImportEmployees загружает файл сотрудников.
func (h *Handler) ImportEmployees(w http.ResponseWriter, r *http.Request) {
	h.importFile(w, r, employeeImport)
}

// ImportProductsPage показывает форму импорта товаров.
func (h *Handler) ImportProductsPage(w http.ResponseWriter, r *http.Request) {
	h.importPage(w, r, productImport)
}

// ImportProducts загружает файл товаров.
func (h *Handler) ImportProducts(w http.ResponseWriter, r *http.Request) {
	h.importFile(w, r, productImport)
}

func (h *Handler) importPage(w http.ResponseWriter, r *http.Request, kind importKind) {
	h.render(w, r, http.StatusOK, "import", kind.heading, kind.data(r, view.NewForm(nil), ""))
}

func (h *Handler) importFile(w http.ResponseWriter, r *http.Request, kind importKind) {
	if err := h.decodeMultipart(w, r, nil); err != nil {
		h.logFailure(r, err)
		h.importFailed(w, r, kind, http.StatusRequestEntityTooLarge, fieldError(kind.field, "The file could not be read."))
		return
	}

	file, err := upload(r, kind.field)
	if err != nil {
		h.logFailure(r, err)
		h.importFailed(w, r, kind, http.StatusBadRequest, fieldError(kind.field, "The file could not be read."))
		return
	}
	if file == nil {
		h.importFailed(w, r, kind, http.StatusUnprocessableEntity, fieldError(kind.field, validation.ErrFileRequired.Error()))
		return
	}

	msg, err := kind.run(h, r, *file)
	if err != nil {
		if h.expired(w, r, err) {
			return
		}
		h.logFailure(r, err)
		h.importFailed(w, r, kind, http.StatusUnprocessableEntity, err)
		return
	}

	h.logger.Info("file imported", zap.String("field", kind.field), zap.String("file", file.Filename))
	h.render(w, r, http.StatusOK, "import", kind.heading, kind.data(r, view.NewForm(nil), msg))
}

// importFailed показывает ошибку импорта. Ошибки бэкенда по строкам файла сводятся в одно сообщение.
func (h *Handler) importFailed(w http.ResponseWriter, r *http.Request, kind importKind, status int, err error) {
	form := view.NewForm(nil)

	var formErr *service.FormError
	var apiErr *backend.APIError
	switch {
	case errors.As(err, &formErr):
		form.Errors = formErr.Fields
	case errors.As(err, &apiErr):
		form.Error = message(apiErr)
	default:
		form.Error = message(err)
	}

	h.render(w, r, status, "import", kind.heading, kind.data(r, form, ""))
}

func fieldError(field, msg string) error {
	return &service.FormError{Fields: map[string][]string{field: {msg}}}
}
