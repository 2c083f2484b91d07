package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/ration-portal/internal/middleware"
	"github.com/mmeshcher/ration-portal/internal/model"
	"github.com/mmeshcher/ration-portal/internal/view"
)

// SetupRouter настраивает HTTP-маршруты и middleware портала.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(chimiddleware.Recoverer)
	if h.metrics != nil {
		r.Use(h.metrics.Middleware)
	}
	r.Use(custommiddleware.GzipMiddleware)

	r.Get("/healthz", h.Health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}
	r.Handle("/static/*", http.StripPrefix("/static/", view.Static()))

	r.Group(func(r chi.Router) {
		r.Use(custommiddleware.Sessions(h.sessions, h.logger))
		r.Use(custommiddleware.CSRF)

		r.Get("/", h.Home)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/login", h.LoginPage)
			r.Post("/login", h.Login)
			r.Get("/signup", h.SignupPage)
			r.Post("/signup", h.Signup)
			r.Post("/logout", h.Logout)
		})

		r.Route("/dashboard/user", func(r chi.Router) {
			r.Use(custommiddleware.RequireSession)

			r.Get("/", h.UserDashboard)
			r.Get("/rashan-policy", h.Policy)
			r.Get("/product-list", h.Catalog)

			r.Get("/cart", h.CartState)
			r.Post("/cart/lines", h.SetCartLine)
			r.Post("/cart/lines/{lineID}/delete", h.RemoveCartLine)
			r.Get("/cart/clear", h.ClearCartPage)
			r.Post("/cart/clear", h.ClearCart)
			r.Get("/cart/submit", h.SubmitCartPage)
			r.Post("/cart/submit", h.SubmitCart)

			r.Get("/orders", h.Orders)
			r.Get("/orders/{orderID}", h.Order)
			r.Post("/orders/edit-last", h.EditLastOrder)

			r.Get("/update-password", h.PasswordPage)
			r.Post("/update-password", h.UpdatePassword)
		})

		r.Route("/dashboard/admin", func(r chi.Router) {
			r.Use(custommiddleware.RequireSession)
			r.Use(custommiddleware.RequireRole(http.HandlerFunc(h.Denied), model.AdminRoles...))

			r.Get("/", h.AdminDashboard)

			r.Get("/products", h.AdminProducts)
			r.Get("/products/add", h.NewProductPage)
			r.Post("/products/add", h.SaveProduct)
			r.Get("/products/{productID}/edit", h.EditProductPage)
			r.Post("/products/{productID}/edit", h.SaveProduct)
			r.Post("/products/{productID}/status", h.ToggleProductStatus)
			r.Post("/products/{productID}/price", h.UpdateProductPrice)

			r.Get("/orders", h.AdminOrders)
			r.Get("/orders/{orderID}", h.AdminOrder)

			r.Get("/all-employees", h.Employees)
			r.Post("/all-employees/{userID}", h.UpdateEmployee)

			r.Get("/import-employees", h.ImportEmployeesPage)
			r.Post("/import-employees", h.ImportEmployees)
			r.Get("/import-products", h.ImportProductsPage)
			r.Post("/import-products", h.ImportProducts)

			r.Get("/update-password", h.PasswordPage)
			r.Post("/update-password", h.UpdatePassword)
		})

		r.NotFound(h.NotFound)
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		})
	})

	return r
}

// NotFound показывает страницу 404.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusNotFound, "error", "Not found", view.ErrorData{
		Heading:   "Page not found",
		LoadError: view.LoadError{Error: "The page you are looking for does not exist."},
	})
}

// Denied показывает страницу отказа в доступе.
func (h *Handler) Denied(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusForbidden, "denied", "Permission denied", nil)
}

// Health сообщает, что процесс обслуживает запросы.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
