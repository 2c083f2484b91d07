package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/ration-portal/internal/cart"
	"github.com/mmeshcher/ration-portal/internal/model"
	"github.com/mmeshcher/ration-portal/internal/pagination"
	"github.com/mmeshcher/ration-portal/internal/session"
	"github.com/mmeshcher/ration-portal/internal/validation"
	"github.com/mmeshcher/ration-portal/internal/view"
)

const (
	catalogPath    = "/dashboard/user/product-list"
	userOrdersPath = "/dashboard/user/orders"
)

func catalogURL(rawPage string) string {
	page := pagination.ParsePage(rawPage)
	if page <= 1 {
		return catalogPath
	}
	return fmt.Sprintf("%s?page=%d", catalogPath, page)
}

// UserDashboard показывает профиль сотрудника.
func (h *Handler) UserDashboard(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.Profile(r.Context(), current(r))
	if err != nil {
		if h.expired(w, r, err) {
			return
		}
		le, status := h.loadError(r, err)
		h.render(w, r, status, "user_dashboard", "Dashboard", view.ProfileData{LoadError: le})
		return
	}
	h.render(w, r, http.StatusOK, "user_dashboard", "Dashboard", view.ProfileData{Profile: profile})
}

// Policy показывает правила рационной программы.
func (h *Handler) Policy(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "policy", "Ration Policy", model.DefaultPolicy)
}

// Catalog показывает страницу товаров вместе с корзиной.
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	s := current(r)
	page := pagination.ParsePage(r.URL.Query().Get("page"))

	products, snap, err := h.service.Catalog(r.Context(), s, page)
	if err != nil {
		if h.expired(w, r, err) {
			return
		}
		le, status := h.loadError(r, err)
		h.render(w, r, status, "product_list", "Order Now",
			view.CatalogData{LoadError: le, Cart: h.service.CartSnapshot(s), Page: page})
		return
	}

	h.render(w, r, http.StatusOK, "product_list", "Order Now",
		view.CatalogData{Products: products, Cart: snap, Page: page})
}

type cartLineForm struct {
	ProductID string `schema:"product_id"`
	Quantity  string `schema:"quantity"`
	Page      string `schema:"page"`
}

// SetCartLine добавляет товар в корзину или меняет его количество.
func (h *Handler) SetCartLine(w http.ResponseWriter, r *http.Request) {
	var form cartLineForm
	if err := h.decodeForm(w, r, &form); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	back := catalogURL(form.Page)

	productID, ok := validation.ID(form.ProductID)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	quantity, err := validation.Quantity(form.Quantity)
	if err != nil {
		h.fail(w, r, cart.ErrInvalidQuantity, back)
		return
	}

	s := current(r)
	var lineID int64
	if line, ok := h.service.CartSnapshot(s).Line(productID); ok {
		lineID = line.LineID
	}

	snap, err := h.service.SetCartLine(r.Context(), s, productID, quantity, lineID)
	if err != nil {
		h.fail(w, r, err, back)
		return
	}

	if line, ok := snap.Line(productID); ok && line.Product.Name != "" {
		h.notify(r, session.NoticeSuccess, fmt.Sprintf("%s: quantity set to %d.", line.Product.Name, line.Quantity))
	} else {
		h.notify(r, session.NoticeSuccess, "Cart updated.")
	}
	redirect(w, r, back)
}

type pageForm struct {
	Page string `schema:"page"`
}

// RemoveCartLine удаляет строку корзины.
func (h *Handler) RemoveCartLine(w http.ResponseWriter, r *http.Request) {
	var form pageForm
	if err := h.decodeForm(w, r, &form); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	back := catalogURL(form.Page)

	lineID, ok := validation.ID(chi.URLParam(r, "lineID"))
	if !ok {
		h.fail(w, r, cart.ErrLineNotFound, back)
		return
	}

	if _, err := h.service.RemoveCartLine(r.Context(), current(r), lineID); err != nil {
		h.fail(w, r, err, back)
		return
	}
	h.notify(r, session.NoticeSuccess, "Item removed from cart.")
	redirect(w, r, back)
}

// ClearCartPage просит подтвердить очистку корзины.
func (h *Handler) ClearCartPage(w http.ResponseWriter, r *http.Request) {
	snap := h.service.CartSnapshot(current(r))
	h.render(w, r, http.StatusOK, "cart_confirm", "Clear cart", view.ConfirmData{
		Heading:  "Clear cart",
		Question: "Remove all items from your cart?",
		Action:   "/dashboard/user/cart/clear",
		Confirm:  "Yes, clear cart",
		Lines:    snap.Lines,
		Summary:  snap.Summary,
	})
}

type confirmForm struct {
	Confirm string `schema:"confirm"`
}

func (f confirmForm) confirmed() bool {
	return f.Confirm == "yes"
}

// ClearCart очищает корзину после подтверждения.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	var form confirmForm
	if err := h.decodeForm(w, r, &form); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.ClearCart(r.Context(), current(r), form.confirmed()); err != nil {
		h.fail(w, r, err, catalogPath)
		return
	}
	h.notify(r, session.NoticeSuccess, "Cart cleared.")
	redirect(w, r, catalogPath)
}

// SubmitCartPage перечитывает корзину и просит подтвердить оформление заказа.
func (h *Handler) SubmitCartPage(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Cart(r.Context(), current(r))
	if err != nil {
		h.fail(w, r, err, catalogPath)
		return
	}
	if snap.Empty() {
		h.fail(w, r, cart.ErrEmptyCart, catalogPath)
		return
	}

	h.render(w, r, http.StatusOK, "cart_confirm", "Place order", view.ConfirmData{
		Heading:  "Place order",
		Question: "Submit this cart as your ration order?",
		Action:   "/dashboard/user/cart/submit",
		Confirm:  "Place order",
		Lines:    snap.Lines,
		Summary:  snap.Summary,
	})
}

// SubmitCart оформляет заказ и ведёт на его карточку.
func (h *Handler) SubmitCart(w http.ResponseWriter, r *http.Request) {
	var form confirmForm
	if err := h.decodeForm(w, r, &form); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.SubmitCart(r.Context(), current(r), form.confirmed())
	if err != nil {
		h.fail(w, r, err, catalogPath)
		return
	}
	h.notify(r, session.NoticeSuccess, "Your order has been placed.")
	redirect(w, r, fmt.Sprintf("%s/%d", userOrdersPath, id))
}

type cartStateResponse struct {
	Lines           []cartLineResponse `json:"lines"`
	PayableAmount   string             `json:"payable_amount"`
	Estimate        string             `json:"estimate"`
	Pending         bool               `json:"pending"`
	LastError       string             `json:"last_error,omitempty"`
	FailedProductID int64              `json:"failed_product_id,omitempty"`
}

type cartLineResponse struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	LineTotal string `json:"line_total"`
	State     string `json:"state"`
}

// CartState отдаёт локальное состояние корзины в JSON без обращения к бэкенду.
func (h *Handler) CartState(w http.ResponseWriter, r *http.Request) {
	snap := h.service.CartSnapshot(current(r))

	resp := cartStateResponse{
		Lines:           make([]cartLineResponse, 0, len(snap.Lines)),
		PayableAmount:   snap.Summary.PayableAmount.StringFixed(2),
		Estimate:        snap.Estimate.StringFixed(2),
		Pending:         snap.Pending,
		LastError:       snap.LastError,
		FailedProductID: snap.FailedProductID,
	}
	for _, l := range snap.Lines {
		resp.Lines = append(resp.Lines, cartLineResponse{
			ID:        l.LineID,
			ProductID: l.ProductID,
			Name:      l.Product.Name,
			Quantity:  l.Quantity,
			LineTotal: l.LineTotal.StringFixed(2),
			State:     string(l.State),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("encode cart state error", zap.Error(err))
	}
}

// Orders показывает заказы сотрудника.
func (h *Handler) Orders(w http.ResponseWriter, r *http.Request) {
	page := pagination.ParsePage(r.URL.Query().Get("page"))

	orders, err := h.service.Orders(r.Context(), current(r), page)
	if err != nil {
		if h.expired(w, r, err) {
			return
		}
		le, status := h.loadError(r, err)
		h.render(w, r, status, "orders", "Orders", view.OrdersData{LoadError: le, Base: userOrdersPath})
		return
	}
	h.render(w, r, http.StatusOK, "orders", "Orders", view.OrdersData{Orders: orders, Base: userOrdersPath})
}

// Order показывает карточку заказа сотрудника.
func (h *Handler) Order(w http.ResponseWriter, r *http.Request) {
	id, ok := validation.ID(chi.URLParam(r, "orderID"))
	if !ok {
		h.NotFound(w, r)
		return
	}

	order, err := h.service.Order(r.Context(), current(r), id)
	if err != nil {
		if h.expired(w, r, err) {
			return
		}
		le, status := h.loadError(r, err)
		h.render(w, r, status, "order", "Order", view.OrderData{LoadError: le, Back: userOrdersPath})
		return
	}
	h.render(w, r, http.StatusOK, "order", "Order", view.OrderData{Order: order, CanEdit: true, Back: userOrdersPath})
}

// EditLastOrder открывает последний заказ для изменения и ведёт в каталог.
func (h *Handler) EditLastOrder(w http.ResponseWriter, r *http.Request) {
	msg, err := h.service.EditLastOrder(r.Context(), current(r))
	if err != nil {
		h.fail(w, r, err, userOrdersPath)
		return
	}
	if msg == "" {
		msg = "Your last order is open for editing."
	}
	h.notify(r, session.NoticeSuccess, msg)
	redirect(w, r, catalogPath)
}
