package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/ration-portal/internal/model"
	"github.com/mmeshcher/ration-portal/internal/pagination"
)

// Бэкенд отдаёт числа то строками, то числами; типы ниже принимают оба варианта.

type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := unquote(b)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = flexInt(n)
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse int %q: %w", s, err)
	}
	*f = flexInt(v)
	return nil
}

type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := unquote(b)
	if s == "null" {
		s = ""
	}
	*f = flexString(s)
	return nil
}

type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	switch strings.ToLower(unquote(b)) {
	case "1", "true", "yes":
		*f = true
	default:
		*f = false
	}
	return nil
}

type money decimal.Decimal

func (m *money) UnmarshalJSON(b []byte) error {
	s := strings.ReplaceAll(unquote(b), ",", "")
	if s == "" || s == "null" {
		*m = money(decimal.Zero)
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("parse amount %q: %w", s, err)
	}
	*m = money(d)
	return nil
}

func (m money) dec() decimal.Decimal {
	return decimal.Decimal(m)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

type flexTime time.Time

func (f *flexTime) UnmarshalJSON(b []byte) error {
	s := unquote(b)
	if s == "" || s == "null" {
		*f = flexTime(time.Time{})
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*f = flexTime(t)
			return nil
		}
	}
	// Неизвестный формат даты не должен ломать разбор всего ответа.
	*f = flexTime(time.Time{})
	return nil
}

func unquote(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return strings.TrimSpace(u)
		}
		return strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

type wireUser struct {
	ID        flexInt    `json:"id"`
	EmpID     flexString `json:"emp_id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	MyRole    string     `json:"my_role"`
	Role      string     `json:"role"`
	Probation flexString `json:"probation"`
	CreatedAt flexTime   `json:"created_at"`
}

func (w wireUser) toModel() model.User {
	role := w.MyRole
	if role == "" {
		role = w.Role
	}
	return model.User{
		ID:        int64(w.ID),
		EmpID:     string(w.EmpID),
		Name:      w.Name,
		Email:     w.Email,
		Role:      model.Role(strings.ToLower(strings.TrimSpace(role))),
		Probation: string(w.Probation),
		CreatedAt: time.Time(w.CreatedAt),
	}
}

type wireProduct struct {
	ID      flexInt    `json:"id"`
	Name    string     `json:"name"`
	Detail  string     `json:"detail"`
	Price   money      `json:"price"`
	Measure string     `json:"measure"`
	Type    string     `json:"type"`
	Brand   flexString `json:"brand"`
	Image   flexString `json:"image"`
	Status  flexInt    `json:"status"`
}

func (w wireProduct) toModel() model.Product {
	return model.Product{
		ID:      int64(w.ID),
		Name:    w.Name,
		Detail:  w.Detail,
		Price:   w.Price.dec(),
		Measure: w.Measure,
		Type:    w.Type,
		Brand:   string(w.Brand),
		Image:   string(w.Image),
		Status:  model.ProductStatus(w.Status),
	}
}

type wireCartLine struct {
	ID        flexInt      `json:"id"`
	ProductID flexInt      `json:"product_id"`
	Quantity  flexInt      `json:"quantity"`
	UnitPrice money        `json:"unit_price"`
	Total     money        `json:"total"`
	Product   *wireProduct `json:"product"`
}

func (w wireCartLine) toModel() model.CartLine {
	line := model.CartLine{
		LineID:    int64(w.ID),
		ProductID: int64(w.ProductID),
		Quantity:  int(w.Quantity),
		UnitPrice: w.UnitPrice.dec(),
		LineTotal: w.Total.dec(),
		State:     model.LineReconciled,
	}
	if w.Product != nil {
		line.Product = w.Product.toModel().Snapshot()
	}
	return line
}

type wireCartObject struct {
	CartData             json.RawMessage `json:"cart_data"`
	Items                json.RawMessage `json:"items"`
	PayableAmount        *money          `json:"payable_amount"`
	EmployeeContribution *money          `json:"employee_contribution"`
	CompanyDiscount      *money          `json:"company_discount"`
}

// decodeCart приводит полезную нагрузку корзины к одному виду.
// cart_data приходит то массивом строк, то объектом с полем items,
// итоги лежат рядом с cart_data или внутри него.
func decodeCart(raw json.RawMessage) (model.Cart, error) {
	cart := model.Cart{Lines: []model.CartLine{}}
	if err := collectCart(raw, &cart, 0); err != nil {
		return model.Cart{}, err
	}
	return cart, nil
}

const maxCartNesting = 3

func collectCart(raw json.RawMessage, cart *model.Cart, depth int) error {
	trimmed := bytes.TrimSpace(raw)
	if isNull(trimmed) {
		return nil
	}
	if depth > maxCartNesting {
		return fmt.Errorf("%w: cart payload nested too deep", ErrUnavailable)
	}

	switch trimmed[0] {
	case '[':
		var lines []wireCartLine
		if err := json.Unmarshal(trimmed, &lines); err != nil {
			return fmt.Errorf("%w: decode cart lines: %w", ErrUnavailable, err)
		}
		cart.Lines = make([]model.CartLine, 0, len(lines))
		for _, l := range lines {
			cart.Lines = append(cart.Lines, l.toModel())
		}
		return nil
	case '{':
		var obj wireCartObject
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return fmt.Errorf("%w: decode cart: %w", ErrUnavailable, err)
		}
		if obj.PayableAmount != nil {
			cart.Summary.PayableAmount = obj.PayableAmount.dec()
		}
		if obj.EmployeeContribution != nil {
			cart.Summary.EmployeeContribution = obj.EmployeeContribution.dec()
		}
		if obj.CompanyDiscount != nil {
			cart.Summary.CompanyDiscount = obj.CompanyDiscount.dec()
		}
		if !isNull(obj.CartData) {
			return collectCart(obj.CartData, cart, depth+1)
		}
		return collectCart(obj.Items, cart, depth+1)
	default:
		return fmt.Errorf("%w: unexpected cart payload", ErrUnavailable)
	}
}

type wireOrderLine struct {
	ID        flexInt     `json:"id"`
	ProductID flexInt     `json:"product_id"`
	Quantity  flexInt     `json:"quantity"`
	UnitPrice money       `json:"unit_price"`
	Price     money       `json:"price"`
	Product   wireProduct `json:"product"`
}

type wireOrder struct {
	ID          flexInt         `json:"id"`
	OrderNumber flexString      `json:"order_number"`
	Status      string          `json:"status"`
	GrandTotal  money           `json:"grand_total"`
	Discount    money           `json:"discount"`
	CreatedAt   flexTime        `json:"created_at"`
	IsEditable  flexBool        `json:"is_editable"`
	Items       []wireOrderLine `json:"items"`
	User        *wireUser       `json:"user"`
}

func (w wireOrder) toModel() model.Order {
	o := model.Order{
		ID:          int64(w.ID),
		OrderNumber: string(w.OrderNumber),
		Status:      w.Status,
		GrandTotal:  w.GrandTotal.dec(),
		Discount:    w.Discount.dec(),
		CreatedAt:   time.Time(w.CreatedAt),
		IsEditable:  bool(w.IsEditable),
		Items:       make([]model.OrderLine, 0, len(w.Items)),
	}
	for _, it := range w.Items {
		o.Items = append(o.Items, model.OrderLine{
			ID:        int64(it.ID),
			ProductID: int64(it.ProductID),
			Quantity:  int(it.Quantity),
			UnitPrice: it.UnitPrice.dec(),
			Price:     it.Price.dec(),
			Product:   it.Product.toModel(),
		})
	}
	if w.User != nil {
		u := w.User.toModel()
		o.Employee = &u
	}
	return o
}

type wirePage[T any] struct {
	Data        []T               `json:"data"`
	CurrentPage flexInt           `json:"current_page"`
	LastPage    flexInt           `json:"last_page"`
	PerPage     flexInt           `json:"per_page"`
	Total       flexInt           `json:"total"`
	Links       []pagination.Link `json:"links"`
}

func toPage[W any, T any](w wirePage[W], conv func(W) T) *model.Page[T] {
	p := &model.Page[T]{
		Items:       make([]T, 0, len(w.Data)),
		CurrentPage: int(w.CurrentPage),
		LastPage:    int(w.LastPage),
		PerPage:     int(w.PerPage),
		Total:       int(w.Total),
	}
	for _, item := range w.Data {
		p.Items = append(p.Items, conv(item))
	}
	if p.CurrentPage < 1 {
		p.CurrentPage = 1
	}
	if p.LastPage < p.CurrentPage {
		p.LastPage = p.CurrentPage
	}

	if len(w.Links) > 0 {
		p.Links = pagination.FromLinks(w.Links)
	} else {
		p.Links = pagination.Build(p.CurrentPage, p.LastPage)
	}
	return p
}

// decodePage разбирает страницу пагинатора; простой массив считается единственной страницей.
func decodePage[W any, T any](raw json.RawMessage, conv func(W) T) (*model.Page[T], error) {
	trimmed := bytes.TrimSpace(raw)
	if isNull(trimmed) {
		return toPage(wirePage[W]{}, conv), nil
	}

	if trimmed[0] == '[' {
		var items []W
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: decode list: %w", ErrUnavailable, err)
		}
		return toPage(wirePage[W]{Data: items, Total: flexInt(len(items))}, conv), nil
	}

	var w wirePage[W]
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return nil, fmt.Errorf("%w: decode page: %w", ErrUnavailable, err)
	}
	return toPage(w, conv), nil
}
