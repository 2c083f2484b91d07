// Package model содержит доменные сущности портала рационной программы.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role описывает роль пользователя портала.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// AdminRoles перечисляет роли, которым доступна административная часть портала.
var AdminRoles = []Role{RoleAdmin, RoleSuperAdmin}

// IsAdmin сообщает, относится ли роль к администраторам.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// User описывает профиль сотрудника, возвращаемый бэкендом.
type User struct {
	ID        int64     `json:"id"`
	EmpID     string    `json:"emp_id,omitempty"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	Probation string    `json:"probation,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Credentials содержит токен доступа и профиль, полученные при входе или регистрации.
type Credentials struct {
	Token string
	User  User
}

// ProductStatus описывает статус товара в каталоге.
type ProductStatus int

const (
	ProductActive   ProductStatus = 1
	ProductInactive ProductStatus = 9
)

// Toggle возвращает противоположный статус.
func (s ProductStatus) Toggle() ProductStatus {
	if s == ProductActive {
		return ProductInactive
	}
	return ProductActive
}

// Product описывает товар каталога.
type Product struct {
	ID      int64           `json:"id"`
	Name    string          `json:"name"`
	Detail  string          `json:"detail"`
	Price   decimal.Decimal `json:"price"`
	Measure string          `json:"measure"`
	Type    string          `json:"type"`
	Brand   string          `json:"brand,omitempty"`
	Image   string          `json:"image,omitempty"`
	Status  ProductStatus   `json:"status"`
}

// ProductSnapshot содержит данные товара, отображаемые в строке корзины.
type ProductSnapshot struct {
	Name    string `json:"name"`
	Image   string `json:"image,omitempty"`
	Measure string `json:"measure,omitempty"`
}

// Snapshot возвращает отображаемые данные товара.
func (p Product) Snapshot() ProductSnapshot {
	return ProductSnapshot{Name: p.Name, Image: p.Image, Measure: p.Measure}
}

// LineState описывает состояние синхронизации строки корзины.
type LineState string

const (
	LineIdle       LineState = "idle"
	LineSyncing    LineState = "syncing"
	LineReconciled LineState = "reconciled"
	LineFailed     LineState = "failed"
)

// CartLine описывает строку корзины.
type CartLine struct {
	LineID    int64
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
	Product   ProductSnapshot
	State     LineState
}

// CartSummary содержит рассчитанные бэкендом итоги корзины.
type CartSummary struct {
	PayableAmount        decimal.Decimal
	EmployeeContribution decimal.Decimal
	CompanyDiscount      decimal.Decimal
}

// Cart содержит строки корзины и итоги, полученные от бэкенда.
type Cart struct {
	Lines   []CartLine
	Summary CartSummary
}

// OrderLine описывает позицию заказа.
type OrderLine struct {
	ID        int64
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
	Price     decimal.Decimal
	Product   Product
}

// Order описывает размещённый заказ.
type Order struct {
	ID          int64
	OrderNumber string
	Status      string
	GrandTotal  decimal.Decimal
	Discount    decimal.Decimal
	CreatedAt   time.Time
	Items       []OrderLine
	IsEditable  bool
	Employee    *User
}

// PageLink описывает ссылку пагинатора.
type PageLink struct {
	Page   int
	Label  string
	Active bool
}

// Page содержит одну страницу записей.
type Page[T any] struct {
	Items       []T
	CurrentPage int
	LastPage    int
	PerPage     int
	Total       int
	Links       []PageLink
}

// RecentOrder описывает строку списка последних заказов на панели администратора.
type RecentOrder struct {
	OrderNo    string
	UserName   string
	GrandTotal decimal.Decimal
	Discount   decimal.Decimal
}

// TopUser описывает сотрудника с наибольшей суммой заказов.
type TopUser struct {
	EmployeeName string
	GrandTotal   decimal.Decimal
}

// MonthTotal содержит сумму заказов за месяц.
type MonthTotal struct {
	Month      string
	GrandTotal decimal.Decimal
}

// DashboardSummary содержит сводку для панели администратора.
type DashboardSummary struct {
	TotalUsers              int
	EmployeeRationThisMonth decimal.Decimal
	EmployeeCashThisMonth   decimal.Decimal
	RecentOrders            []RecentOrder
	TopUsers                []TopUser
	MonthWiseRation         []MonthTotal
}

// Policy описывает правила рационной программы.
type Policy struct {
	SharedLimit   decimal.Decimal
	SelfFundLimit decimal.Decimal
	HardCap       decimal.Decimal
	StipendAmount decimal.Decimal
}

// DefaultPolicy соответствует действующим правилам программы.
var DefaultPolicy = Policy{
	SharedLimit:   decimal.NewFromInt(20000),
	SelfFundLimit: decimal.NewFromInt(5000),
	HardCap:       decimal.NewFromInt(25000),
	StipendAmount: decimal.NewFromInt(7000),
}

// EmployeeShare возвращает долю сотрудника в пределах общего лимита.
func (p Policy) EmployeeShare() decimal.Decimal {
	return p.SharedLimit.Div(decimal.NewFromInt(2))
}
