package view

import (
	"github.com/mmeshcher/ration-portal/internal/cart"
	"github.com/mmeshcher/ration-portal/internal/model"
)

// LoadError описывает неудачную загрузку данных страницы и ссылку для повтора.
type LoadError struct {
	Error    string
	RetryURL string
}

// AuthData: данные страниц входа и регистрации.
type AuthData struct {
	Form Form
}

// ProfileData: данные панели сотрудника.
type ProfileData struct {
	LoadError
	Profile *model.User
}

// CatalogData: данные страницы заказа товаров с корзиной.
type CatalogData struct {
	LoadError
	Products *model.Page[model.Product]
	Cart     cart.Snapshot
	Page     int
}

// ConfirmData: данные страницы подтверждения очистки или оформления корзины.
type ConfirmData struct {
	Heading  string
	Question string
	Action   string
	Confirm  string
	Lines    []model.CartLine
	Summary  model.CartSummary
}

// OrdersData: данные списка заказов.
type OrdersData struct {
	LoadError
	Orders       *model.Page[model.Order]
	Base         string
	ShowEmployee bool
}

// OrderData: данные карточки заказа.
type OrderData struct {
	LoadError
	Order   *model.Order
	CanEdit bool
	Back    string
}

// PasswordData: данные формы смены пароля.
type PasswordData struct {
	Form   Form
	Action string
}

// DashboardData: данные панели администратора.
type DashboardData struct {
	LoadError
	Summary *model.DashboardSummary
}

// ProductsData: данные списка товаров администратора.
type ProductsData struct {
	LoadError
	Products *model.Page[model.Product]
	Page     int
}

// ProductFormData: данные формы товара.
type ProductFormData struct {
	Form    Form
	Editing bool
	Action  string
	Image   string
}

// EmployeesData: данные списка сотрудников с редактируемой строкой EditID.
type EmployeesData struct {
	LoadError
	Employees *model.Page[model.User]
	Search    string
	Page      int
	EditID    int64
	Form      Form
}

// ImportData: данные страницы импорта файла.
type ImportData struct {
	Form    Form
	Heading string
	Action  string
	Field   string
	Accept  string
	Result  string
}

// ErrorData: данные страницы ошибки.
type ErrorData struct {
	LoadError
	Heading string
}
