package model

// Registration содержит данные формы регистрации.
type Registration struct {
	Name                 string `schema:"name" json:"name" validate:"required"`
	Email                string `schema:"email" json:"email" validate:"required,email"`
	Password             string `schema:"password" json:"password" validate:"required,min=8"`
	PasswordConfirmation string `schema:"password_confirmation" json:"password_confirmation" validate:"required,eqfield=Password"`
}

// LoginForm содержит данные формы входа.
type LoginForm struct {
	Email    string `schema:"email" json:"email" validate:"required,email"`
	Password string `schema:"password" json:"password" validate:"required"`
}

// PasswordChange содержит данные формы смены пароля.
type PasswordChange struct {
	CurrentPassword         string `schema:"current_password" json:"current_password" validate:"required"`
	NewPassword             string `schema:"new_password" json:"new_password" validate:"required,min=8"`
	NewPasswordConfirmation string `schema:"new_password_confirmation" json:"new_password_confirmation" validate:"required,eqfield=NewPassword"`
}

// ProductForm содержит поля создания и редактирования товара.
type ProductForm struct {
	ID      int64  `schema:"id"`
	Name    string `schema:"name" validate:"required"`
	Detail  string `schema:"detail" validate:"required"`
	Price   string `schema:"price" validate:"required,numeric"`
	Measure string `schema:"measure" validate:"required"`
	Type    string `schema:"type" validate:"required"`
	Brand   string `schema:"brand"`
}

// EmployeeUpdate содержит поля редактирования сотрудника.
type EmployeeUpdate struct {
	Name      string `schema:"name" json:"name" validate:"required"`
	Email     string `schema:"email" json:"email" validate:"required,email"`
	Probation string `schema:"probation" json:"probation" validate:"required,oneof=yes no"`
}

// Upload описывает загружаемый файл.
type Upload struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}
