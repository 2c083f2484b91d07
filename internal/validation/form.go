// Package validation содержит базовые проверки форм и загружаемых файлов.
// Полная валидация остаётся за бэкендом.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidQuantity возвращается для нечислового или неположительного количества.
var ErrInvalidQuantity = errors.New("quantity must be a whole number of at least 1")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("schema"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Fields проверяет структуру формы по тегам validate и возвращает сообщения по полям.
// Ключами служат имена полей из тега schema. nil означает, что форма корректна.
func Fields(form any) map[string][]string {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string][]string{"form": {err.Error()}}
	}

	res := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		res[fe.Field()] = append(res[fe.Field()], message(fe))
	}
	return res
}

func message(fe validator.FieldError) string {
	field := strings.ReplaceAll(fe.Field(), "_", " ")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", field)
	case "email":
		return fmt.Sprintf("The %s must be a valid email address.", field)
	case "min":
		return fmt.Sprintf("The %s must be at least %s characters.", field, fe.Param())
	case "numeric":
		return fmt.Sprintf("The %s must be a number.", field)
	case "eqfield":
		return fmt.Sprintf("The %s does not match.", field)
	case "oneof":
		return fmt.Sprintf("The %s must be one of: %s.", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("The %s is invalid.", field)
	}
}

// Quantity разбирает количество товара: целое число не меньше 1.
func Quantity(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 0, ErrInvalidQuantity
	}
	return n, nil
}

// ID разбирает положительный идентификатор.
func ID(raw string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
