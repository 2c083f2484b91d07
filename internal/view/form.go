package view

import "strings"

// Form хранит введённые значения и ошибки формы для повторной отрисовки.
type Form struct {
	Values map[string]string
	Errors map[string][]string
	Error  string
}

// NewForm создаёт форму с начальными значениями.
func NewForm(values map[string]string) Form {
	if values == nil {
		values = map[string]string{}
	}
	return Form{Values: values}
}

// Value возвращает введённое значение поля.
func (f Form) Value(name string) string {
	return f.Values[name]
}

// Err возвращает сообщения об ошибках поля одной строкой.
func (f Form) Err(name string) string {
	return strings.Join(f.Errors[name], " ")
}

// Invalid сообщает, есть ли у формы ошибки.
func (f Form) Invalid() bool {
	return f.Error != "" || len(f.Errors) > 0
}
