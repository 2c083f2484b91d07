package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/mmeshcher/ration-portal/internal/model"
)

// MaxImageSize: максимальный размер изображения товара.
const MaxImageSize = 2 << 20

var (
	// ErrFileRequired возвращается, если файл не выбран.
	ErrFileRequired = errors.New("please select a file")
	// ErrFileTooLarge возвращается для файла больше допустимого размера.
	ErrFileTooLarge = errors.New("file is too large")
	// ErrUnsupportedFile возвращается для файла недопустимого типа.
	ErrUnsupportedFile = errors.New("unsupported file type")
)

// FileRule описывает допустимые расширения файла и MIME-типы его содержимого.
type FileRule struct {
	Extensions []string
	MIMETypes  []string
	MaxSize    int
}

var (
	// EmployeeImport: файлы импорта сотрудников.
	EmployeeImport = FileRule{
		Extensions: []string{".csv", ".txt", ".xlsx"},
		MIMETypes: []string{
			"text/plain",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			"application/zip",
		},
	}
	// ProductImport: файлы импорта товаров.
	ProductImport = FileRule{
		Extensions: []string{".csv", ".xlsx", ".xls"},
		MIMETypes: []string{
			"text/plain",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			"application/zip",
			"application/vnd.ms-excel",
			"application/x-ole-storage",
		},
	}
	// ProductImage: изображение товара.
	ProductImage = FileRule{
		MIMETypes: []string{"image/"},
		MaxSize:   MaxImageSize,
	}
)

// Check проверяет файл по расширению и по фактическому содержимому.
// Детектированный тип сверяется вместе со всеми родительскими типами,
// например text/csv принимается как text/plain.
func (r FileRule) Check(u model.Upload) (string, error) {
	if u.Filename == "" || len(u.Data) == 0 {
		return "", ErrFileRequired
	}
	if r.MaxSize > 0 && len(u.Data) > r.MaxSize {
		return "", fmt.Errorf("%w: %s exceeds %d MB", ErrFileTooLarge, u.Filename, r.MaxSize>>20)
	}

	if len(r.Extensions) > 0 {
		ext := strings.ToLower(filepath.Ext(u.Filename))
		if !contains(r.Extensions, ext) {
			return "", fmt.Errorf("%w: only %s files are allowed", ErrUnsupportedFile, strings.Join(r.Extensions, ", "))
		}
	}

	detected := mimetype.Detect(u.Data)
	for m := detected; m != nil; m = m.Parent() {
		if r.allows(m.String()) {
			return detected.String(), nil
		}
	}
	return "", fmt.Errorf("%w: %s looks like %s", ErrUnsupportedFile, u.Filename, detected.String())
}

func (r FileRule) allows(mime string) bool {
	mime, _, _ = strings.Cut(mime, ";")
	for _, allowed := range r.MIMETypes {
		if strings.HasSuffix(allowed, "/") {
			if strings.HasPrefix(mime, allowed) {
				return true
			}
			continue
		}
		if mime == allowed {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
