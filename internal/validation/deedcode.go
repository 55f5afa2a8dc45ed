// Package validation содержит функции валидации входных данных.
package validation

import "strings"

// DeedCodePrefix — обязательный префикс кода доброго дела на QR-плакатах.
const DeedCodePrefix = "GOOD_DEED_"

// IsValidDeedCode проверяет формат отсканированного кода.
// Сравнение чувствительно к регистру: код печатается сервисом в точном виде.
func IsValidDeedCode(code string) bool {
	if code == "" {
		return false
	}
	return strings.HasPrefix(code, DeedCodePrefix)
}
