// Package matchup приводит идентификаторы матчапов к каноническому виду.
package matchup

import "strings"

// Normalize возвращает канонический ключ матчапа: каждый символ '_'
// заменяется на '-', регистр и остальные символы не меняются.
func Normalize(raw string) string {
	return strings.ReplaceAll(raw, "_", "-")
}
