package requisition

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatAmount renders a money value with thousands separators.
func FormatAmount(v float64) string {
	return message.NewPrinter(language.English).Sprintf("%.2f", round2(v))
}

// Label turns an enum value such as FINAL_APPROVAL into "Final Approval".
func Label[T ~string](v T) string {
	words := strings.ReplaceAll(strings.ToLower(string(v)), "_", " ")
	return cases.Title(language.English).String(words)
}
