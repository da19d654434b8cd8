package utils

import "strings"

// NormalizeCellIR normalizes an Iranian cell number to +98 format.
// "09121234567" and "9121234567" both become "+989121234567".
func NormalizeCellIR(cell string) string {
	cell = strings.TrimSpace(cell)
	cell = strings.ReplaceAll(cell, " ", "")
	cell = strings.ReplaceAll(cell, "-", "")

	switch {
	case cell == "":
		return ""
	case strings.HasPrefix(cell, "+98"):
		return cell
	case strings.HasPrefix(cell, "0098"):
		return "+98" + cell[4:]
	case strings.HasPrefix(cell, "98"):
		return "+" + cell
	case strings.HasPrefix(cell, "0"):
		return "+98" + cell[1:]
	default:
		return "+98" + cell
	}
}
