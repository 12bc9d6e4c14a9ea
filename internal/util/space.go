package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

const ellipsis = "..."

// PadRight left-aligns str in a column of the given display width, truncating
// with an ellipsis when it does not fit.
func PadRight(str string, width int) string {
	str, w := fit(str, width)
	return str + strings.Repeat(" ", width-w)
}

// PadLeft right-aligns str in a column of the given display width.
func PadLeft(str string, width int) string {
	str, w := fit(str, width)
	return strings.Repeat(" ", width-w) + str
}

func fit(str string, width int) (string, int) {
	if width <= 0 {
		return "", 0
	}
	if w := runewidth.StringWidth(str); w <= width {
		return str, w
	}
	str = runewidth.Truncate(str, width, ellipsis)
	return str, runewidth.StringWidth(str)
}
