package util

import "fmt"

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB", "PB"}

// FormatSize renders a byte count with binary units, trimming trailing zeros
// from a three digit fraction.
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	exp, div := 0, int64(1)
	for size/div >= unit && exp < len(sizeUnits)-1 {
		div *= unit
		exp++
	}

	value := size / div
	if size%div == 0 {
		return fmt.Sprintf("%d %s", value, sizeUnits[exp])
	}

	// integer arithmetic keeps the fraction exact
	decimal := (size % div) * 1000 / div
	switch {
	case decimal%10 != 0:
		return fmt.Sprintf("%d.%03d %s", value, decimal, sizeUnits[exp])
	case decimal%100 != 0:
		return fmt.Sprintf("%d.%02d %s", value, decimal/10, sizeUnits[exp])
	default:
		return fmt.Sprintf("%d.%d %s", value, decimal/100, sizeUnits[exp])
	}
}

// Percent returns done/total in the range [0, 1]. An empty total counts as done.
func Percent(done, total int64) float64 {
	if total <= 0 {
		return 1
	}
	p := float64(done) / float64(total)
	if p > 1 {
		return 1
	}
	if p < 0 {
		return 0
	}
	return p
}
