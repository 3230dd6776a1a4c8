package iostreams

import (
	"time"

	"github.com/docker/go-units"
)

// FormatDuration renders an elapsed time for humans: "850ms" below a
// second, otherwise go-units phrasing such as "3 seconds" or "2 minutes".
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return units.HumanDuration(d)
}

// FormatSize renders a byte count with decimal units, e.g. "8.4MB".
func FormatSize(n int64) string {
	return units.HumanSize(float64(n))
}
