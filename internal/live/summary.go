package live

import (
	"fmt"
	"math"
	"time"
)

// Sample is one analytics snapshot of the live viewer count.
type Sample struct {
	At      time.Time
	Viewers int
}

// AverageViewers is the arithmetic mean of the sampled counts rounded to the nearest
// integer. A session shorter than one sampling interval has no samples and averages 0.
func AverageViewers(samples []Sample) int {
	if len(samples) == 0 {
		return 0
	}
	var sum int
	for _, s := range samples {
		sum += s.Viewers
	}
	return int(math.Round(float64(sum) / float64(len(samples))))
}

// FormatDuration renders d as HH:MM:SS, truncating sub-second precision.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

// FormatCents renders an amount in cents with two decimals ("12.50").
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
