package aggregate

import "time"

// DateRange is a named look-back window. Days == 0 means unbounded.
type DateRange struct {
	Key   string
	Label string
	Days  int
}

var (
	Last7Days   = DateRange{Key: "7D", Label: "Last 7 Days", Days: 7}
	LastMonth   = DateRange{Key: "1M", Label: "Last Month", Days: 30}
	Last3Months = DateRange{Key: "3M", Label: "Last 3 Months", Days: 90}
	Last6Months = DateRange{Key: "6M", Label: "Last 6 Months", Days: 180}
	AllTime     = DateRange{Key: "ALL", Label: "All Time"}

	// DefaultRange is used when no range is requested.
	DefaultRange = LastMonth
)

// Ranges lists the named ranges in display order.
func Ranges() []DateRange {
	return []DateRange{Last7Days, LastMonth, Last3Months, Last6Months, AllTime}
}

// RangeByKey looks a range up by its key ("7D", "1M", ...).
func RangeByKey(key string) (DateRange, bool) {
	for _, r := range Ranges() {
		if r.Key == key {
			return r, true
		}
	}
	return DateRange{}, false
}

// Bounds returns the FilterByRange arguments for r relative to now.
// The start is nil for AllTime.
func (r DateRange) Bounds(now time.Time) (*time.Time, time.Time) {
	if r.Days == 0 {
		return nil, now
	}
	start := now.AddDate(0, 0, -r.Days)
	return &start, now
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// MonthBounds returns the first and last day of the calendar month
// containing now, in now's location.
func MonthBounds(now time.Time) (time.Time, time.Time) {
	y, m, _ := now.Date()
	start := time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
	return start, start.AddDate(0, 1, -1)
}
