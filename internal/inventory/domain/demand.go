package domain

import (
	"math"
	"time"
)

// DemandRecord is the normalized demand of one product on one calendar day.
type DemandRecord struct {
	ProductID string    `db:"product_id" json:"product_id"`
	Date      time.Time `db:"demand_date" json:"date"`
	Quantity  int64     `db:"quantity" json:"quantity"`
	Period    string    `db:"period" json:"period"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// PeriodOf returns the YYYY-MM bucket of t.
func PeriodOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// DemandWindow returns the first and last day of a window of n days ending on
// the day of now.
func DemandWindow(now time.Time, days int) (time.Time, time.Time) {
	if days < 1 {
		days = 1
	}
	end := Day(now)
	return end.AddDate(0, 0, -(days - 1)), end
}

// DemandStats summarizes daily demand over a window. Days without a record
// count as zero demand.
type DemandStats struct {
	Days           int     `json:"days"`
	Total          int64   `json:"total"`
	DailyMean      float64 `json:"daily_mean"`
	DailyStdDev    float64 `json:"daily_std_dev"`
	AnnualEstimate float64 `json:"annual_estimate"`
	Latest         int64   `json:"latest"`
}

// ComputeDemandStats zero-fills the window [from, from+days) and computes the
// population mean and standard deviation of daily demand.
func ComputeDemandStats(records []*DemandRecord, from time.Time, days int) DemandStats {
	stats := DemandStats{Days: days}
	if days < 1 {
		return stats
	}

	start := Day(from)
	series := make([]float64, days)
	for _, r := range records {
		idx := int(Day(r.Date).Sub(start).Hours() / 24)
		if idx < 0 || idx >= days {
			continue
		}
		series[idx] += float64(r.Quantity)
		stats.Total += r.Quantity
	}

	stats.DailyMean = float64(stats.Total) / float64(days)
	var sq float64
	for _, q := range series {
		sq += (q - stats.DailyMean) * (q - stats.DailyMean)
	}
	stats.DailyStdDev = math.Sqrt(sq / float64(days))
	stats.AnnualEstimate = stats.DailyMean * DaysPerYear
	stats.Latest = int64(series[days-1])

	return stats
}
