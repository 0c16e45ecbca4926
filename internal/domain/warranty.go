package domain

import "time"

// WarrantyWindow is the coverage state of one warranty at a point in time.
type WarrantyWindow struct {
	Days          int
	ExpiryDate    time.Time
	IsActive      bool
	RemainingDays int
}

// ComputeWindow derives the window from a completion time and a day count.
// ok is false when days <= 0: there is no coverage to show.
func ComputeWindow(completedAt time.Time, days int, now time.Time) (WarrantyWindow, bool) {
	if days <= 0 {
		return WarrantyWindow{}, false
	}
	return WindowFromExpiry(completedAt.AddDate(0, 0, days), days, now)
}

// WindowFromExpiry evaluates a window whose expiry was fixed earlier.
// days is carried for display only; the expiry alone decides coverage.
// Remaining days are calendar days in now's location, a partial day counting as one.
func WindowFromExpiry(expiry time.Time, days int, now time.Time) (WarrantyWindow, bool) {
	if expiry.IsZero() {
		return WarrantyWindow{}, false
	}
	return WarrantyWindow{
		Days:          days,
		ExpiryDate:    expiry,
		IsActive:      now.Before(expiry),
		RemainingDays: remainingDays(expiry, now),
	}, true
}

func remainingDays(expiry, now time.Time) int {
	if !now.Before(expiry) {
		return 0
	}
	loc := now.Location()
	days := CalendarDaysBetween(now, expiry, loc)
	if now.In(loc).AddDate(0, 0, days).Before(expiry) {
		days++
	}
	return days
}
