package notify

import (
	"time"

	"whatsapp-bridge/internal/models"
)

func tenantLocation(s *models.TenantSettings) *time.Location {
	if s.Timezone != "" {
		if loc, err := time.LoadLocation(s.Timezone); err == nil {
			return loc
		}
	}
	return time.UTC
}

// InQuietHours reports whether now falls inside the tenant's quiet window.
// Overnight windows (start > end, e.g. 22:00-08:00) wrap midnight. An
// unconfigured or zero-length window never matches.
func InQuietHours(s *models.TenantSettings, now time.Time) bool {
	start, ok := models.ParseClock(s.QuietHoursStart)
	if !ok {
		return false
	}
	end, ok := models.ParseClock(s.QuietHoursEnd)
	if !ok || start == end {
		return false
	}

	local := now.In(tenantLocation(s))
	minute := local.Hour()*60 + local.Minute()
	if start < end {
		return minute >= start && minute < end
	}
	return minute >= start || minute < end
}

// QuietEnd returns the exact end of the quiet window containing or following
// now: the next occurrence of the configured end-of-window clock time in the
// tenant's timezone.
func QuietEnd(s *models.TenantSettings, now time.Time) time.Time {
	end, ok := models.ParseClock(s.QuietHoursEnd)
	if !ok {
		return now
	}

	loc := tenantLocation(s)
	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), end/60, end%60, 0, 0, loc)
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}
