package domain

import "time"

const (
	// DailyBetLimit — сколько ставок в сутки может отправить бесплатный пользователь.
	DailyBetLimit = 3
	// QuotaUTCOffset — смещение, по которому считаются границы суток (UTC−3).
	QuotaUTCOffset = -3 * time.Hour
)

// QuotaZone — фиксированная зона для границ суток лимита.
var QuotaZone = time.FixedZone("UTC-3", int(QuotaUTCOffset/time.Second))

// DayBounds возвращает начало текущих суток и начало следующих в зоне лимита.
func DayBounds(now time.Time) (time.Time, time.Time) {
	local := now.In(QuotaZone)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, QuotaZone)
	return start, start.AddDate(0, 0, 1)
}
