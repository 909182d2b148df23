package utils

import (
	"time"
)

// time.go - границы календарных периодов в UTC
//
// Используются для дневного окна риск-лимитов (дневной убыток
// сбрасывается в полночь UTC) и очистки старых записей аудита.

// GetDayStart возвращает начало текущего дня (00:00:00) в UTC
func GetDayStart() time.Time {
	return GetDayStartFrom(time.Now().UTC())
}

// GetDayStartFrom возвращает начало дня для указанного времени в UTC
func GetDayStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// GetDayEnd возвращает конец текущего дня (23:59:59.999999999) в UTC
func GetDayEnd() time.Time {
	return GetDayEndFrom(time.Now().UTC())
}

// GetDayEndFrom возвращает конец дня для указанного времени в UTC
func GetDayEndFrom(t time.Time) time.Time {
	return GetDayStartFrom(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// SameDay проверяет, относятся ли два момента к одному дню UTC
func SameDay(a, b time.Time) bool {
	return GetDayStartFrom(a).Equal(GetDayStartFrom(b))
}
