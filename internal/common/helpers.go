// Package common содержит общие утилиты ядра наград: ошибки, форматирование
// сумм, работу со временем в опорном часовом поясе, хеширование секретов.
package common

import (
	"sync"
	"time"
)

var (
	locMu sync.RWMutex
	loc   = defaultLocation()
)

// defaultLocation: Asia/Taipei, а если tzdata нет: UTC+8 вручную.
func defaultLocation() *time.Location {
	l, err := time.LoadLocation("Asia/Taipei")
	if err != nil {
		return time.FixedZone("CST", 8*60*60)
	}
	return l
}

// SetLocation задаёт опорный часовой пояс (APP_TIMEZONE).
// Вызывается один раз при старте, до обработки запросов.
func SetLocation(name string) error {
	l, err := time.LoadLocation(name)
	if err != nil {
		return err
	}
	locMu.Lock()
	loc = l
	locMu.Unlock()
	return nil
}

// Location возвращает опорный часовой пояс.
func Location() *time.Location {
	locMu.RLock()
	defer locMu.RUnlock()
	return loc
}

// Now возвращает текущее время в опорном поясе.
func Now() time.Time {
	return time.Now().In(Location())
}

// DateOf возвращает календарную дату t (полночь) в опорном поясе.
// Смена дня для стрика определяется только сравнением дат.
func DateOf(t time.Time) time.Time {
	t = t.In(Location())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDate: обе отметки приходятся на одну календарную дату.
func SameDate(a, b time.Time) bool {
	return DateOf(a).Equal(DateOf(b))
}

// DaysBetween: сколько календарных дней от a до b (0: тот же день).
func DaysBetween(a, b time.Time) int {
	da, db := DateOf(a), DateOf(b)
	// шагаем по датам, а не делим разницу на 24 часа
	n := 0
	for da.Before(db) {
		da = da.AddDate(0, 0, 1)
		n++
	}
	for db.Before(da) {
		db = db.AddDate(0, 0, 1)
		n--
	}
	return n
}

// AddBusinessDays прибавляет n рабочих дней (пн–пт) к дате t.
// Праздники не учитываются.
func AddBusinessDays(t time.Time, n int) time.Time {
	d := t.In(Location())
	for n > 0 {
		d = d.AddDate(0, 0, 1)
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n--
		}
	}
	return d
}

// FormatDate форматирует дату в виде "2006-01-02" в опорном поясе.
func FormatDate(t time.Time) string {
	return t.In(Location()).Format("2006-01-02")
}

// FormatDateTime форматирует время в виде "02.01.2006 15:04" в опорном поясе.
// Используется в истории наград и сообщениях ревьюерам.
func FormatDateTime(t time.Time) string {
	return t.In(Location()).Format("02.01.2006 15:04")
}
