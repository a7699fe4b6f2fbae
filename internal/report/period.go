package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"telegram_loyalty_bot/pkg/errors"
)

const dateLayout = "2006-01-02"

// Period полуинтервал [From, To); нулевая граница означает отсутствие ограничения
type Period struct {
	From  time.Time
	To    time.Time
	Label string
}

// Contains проверяет попадание момента в период
func (p Period) Contains(t time.Time) bool {
	if !p.From.IsZero() && t.Before(p.From) {
		return false
	}
	if !p.To.IsZero() && !t.Before(p.To) {
		return false
	}
	return true
}

// ContainsPtr то же для необязательного времени; nil не попадает ни в один период
func (p Period) ContainsPtr(t *time.Time) bool {
	return t != nil && p.Contains(*t)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ParsePeriod разбирает период отчета: "7d", "today", "month", "all"
// или "YYYY-MM-DD:YYYY-MM-DD" (обе даты включительно). Пустая строка
// означает последние 7 дней.
func ParsePeriod(s string, now time.Time) (Period, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	switch s {
	case "", "week":
		s = "7d"
	case "all":
		return Period{Label: "за все время"}, nil
	case "today":
		from := startOfDay(now)
		return Period{From: from, To: from.AddDate(0, 0, 1), Label: "сегодня"}, nil
	case "month":
		y, m, _ := now.Date()
		from := time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
		return Period{From: from, To: from.AddDate(0, 1, 0), Label: from.Format("01.2006")}, nil
	}

	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 1 || n > 366 {
			return Period{}, errors.ErrInvalidPeriod.WithContext(s)
		}
		to := startOfDay(now).AddDate(0, 0, 1)
		return Period{From: to.AddDate(0, 0, -n), To: to, Label: fmt.Sprintf("за %d дн.", n)}, nil
	}

	if fromStr, toStr, ok := strings.Cut(s, ":"); ok {
		from, err := time.ParseInLocation(dateLayout, fromStr, now.Location())
		if err != nil {
			return Period{}, errors.ErrInvalidPeriod.WithContext(s)
		}
		to, err := time.ParseInLocation(dateLayout, toStr, now.Location())
		if err != nil || to.Before(from) {
			return Period{}, errors.ErrInvalidPeriod.WithContext(s)
		}
		return Period{
			From:  from,
			To:    to.AddDate(0, 0, 1),
			Label: fmt.Sprintf("%s - %s", from.Format("02.01.2006"), to.Format("02.01.2006")),
		}, nil
	}

	return Period{}, errors.ErrInvalidPeriod.WithContext(s)
}
