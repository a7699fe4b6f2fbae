package report

import (
	"fmt"
	"strings"
)

var sourceTitles = map[string]string{
	"direct":   "Напрямую",
	"staff":    "QR сотрудников",
	"referral": "Рефералы",
	"campaign": "Кампании",
}

var sourceOrder = []string{"direct", "staff", "referral", "campaign"}

// FormatSummary текст сводки для чата
func FormatSummary(s *Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "📊 Отчет %s\n\n", s.Period.Label)
	fmt.Fprintf(&b, "Новых гостей: %d\n", s.NewGuests)
	fmt.Fprintf(&b, "Подписаны на канал: %d\n\n", s.Subscribed)

	b.WriteString("Источники:\n")
	for _, kind := range sourceOrder {
		fmt.Fprintf(&b, "• %s: %d\n", sourceTitles[kind], s.BySource[kind])
	}

	fmt.Fprintf(&b, "\nКупоны: выдано %d, погашено %d (%.0f%%)\n",
		s.CouponsIssued, s.CouponsRedeemed, s.Conversion()*100)

	var lines []string
	for _, st := range s.Staff {
		if st.Guests == 0 && st.Redeemed == 0 {
			continue
		}
		line := fmt.Sprintf("• %s: гостей %d, погашено %d", st.Name, st.Guests, st.Redeemed)
		if !st.Active {
			line += " (неактивен)"
		}
		lines = append(lines, line)
	}
	if len(lines) > 0 {
		b.WriteString("\nСотрудники:\n")
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

// SummaryRows сводка в виде таблицы "показатель / значение"
func SummaryRows(s *Summary) [][]string {
	rows := [][]string{
		{"Период", s.Period.Label},
		{"Сформирован", formatTime(s.GeneratedAt)},
		{"Новых гостей", fmt.Sprintf("%d", s.NewGuests)},
		{"Подписаны на канал", fmt.Sprintf("%d", s.Subscribed)},
	}
	for _, kind := range sourceOrder {
		rows = append(rows, []string{sourceTitles[kind], fmt.Sprintf("%d", s.BySource[kind])})
	}
	rows = append(rows,
		[]string{"Купонов выдано", fmt.Sprintf("%d", s.CouponsIssued)},
		[]string{"Купонов погашено", fmt.Sprintf("%d", s.CouponsRedeemed)},
		[]string{"Конверсия", fmt.Sprintf("%.1f%%", s.Conversion()*100)},
	)
	return rows
}

// StaffHeader заголовок таблицы сотрудников
var StaffHeader = []string{"Telegram ID", "Имя", "Должность", "Код", "Активен", "Гостей", "Погашено"}

// StaffRows показатели сотрудников в виде таблицы
func StaffRows(s *Summary) [][]string {
	rows := make([][]string, 0, len(s.Staff))
	for _, st := range s.Staff {
		rows = append(rows, []string{
			fmt.Sprintf("%d", st.TelegramID),
			st.Name,
			st.Position,
			st.Code,
			yesNo(st.Active),
			fmt.Sprintf("%d", st.Guests),
			fmt.Sprintf("%d", st.Redeemed),
		})
	}
	return rows
}
