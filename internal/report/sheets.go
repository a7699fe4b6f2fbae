package report

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"telegram_loyalty_bot/pkg/errors"
	"telegram_loyalty_bot/pkg/logger"
	"telegram_loyalty_bot/pkg/metrics"
)

// ValuesAPI операции Google Sheets, нужные выгрузке
type ValuesAPI interface {
	EnsureSheets(ctx context.Context, spreadsheetID string, titles []string) error
	Get(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error)
	BatchUpdate(ctx context.Context, spreadsheetID string, data []*sheets.ValueRange) error
	Append(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) error
	Clear(ctx context.Context, spreadsheetID, rng string) error
}

// sheetsValues реализация ValuesAPI поверх sheets.Service
type sheetsValues struct {
	srv *sheets.Service
}

// NewSheetsAPI создает клиента Google Sheets по файлу сервисного аккаунта
func NewSheetsAPI(ctx context.Context, credentialsFile string) (ValuesAPI, error) {
	srv, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &sheetsValues{srv: srv}, nil
}

func (s *sheetsValues) EnsureSheets(ctx context.Context, spreadsheetID string, titles []string) error {
	spreadsheet, err := s.srv.Spreadsheets.Get(spreadsheetID).Context(ctx).Do()
	if err != nil {
		return err
	}

	existing := make(map[string]bool, len(spreadsheet.Sheets))
	for _, sh := range spreadsheet.Sheets {
		if sh.Properties != nil {
			existing[sh.Properties.Title] = true
		}
	}

	var requests []*sheets.Request
	for _, title := range titles {
		if !existing[title] {
			requests = append(requests, &sheets.Request{
				AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: title}},
			})
		}
	}
	if len(requests) == 0 {
		return nil
	}

	_, err = s.srv.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	return err
}

func (s *sheetsValues) Get(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error) {
	resp, err := s.srv.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (s *sheetsValues) BatchUpdate(ctx context.Context, spreadsheetID string, data []*sheets.ValueRange) error {
	_, err := s.srv.Spreadsheets.Values.BatchUpdate(spreadsheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}).Context(ctx).Do()
	return err
}

func (s *sheetsValues) Append(ctx context.Context, spreadsheetID, rng string, rows [][]interface{}) error {
	_, err := s.srv.Spreadsheets.Values.Append(spreadsheetID, rng, &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

func (s *sheetsValues) Clear(ctx context.Context, spreadsheetID, rng string) error {
	_, err := s.srv.Spreadsheets.Values.Clear(spreadsheetID, rng, &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

// SyncResult итог синхронизации таблицы гостей
type SyncResult struct {
	Updated  int
	Appended int
}

// SheetsExporter синхронизирует отчет с Google Sheets.
// Выгрузки выполняются по одной, чтобы параллельные запуски не дублировали гостей.
type SheetsExporter struct {
	api           ValuesAPI
	spreadsheetID string
	logger        *logger.Logger
	mu            sync.Mutex
}

// NewSheetsExporter создает выгрузку; api == nil означает, что выгрузка не настроена
func NewSheetsExporter(api ValuesAPI, spreadsheetID string, log *logger.Logger) *SheetsExporter {
	if log == nil {
		log = logger.NewNop()
	}
	return &SheetsExporter{api: api, spreadsheetID: spreadsheetID, logger: log.Named("sheets")}
}

// Enabled сообщает, настроена ли выгрузка
func (e *SheetsExporter) Enabled() bool {
	return e != nil && e.api != nil && e.spreadsheetID != ""
}

// URL ссылка на таблицу
func (e *SheetsExporter) URL() string {
	return "https://docs.google.com/spreadsheets/d/" + e.spreadsheetID
}

func a1(sheet, rng string) string {
	return fmt.Sprintf("'%s'!%s", sheet, rng)
}

func toRow(values []string) []interface{} {
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	return row
}

func toRows(values [][]string) [][]interface{} {
	rows := make([][]interface{}, len(values))
	for i, v := range values {
		rows[i] = toRow(v)
	}
	return rows
}

// Export обновляет лист гостей по Telegram ID и перезаписывает сводку
// и лист сотрудников
func (e *SheetsExporter) Export(ctx context.Context, summary *Summary, guests []GuestRow) (SyncResult, error) {
	if !e.Enabled() {
		return SyncResult{}, errors.ErrExportNotConfigured
	}

	e.mu.Lock()
	result, err := e.export(ctx, summary, guests)
	e.mu.Unlock()
	if err != nil {
		metrics.RecordExport("sheets", "error")
		return result, err
	}

	metrics.RecordExport("sheets", "success")
	e.logger.Info("Sheets export finished",
		logger.Int("updated", result.Updated),
		logger.Int("appended", result.Appended),
	)
	return result, nil
}

func (e *SheetsExporter) export(ctx context.Context, summary *Summary, guests []GuestRow) (SyncResult, error) {
	var result SyncResult

	if err := e.api.EnsureSheets(ctx, e.spreadsheetID, []string{SummarySheet, GuestsSheet, StaffSheet}); err != nil {
		return result, fmt.Errorf("failed to prepare sheets: %w", err)
	}

	existing, err := e.api.Get(ctx, e.spreadsheetID, a1(GuestsSheet, "A1:A"))
	if err != nil {
		return result, fmt.Errorf("failed to read guests sheet: %w", err)
	}

	var updates []*sheets.ValueRange
	rowByID := make(map[int64]int)
	nextRow := 2

	if !hasHeader(existing) {
		if err := e.prependHeader(ctx); err != nil {
			return result, err
		}
		existing = append([][]interface{}{toRow(GuestHeader)}, existing...)
	}
	for i, row := range existing {
		if i == 0 {
			continue
		}
		if len(row) > 0 {
			if id, err := strconv.ParseInt(strings.TrimSpace(fmt.Sprint(row[0])), 10, 64); err == nil {
				rowByID[id] = i + 1
			}
		}
		nextRow = i + 2
	}

	var appends [][]interface{}
	for _, g := range guests {
		values := toRow(g.Strings())
		if n, ok := rowByID[g.TelegramID]; ok {
			updates = append(updates, &sheets.ValueRange{
				Range:  a1(GuestsSheet, fmt.Sprintf("A%d", n)),
				Values: [][]interface{}{values},
			})
			result.Updated++
			continue
		}
		appends = append(appends, values)
		rowByID[g.TelegramID] = nextRow
		nextRow++
	}

	if len(updates) > 0 {
		if err := e.api.BatchUpdate(ctx, e.spreadsheetID, updates); err != nil {
			return result, fmt.Errorf("failed to update guests: %w", err)
		}
	}
	if len(appends) > 0 {
		if err := e.api.Append(ctx, e.spreadsheetID, a1(GuestsSheet, "A1"), appends); err != nil {
			return result, fmt.Errorf("failed to append guests: %w", err)
		}
		result.Appended = len(appends)
	}

	if err := e.overwrite(ctx, SummarySheet, SummaryRows(summary)); err != nil {
		return result, err
	}
	staffRows := append([][]string{StaffHeader}, StaffRows(summary)...)
	if err := e.overwrite(ctx, StaffSheet, staffRows); err != nil {
		return result, err
	}

	return result, nil
}

// prependHeader ставит заголовок в первую строку листа гостей,
// сдвигая уже записанные строки вниз
func (e *SheetsExporter) prependHeader(ctx context.Context) error {
	rows, err := e.api.Get(ctx, e.spreadsheetID, a1(GuestsSheet, "A1:Z"))
	if err != nil {
		return fmt.Errorf("failed to read guests sheet: %w", err)
	}
	if len(rows) > 0 {
		if err := e.api.Clear(ctx, e.spreadsheetID, a1(GuestsSheet, "A:Z")); err != nil {
			return fmt.Errorf("failed to clear %s: %w", GuestsSheet, err)
		}
	}

	err = e.api.BatchUpdate(ctx, e.spreadsheetID, []*sheets.ValueRange{{
		Range:  a1(GuestsSheet, "A1"),
		Values: append([][]interface{}{toRow(GuestHeader)}, rows...),
	}})
	if err != nil {
		return fmt.Errorf("failed to write guests header: %w", err)
	}
	return nil
}

func (e *SheetsExporter) overwrite(ctx context.Context, sheet string, rows [][]string) error {
	if err := e.api.Clear(ctx, e.spreadsheetID, a1(sheet, "A:Z")); err != nil {
		return fmt.Errorf("failed to clear %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil
	}
	err := e.api.BatchUpdate(ctx, e.spreadsheetID, []*sheets.ValueRange{{
		Range:  a1(sheet, "A1"),
		Values: toRows(rows),
	}})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", sheet, err)
	}
	return nil
}

func hasHeader(values [][]interface{}) bool {
	return len(values) > 0 && len(values[0]) > 0 && fmt.Sprint(values[0][0]) == GuestHeader[0]
}
