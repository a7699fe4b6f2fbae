package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики бота программы лояльности
var (
	// Общие метрики
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_bot_updates_total",
			Help: "Общее количество обработанных обновлений Telegram",
		},
		[]string{"handler", "status"},
	)

	UpdateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loyalty_bot_update_duration_seconds",
			Help:    "Время обработки обновлений в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler"},
	)

	// Метрики гостей
	GuestRegistrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_bot_guest_registrations_total",
			Help: "Количество новых гостей по типу источника",
		},
		[]string{"source_kind"},
	)

	SubscriptionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_bot_subscription_checks_total",
			Help: "Проверки подписки на канал",
		},
		[]string{"result"},
	)

	// Метрики купонов
	CouponsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loyalty_bot_coupons_issued_total",
			Help: "Количество выданных купонов",
		},
	)

	CouponsRedeemed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loyalty_bot_coupons_redeemed_total",
			Help: "Количество погашенных купонов",
		},
	)

	RedeemRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_bot_redeem_rejected_total",
			Help: "Отклоненные попытки погашения по причине",
		},
		[]string{"reason"},
	)

	// Метрики AI-ассистента
	AIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_bot_ai_requests_total",
			Help: "Запросы к AI-ассистенту",
		},
		[]string{"status"},
	)

	AIRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loyalty_bot_ai_request_duration_seconds",
			Help:    "Время ответа AI-ассистента",
			Buckets: []float64{0.5, 1, 2, 4, 8, 16, 32},
		},
	)

	// Метрики базы данных
	DatabaseOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_bot_database_operations_total",
			Help: "Общее количество операций с базой данных",
		},
		[]string{"store", "operation", "status"},
	)

	SecondaryWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_bot_secondary_write_failures_total",
			Help: "Ошибки записи во вторичное хранилище в режиме dual",
		},
		[]string{"operation"},
	)

	MigratedRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_bot_migrated_rows_total",
			Help: "Строки, перенесенные между хранилищами",
		},
		[]string{"table", "result"},
	)

	// Метрики экспорта
	Exports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_bot_exports_total",
			Help: "Экспорт отчетов",
		},
		[]string{"target", "status"},
	)

	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_bot_job_runs_total",
			Help: "Запуски периодических задач",
		},
		[]string{"job", "status"},
	)

	// Метрики производительности
	MemoryUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "loyalty_bot_memory_usage_bytes",
			Help: "Использование памяти в байтах",
		},
	)

	GoroutinesCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "loyalty_bot_goroutines_count",
			Help: "Количество активных горутин",
		},
	)

	// Метрики ошибок
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_bot_errors_total",
			Help: "Общее количество ошибок",
		},
		[]string{"component", "error_type"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_bot_rate_limited_total",
			Help: "Отклоненные из-за лимита запросы",
		},
		[]string{"scope"},
	)

	// Метрики HTTP сервера
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loyalty_bot_http_requests_total",
			Help: "Общее количество HTTP запросов",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loyalty_bot_http_request_duration_seconds",
			Help:    "Время обработки HTTP запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// RecordUpdate записывает метрику обработки обновления
func RecordUpdate(handler, status string) {
	UpdatesTotal.WithLabelValues(handler, status).Inc()
}

// RecordGuestRegistration записывает метрику регистрации гостя
func RecordGuestRegistration(sourceKind string) {
	GuestRegistrations.WithLabelValues(sourceKind).Inc()
}

// RecordSubscriptionCheck записывает результат проверки подписки
func RecordSubscriptionCheck(result string) {
	SubscriptionChecks.WithLabelValues(result).Inc()
}

// RecordCouponIssued записывает метрику выдачи купона
func RecordCouponIssued() {
	CouponsIssued.Inc()
}

// RecordCouponRedeemed записывает метрику погашения купона
func RecordCouponRedeemed() {
	CouponsRedeemed.Inc()
}

// RecordRedeemRejected записывает причину отказа в погашении
func RecordRedeemRejected(reason string) {
	RedeemRejected.WithLabelValues(reason).Inc()
}

// RecordAIRequest записывает метрику запроса к AI
func RecordAIRequest(status string, seconds float64) {
	AIRequests.WithLabelValues(status).Inc()
	if seconds > 0 {
		AIRequestDuration.Observe(seconds)
	}
}

// RecordDatabaseOperation записывает метрику операции с БД
func RecordDatabaseOperation(store, operation, status string) {
	DatabaseOperations.WithLabelValues(store, operation, status).Inc()
}

// RecordSecondaryWriteFailure записывает ошибку вторичного хранилища
func RecordSecondaryWriteFailure(operation string) {
	SecondaryWriteFailures.WithLabelValues(operation).Inc()
}

// RecordMigratedRow записывает результат переноса строки
func RecordMigratedRow(table, result string) {
	MigratedRows.WithLabelValues(table, result).Inc()
}

// RecordExport записывает метрику экспорта
func RecordExport(target, status string) {
	Exports.WithLabelValues(target, status).Inc()
}

// RecordJobRun записывает запуск периодической задачи
func RecordJobRun(job, status string) {
	JobRuns.WithLabelValues(job, status).Inc()
}

// RecordError записывает метрику ошибки
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordRateLimited записывает отказ по лимиту
func RecordRateLimited(scope string) {
	RateLimited.WithLabelValues(scope).Inc()
}

// RecordHTTPRequest записывает метрику HTTP запроса
func RecordHTTPRequest(method, endpoint, status string) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
}
