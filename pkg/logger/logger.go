package logger

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel определяет уровень логирования
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var zapLevels = map[LogLevel]zapcore.Level{
	LevelDebug: zapcore.DebugLevel,
	LevelInfo:  zapcore.InfoLevel,
	LevelWarn:  zapcore.WarnLevel,
	LevelError: zapcore.ErrorLevel,
	LevelFatal: zapcore.FatalLevel,
}

// ParseLevel переводит строку из LOG_LEVEL в LogLevel
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Logger представляет структурированный логгер поверх zap
type Logger struct {
	level zap.AtomicLevel
	zl    *zap.Logger
}

// New создает новый логгер с консольным выводом
func New(level LogLevel) *Logger {
	return NewWithFormat(level, "console")
}

// NewWithFormat создает логгер с форматом console или json
func NewWithFormat(level LogLevel, format string) *Logger {
	return NewWithOptions(Options{Level: level, Format: format})
}

// Options параметры логгера
type Options struct {
	Level  LogLevel
	Format string
	// File включает запись в файл с ротацией вместо stderr
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewWithOptions создает логгер по параметрам
func NewWithOptions(opts Options) *Logger {
	atom := zap.NewAtomicLevelAt(zapLevels[opts.Level])

	encCfg := zap.NewProductionEncoderConfig()
	if opts.Format != "json" {
		encCfg = zap.NewDevelopmentEncoderConfig()
	}
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")

	var encoder zapcore.Encoder
	if opts.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	if opts.File != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    withDefault(opts.MaxSizeMB, 10),
			MaxBackups: withDefault(opts.MaxBackups, 5),
			MaxAge:     withDefault(opts.MaxAgeDays, 30),
		})
	}

	zl := zap.New(zapcore.NewCore(encoder, sink, atom), zap.AddCaller(), zap.AddCallerSkip(1))

	return &Logger{level: atom, zl: zl}
}

func withDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// NewFromZap оборачивает готовый zap.Logger (используется в тестах с observer)
func NewFromZap(zl *zap.Logger) *Logger {
	return &Logger{
		level: zap.NewAtomicLevelAt(zapcore.DebugLevel),
		zl:    zl.WithOptions(zap.AddCallerSkip(1)),
	}
}

// NewNop возвращает логгер, который ничего не пишет
func NewNop() *Logger {
	return &Logger{level: zap.NewAtomicLevel(), zl: zap.NewNop()}
}

// SetLevel устанавливает уровень логирования
func (l *Logger) SetLevel(level LogLevel) {
	l.level.SetLevel(zapLevels[level])
}

// Zap возвращает исходный zap.Logger
func (l *Logger) Zap() *zap.Logger {
	return l.zl
}

// Sync сбрасывает буферы
func (l *Logger) Sync() error {
	return l.zl.Sync()
}

func (l *Logger) Debug(msg string, fields ...Field) {
	l.zl.Debug(msg, fields...)
}

func (l *Logger) Info(msg string, fields ...Field) {
	l.zl.Info(msg, fields...)
}

func (l *Logger) Warn(msg string, fields ...Field) {
	l.zl.Warn(msg, fields...)
}

func (l *Logger) Error(msg string, fields ...Field) {
	l.zl.Error(msg, fields...)
}

// Fatal записывает fatal сообщение и завершает программу
func (l *Logger) Fatal(msg string, fields ...Field) {
	l.zl.Fatal(msg, fields...)
}

// WithFields возвращает логгер с предустановленными полями
func (l *Logger) WithFields(fields ...Field) *Logger {
	return &Logger{
		level: l.level,
		zl:    l.zl.With(fields...),
	}
}

// Named возвращает дочерний логгер компонента
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		level: l.level,
		zl:    l.zl.Named(name),
	}
}

// Field представляет поле логирования
type Field = zap.Field

// Вспомогательные функции для создания полей
func String(key, value string) Field {
	return zap.String(key, value)
}

func Int(key string, value int) Field {
	return zap.Int(key, value)
}

func Int64(key string, value int64) Field {
	return zap.Int64(key, value)
}

func Bool(key string, value bool) Field {
	return zap.Bool(key, value)
}

func Error(err error) Field {
	return zap.Error(err)
}

func Duration(key string, value time.Duration) Field {
	return zap.Duration(key, value)
}

func Any(key string, value interface{}) Field {
	return zap.Any(key, value)
}

// Глобальный логгер по умолчанию
var defaultLogger = New(LevelInfo)

// SetDefault заменяет глобальный логгер
func SetDefault(l *Logger) {
	defaultLogger = l
}

// Default возвращает глобальный логгер
func Default() *Logger {
	return defaultLogger
}

func Debug(msg string, fields ...Field) {
	defaultLogger.Debug(msg, fields...)
}

func Info(msg string, fields ...Field) {
	defaultLogger.Info(msg, fields...)
}

func Warn(msg string, fields ...Field) {
	defaultLogger.Warn(msg, fields...)
}

func ErrorLog(msg string, fields ...Field) {
	defaultLogger.Error(msg, fields...)
}

func Fatal(msg string, fields ...Field) {
	defaultLogger.Fatal(msg, fields...)
}

func SetLevel(level LogLevel) {
	defaultLogger.SetLevel(level)
}
