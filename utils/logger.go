package utils

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var (
	InfoLog  *slog.Logger
	ErrorLog *slog.Logger
)

// ParseLevel traduce el nivel de log de la configuración. Cualquier valor
// desconocido equivale a info.
func ParseLevel(logLevel string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger crea un logger de texto sobre w con el atributo del módulo.
func NewLogger(w io.Writer, logLevel string, moduleName string) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(logLevel),
	})
	return slog.New(handler).With("modulo", moduleName)
}

// InitLogger configura los loggers globales sobre stdout.
func InitLogger(logLevel string, moduleName string) *slog.Logger {
	logger := NewLogger(os.Stdout, logLevel, moduleName)
	InfoLog = logger
	ErrorLog = logger
	slog.SetDefault(logger)
	return logger
}
