package utils

import (
	"log/slog"
	"time"
)

// ApplyDelay duerme durationMs milisegundos simulando el costo de operacion.
func ApplyDelay(operation string, durationMs int) {
	if durationMs <= 0 {
		return
	}
	slog.Debug("Aplicando retardo", "operación", operation, "duración_ms", durationMs)
	time.Sleep(time.Duration(durationMs) * time.Millisecond)
}

// DataString extrae el campo key de los datos de msg.
func DataString(msg *Message, key string, defaultValue string) string {
	if data, ok := msg.Data.(map[string]any); ok {
		if v, ok := data[key].(string); ok {
			return v
		}
	}
	return defaultValue
}

// DataInt extrae el campo numérico key de los datos de msg.
func DataInt(msg *Message, key string, defaultValue int) int {
	if data, ok := msg.Data.(map[string]any); ok {
		if v, ok := data[key].(float64); ok {
			return int(v)
		}
	}
	return defaultValue
}

// DataBool extrae el campo booleano key de los datos de msg.
func DataBool(msg *Message, key string, defaultValue bool) bool {
	if data, ok := msg.Data.(map[string]any); ok {
		if v, ok := data[key].(bool); ok {
			return v
		}
	}
	return defaultValue
}
