package utils

import (
	"fmt"
	"log/slog"
	"strconv"
)

// Module agrupa el servidor HTTP de un componente y sus manejadores,
// indexados por tipo de mensaje y operación.
type Module struct {
	Name     string
	Server   *HTTPServer
	handlers map[string]map[string]HTTPHandlerFunc
	errs     chan error
}

// NewModule crea un módulo sin servidor.
func NewModule(name string) *Module {
	return &Module{
		Name:     name,
		handlers: make(map[string]map[string]HTTPHandlerFunc),
		errs:     make(chan error, 1),
	}
}

// RegisterHandler registra un manejador para un tipo de mensaje y una
// operación. La operación "default" atiende las que no tienen manejador
// propio.
func (m *Module) RegisterHandler(messageType int, operation string, handler HTTPHandlerFunc) {
	key := strconv.Itoa(messageType)
	if _, exists := m.handlers[key]; !exists {
		m.handlers[key] = make(map[string]HTTPHandlerFunc)
	}
	m.handlers[key][operation] = handler
}

// Dispatch resuelve el manejador de msg según su operación.
func (m *Module) Dispatch(byOperation map[string]HTTPHandlerFunc, msg *Message) (any, error) {
	operation := msg.Operation
	if operation == "" {
		operation = "default"
	}
	handler, exists := byOperation[operation]
	if !exists {
		handler, exists = byOperation["default"]
		if !exists {
			slog.Error("No hay handler para operación", "tipo", msg.Type, "operacion", operation)
			return nil, fmt.Errorf("no hay handler para operación %s", operation)
		}
	}
	return handler(msg)
}

// BuildServer crea el servidor HTTP con todos los manejadores registrados
// sin ponerlo a escuchar.
func (m *Module) BuildServer(ip string, port int) *HTTPServer {
	m.Server = NewHTTPServer(ip, port, m.Name)
	for typeStr, byOperation := range m.handlers {
		byOperation := byOperation
		messageType, err := strconv.Atoi(typeStr)
		if err != nil {
			slog.Error("Error al convertir tipo de mensaje a entero", "tipo", typeStr, "error", err)
			continue
		}
		m.Server.RegisterHTTPHandler(messageType, func(msg *Message) (any, error) {
			return m.Dispatch(byOperation, msg)
		})
	}
	return m.Server
}

// StartServer arma el servidor y lo pone a escuchar en segundo plano. Los
// errores de arranque llegan por Errors.
func (m *Module) StartServer(ip string, port int) {
	server := m.BuildServer(ip, port)
	go func() {
		if err := server.Start(); err != nil {
			slog.Error("Error al iniciar servidor HTTP", "error", err)
			m.errs <- err
		}
	}()
	slog.Info("Servidor HTTP iniciado", "módulo", m.Name, "dirección", fmt.Sprintf("%s:%d", ip, port))
}

// Errors devuelve el canal por el que se informan fallas del servidor.
func (m *Module) Errors() <-chan error {
	return m.errs
}

// Tipos de mensajes que atiende el monitor.
const (
	// === COMUNICACIÓN BÁSICA (1-9) ===
	MessageHandshake = 1 // Conexión inicial

	// === ESTADO DEL KERNEL (10-19) ===
	MessageStatus = 10 // Foto de procesos, colas y recursos
	MessageHalt   = 11 // Detener la máquina

	// === TERMINALES (20-29) ===
	MessageTTYInput  = 20 // Tipear una línea en una terminal
	MessageTTYOutput = 21 // Leer lo transmitido por una terminal

	// === MEMORIA (30-39) ===
	MessageDump = 30 // Volcado del mapa de marcos
)
