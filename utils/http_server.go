package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
)

// HTTPHandlerFunc atiende un mensaje y devuelve la respuesta a serializar.
type HTTPHandlerFunc func(*Message) (any, error)

// HTTPServer recibe mensajes en POST /mensaje y responde GET /health.
type HTTPServer struct {
	IP       string
	Port     int
	Name     string
	server   *http.Server
	handlers map[int]HTTPHandlerFunc
	Listener net.Listener
}

// NewHTTPServer crea un servidor sin manejadores.
func NewHTTPServer(ip string, port int, name string) *HTTPServer {
	return &HTTPServer{
		IP:       ip,
		Port:     port,
		Name:     name,
		handlers: make(map[int]HTTPHandlerFunc),
	}
}

// RegisterHTTPHandler registra el manejador de un tipo de mensaje.
func (s *HTTPServer) RegisterHTTPHandler(messageType int, handler HTTPHandlerFunc) {
	s.handlers[messageType] = handler
}

// Handler devuelve el mux con los endpoints del servidor.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/mensaje", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Método no permitido", http.StatusMethodNotAllowed)
			return
		}

		var msg Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			http.Error(w, fmt.Sprintf("Error decodificando mensaje: %v", err), http.StatusBadRequest)
			return
		}

		handler, exists := s.handlers[msg.Type]
		if !exists {
			http.Error(w, fmt.Sprintf("No hay manejador para el tipo de mensaje %d", msg.Type), http.StatusBadRequest)
			return
		}

		resp, err := handler(&msg)
		if err != nil {
			http.Error(w, fmt.Sprintf("Error en el manejador: %v", err), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.Error("Error serializando respuesta", "error", err)
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "module": s.Name})
	})

	return mux
}

// Start atiende conexiones hasta que se llame a Shutdown.
func (s *HTTPServer) Start() error {
	address := fmt.Sprintf("%s:%d", s.IP, s.Port)
	s.server = &http.Server{
		Addr:    address,
		Handler: s.Handler(),
	}

	var err error
	if s.Listener != nil {
		slog.Info("Servidor HTTP escuchando", "módulo", s.Name, "dirección", s.Listener.Addr().String())
		err = s.server.Serve(s.Listener)
	} else {
		slog.Info("Servidor HTTP escuchando", "módulo", s.Name, "dirección", address)
		err = s.server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown cierra el servidor esperando a las conexiones en curso.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
