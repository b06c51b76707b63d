package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Message es el sobre de todos los mensajes entre el monitor y sus clientes.
type Message struct {
	Type      int    `json:"tipo"`
	Operation string `json:"operacion"`
	Origin    string `json:"origen"`
	Data      any    `json:"datos"`
}

// HTTPClient envía mensajes a un HTTPServer.
type HTTPClient struct {
	BaseURL string
	Name    string
	client  *http.Client
}

// NewHTTPClient crea un cliente para ip:port.
func NewHTTPClient(ip string, port int, name string) *HTTPClient {
	return NewHTTPClientURL(fmt.Sprintf("http://%s:%d", ip, port), name)
}

// NewHTTPClientURL crea un cliente para una URL base ya armada.
func NewHTTPClientURL(baseURL string, name string) *HTTPClient {
	return &HTTPClient{
		BaseURL: baseURL,
		Name:    name,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Send envía un mensaje y decodifica la respuesta en out, si no es nil.
func (c *HTTPClient) Send(messageType int, operation string, data any, out any) error {
	msg := Message{
		Type:      messageType,
		Operation: operation,
		Origin:    c.Name,
		Data:      data,
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("error al serializar mensaje: %w", err)
	}

	resp, err := c.client.Post(c.BaseURL+"/mensaje", "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("error al enviar mensaje HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("respuesta HTTP no exitosa: %d - %s", resp.StatusCode, bytes.TrimSpace(bodyBytes))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error al decodificar respuesta: %w", err)
	}
	return nil
}

// CheckConnection verifica que el módulo remoto responda en /health.
func (c *HTTPClient) CheckConnection() error {
	resp, err := c.client.Get(c.BaseURL + "/health")
	if err != nil {
		return fmt.Errorf("error al verificar conexión con %s: %w", c.BaseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("estado inesperado al verificar conexión: %d", resp.StatusCode)
	}

	var result map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("error al decodificar respuesta de verificación: %w", err)
	}

	slog.Info("Conexión verificada", "destino", c.BaseURL, "módulo", result["module"])
	return nil
}

// WaitForConnection reintenta CheckConnection hasta attempts veces.
func (c *HTTPClient) WaitForConnection(attempts int, pause time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = c.CheckConnection(); err == nil {
			return nil
		}
		time.Sleep(pause)
	}
	return err
}
