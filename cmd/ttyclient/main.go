package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sisoputnfrba/tp-yalnix/hardware"
	"github.com/sisoputnfrba/tp-yalnix/utils"
)

// TTYClientConfig es la configuración del cliente de terminal.
type TTYClientConfig struct {
	LogLevel    string `json:"LOG_LEVEL"`
	MonitorIP   string `json:"MONITOR_IP"`
	MonitorPort int    `json:"MONITOR_PORT"`
	PollMs      int    `json:"POLL_MS"`
}

type ttyOutput struct {
	Terminal int    `json:"terminal"`
	Output   string `json:"salida"`
}

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Uso: ./ttyclient <terminal> <ruta_configuracion>")
		fmt.Println("Ejemplo: ./ttyclient 0 configs/ttyclient.json")
		os.Exit(1)
	}

	tty, err := strconv.Atoi(os.Args[1])
	if err != nil || tty < 0 || tty >= hardware.NumTerminals {
		fmt.Printf("Error: la terminal debe ser un número entre 0 y %d\n", hardware.NumTerminals-1)
		os.Exit(1)
	}

	loggerName := fmt.Sprintf("TTY-%d", tty)
	utils.InitLogger("INFO", loggerName)
	config, err := utils.LoadConfig[TTYClientConfig](os.Args[2])
	if err != nil {
		utils.ErrorLog.Error("Error cargando configuración", "error", err)
		os.Exit(1)
	}
	if config.PollMs <= 0 {
		config.PollMs = 100
	}
	utils.InitLogger(config.LogLevel, loggerName)

	client := utils.NewHTTPClient(config.MonitorIP, config.MonitorPort, loggerName)
	if err := client.WaitForConnection(10, time.Second); err != nil {
		utils.ErrorLog.Error("No se pudo conectar con el monitor", "error", err)
		os.Exit(1)
	}
	var handshake map[string]any
	if err := client.Send(utils.MessageHandshake, "handshake", map[string]any{"terminal": tty}, &handshake); err != nil {
		utils.ErrorLog.Error("Error en el handshake", "error", err)
		os.Exit(1)
	}
	utils.InfoLog.Info("Conectado al monitor", "terminal", tty, "respuesta", handshake)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go pollOutput(ctx, client, tty, time.Duration(config.PollMs)*time.Millisecond)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			utils.InfoLog.Info("Cliente de terminal finalizando")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			data := map[string]any{"terminal": tty, "linea": line}
			if err := client.Send(utils.MessageTTYInput, "default", data, nil); err != nil {
				utils.ErrorLog.Error("Error enviando línea", "error", err)
			}
		}
	}
}

// pollOutput imprime lo que la terminal transmite hasta que se cancela ctx.
func pollOutput(ctx context.Context, client *utils.HTTPClient, tty int, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var out ttyOutput
			if err := client.Send(utils.MessageTTYOutput, "default", map[string]any{"terminal": tty}, &out); err != nil {
				utils.ErrorLog.Warn("Error consultando salida", "error", err)
				continue
			}
			if out.Output != "" {
				fmt.Print(out.Output)
			}
		}
	}
}
