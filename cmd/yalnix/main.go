package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sisoputnfrba/tp-yalnix/hardware"
	"github.com/sisoputnfrba/tp-yalnix/kernel"
	"github.com/sisoputnfrba/tp-yalnix/loader"
	"github.com/sisoputnfrba/tp-yalnix/utils"
)

var (
	config  *YalnixConfig
	modulo  *utils.Module
	sistema *System
)

func main() {
	utils.InitLogger("INFO", "yalnix")

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Uso: %s <archivo_configuracion>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Ejemplo: %s configs/yalnix.json\n", os.Args[0])
		os.Exit(1)
	}
	configPath := os.Args[1]

	var err error
	config, err = utils.LoadConfig[YalnixConfig](configPath)
	if err != nil {
		utils.ErrorLog.Error("Error cargando configuración", "error", err)
		os.Exit(1)
	}
	config.applyDefaults()
	log := utils.InitLogger(config.LogLevel, "yalnix")
	log.Info("Configuración cargada", "nivel_log", config.LogLevel, "config_path", configPath)

	m, err := hardware.NewMachine(config.machineConfig())
	if err != nil {
		log.Error("Error creando la máquina", "error", err)
		os.Exit(1)
	}
	programs := loader.Dir(config.ProgramsPath)
	k, err := kernel.Boot(m, config.Config, programs, log)
	if err != nil {
		log.Error("Error durante el boot", "error", err)
		os.Exit(1)
	}
	sistema = NewSystem(m, k, config.InstructionDelayMs)

	if config.MonitorPort > 0 {
		modulo = utils.NewModule("yalnix")
		registerHandlers()
		modulo.StartServer(config.MonitorIP, config.MonitorPort)
	} else {
		sistema.echo = os.Stdout
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if modulo != nil {
		go func() {
			select {
			case err := <-modulo.Errors():
				log.Error("El monitor dejó de funcionar", "error", err)
				stop()
			case <-ctx.Done():
			}
		}()
	}

	reason := sistema.Run(ctx, config.MaxTicks)
	log.Info("Máquina detenida", "motivo", reason, "ticks", m.Ticks(), "instrucciones", m.Instructions())

	if modulo != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := modulo.Server.Shutdown(shutdownCtx); err != nil {
			log.Warn("Error cerrando el monitor", "error", err)
		}
	}
}
