package main

import (
	"fmt"

	"github.com/sisoputnfrba/tp-yalnix/hardware"
	"github.com/sisoputnfrba/tp-yalnix/kernel"
	"github.com/sisoputnfrba/tp-yalnix/utils"
)

func registerHandlers() {
	modulo.RegisterHandler(utils.MessageHandshake, "default", handlerHandshake)
	modulo.RegisterHandler(utils.MessageStatus, "default", handlerStatus)
	modulo.RegisterHandler(utils.MessageHalt, "default", handlerHalt)
	modulo.RegisterHandler(utils.MessageTTYInput, "default", handlerTTYInput)
	modulo.RegisterHandler(utils.MessageTTYOutput, "default", handlerTTYOutput)
	modulo.RegisterHandler(utils.MessageDump, "default", handlerDump)
	modulo.RegisterHandler(utils.MessageDump, "texto", handlerDumpText)

	utils.InfoLog.Info("Handlers registrados correctamente")
}

func handlerHandshake(msg *utils.Message) (any, error) {
	utils.InfoLog.Info("Handshake recibido", "origen", msg.Origin)
	return map[string]any{
		"status":     "OK",
		"terminales": hardware.NumTerminals,
		"tam_pagina": hardware.PageSize,
		"linea_max":  hardware.TerminalMaxLine,
		"marcos":     sistema.m.NumFrames(),
	}, nil
}

func handlerStatus(msg *utils.Message) (any, error) {
	var snap kernel.Snapshot
	sistema.locked(func() {
		snap = sistema.k.Snapshot(utils.DataBool(msg, "marcos", false))
	})
	return snap, nil
}

func handlerHalt(msg *utils.Message) (any, error) {
	utils.InfoLog.Info("Pedido de detención", "origen", msg.Origin)
	sistema.locked(func() {
		sistema.m.Halt("detenida desde el monitor")
	})
	return map[string]any{"status": "OK"}, nil
}

func handlerTTYInput(msg *utils.Message) (any, error) {
	tty := utils.DataInt(msg, "terminal", 0)
	line := utils.DataString(msg, "linea", "")
	if err := sistema.m.Type(tty, line); err != nil {
		return nil, fmt.Errorf("terminal %d: %w", tty, err)
	}
	utils.InfoLog.Debug("Línea tipeada", "terminal", tty, "bytes", len(line))
	return map[string]any{"status": "OK"}, nil
}

func handlerTTYOutput(msg *utils.Message) (any, error) {
	tty := utils.DataInt(msg, "terminal", 0)
	if tty < 0 || tty >= hardware.NumTerminals {
		return nil, fmt.Errorf("terminal %d: %w", tty, hardware.ErrBadTerminal)
	}
	return map[string]any{
		"terminal": tty,
		"salida":   sistema.m.DrainOutput(tty),
	}, nil
}

func handlerDump(msg *utils.Message) (any, error) {
	var d frameDump
	sistema.locked(func() {
		d = takeFrameDump(sistema.k)
	})
	png, err := writeFrameMap(config.DumpPath, d)
	if err != nil {
		utils.ErrorLog.Error("Error generando mapa de marcos", "error", err)
		return nil, err
	}
	txt, err := writeFrameTable(config.DumpPath, d)
	if err != nil {
		utils.ErrorLog.Error("Error generando volcado de marcos", "error", err)
		return nil, err
	}
	return map[string]any{"status": "OK", "imagen": png, "texto": txt}, nil
}

func handlerDumpText(msg *utils.Message) (any, error) {
	var d frameDump
	sistema.locked(func() {
		d = takeFrameDump(sistema.k)
	})
	txt, err := writeFrameTable(config.DumpPath, d)
	if err != nil {
		utils.ErrorLog.Error("Error generando volcado de marcos", "error", err)
		return nil, err
	}
	return map[string]any{"status": "OK", "texto": txt}, nil
}
