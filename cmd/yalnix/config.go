package main

import (
	"github.com/sisoputnfrba/tp-yalnix/hardware"
	"github.com/sisoputnfrba/tp-yalnix/kernel"
)

// YalnixConfig es el archivo de configuración del simulador: los
// parámetros del kernel más los de la máquina y el monitor.
type YalnixConfig struct {
	kernel.Config

	LogLevel           string `json:"LOG_LEVEL"`
	PhysicalMemory     int    `json:"PHYSICAL_MEMORY"`
	TickInstructions   int    `json:"TICK_INSTRUCTIONS"`
	TransmitDelay      int    `json:"TRANSMIT_DELAY"`
	InstructionDelayMs int    `json:"INSTRUCTION_DELAY_MS"`
	ProgramsPath       string `json:"PROGRAMS_PATH"`
	MaxTicks           int    `json:"MAX_TICKS"`

	// Con MONITOR_PORT en cero no se levanta el monitor y la salida de
	// las terminales se imprime por stdout.
	MonitorIP   string `json:"MONITOR_IP"`
	MonitorPort int    `json:"MONITOR_PORT"`
	DumpPath    string `json:"DUMP_PATH"`
}

func (c *YalnixConfig) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.ProgramsPath == "" {
		c.ProgramsPath = "programs"
	}
	if c.MonitorIP == "" {
		c.MonitorIP = "127.0.0.1"
	}
	if c.DumpPath == "" {
		c.DumpPath = "dumps"
	}
}

func (c *YalnixConfig) machineConfig() hardware.Config {
	return hardware.Config{
		PhysicalMemory:   c.PhysicalMemory,
		TickInstructions: c.TickInstructions,
		TransmitDelay:    c.TransmitDelay,
	}
}
