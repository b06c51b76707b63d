package utils

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// LoadConfig decodifica el archivo JSON de ruta en un T. Los campos que
// no aparecen quedan en cero para que cada módulo aplique sus defaults.
func LoadConfig[T any](ruta string) (*T, error) {
	slog.Info("Cargando configuración", "ruta", ruta)

	absPath, err := filepath.Abs(ruta)
	if err != nil {
		return nil, fmt.Errorf("obteniendo ruta absoluta de %s: %w", ruta, err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("abriendo archivo de configuración: %w", err)
	}
	defer file.Close()

	var config T
	decoder := json.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("decodificando %s: %w", absPath, err)
	}

	slog.Info("Configuración cargada correctamente", "archivo", absPath)
	return &config, nil
}
