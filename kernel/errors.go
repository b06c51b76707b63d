package kernel

import "errors"

// Errores recuperables: la syscall que los produce devuelve ERROR.
var (
	ErrOutOfMemory     = errors.New("no hay marcos libres")
	ErrFrameBusy       = errors.New("marco ocupado")
	ErrFrameOutOfRange = errors.New("marco fuera de rango")
	ErrNoFreePCB       = errors.New("tabla de procesos llena")
	ErrBadAddress      = errors.New("dirección de usuario inválida")
	ErrBadArgument     = errors.New("argumento inválido")
	ErrBadResource     = errors.New("recurso inexistente")
	ErrNoFreeResource  = errors.New("tabla de recursos llena")
	ErrResourceBusy    = errors.New("recurso en uso")
	ErrNotOwner        = errors.New("el proceso no tiene el lock")
	ErrNoChildren      = errors.New("el proceso no tiene hijos")
	ErrBrkCollision    = errors.New("el break choca con la pila")
)

// errAddressSpaceLost indica que Exec falló después de liberar la imagen
// anterior, así que el proceso no tiene a dónde volver.
var errAddressSpaceLost = errors.New("espacio de direcciones destruido durante la carga")
