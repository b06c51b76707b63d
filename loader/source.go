package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrProgramNotFound = errors.New("programa inexistente")

// Source resuelve el nombre que recibe Exec en una imagen ensamblada.
type Source interface {
	Open(name string) (*Image, error)
}

// Dir busca programas en un directorio. Acepta el nombre tal cual o con
// extensión ".yas".
type Dir string

func (d Dir) Open(name string) (*Image, error) {
	if name == "" || strings.Contains(name, "..") {
		return nil, fmt.Errorf("%w: %q", ErrProgramNotFound, name)
	}
	base := filepath.Join(string(d), filepath.Clean("/"+name))
	for _, path := range []string{base, base + ".yas"} {
		f, err := os.Open(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("abriendo %s: %w", path, err)
		}
		img, err := Assemble(name, f)
		f.Close()
		return img, err
	}
	return nil, fmt.Errorf("%w: %q en %s", ErrProgramNotFound, name, string(d))
}

// Map guarda el texto de cada programa en memoria. Se usa en tests y para
// los programas que trae el propio kernel.
type Map map[string]string

func (m Map) Open(name string) (*Image, error) {
	src, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProgramNotFound, name)
	}
	return AssembleString(name, src)
}

// Chain prueba cada fuente en orden y devuelve la primera imagen que encuentra.
type Chain []Source

func (c Chain) Open(name string) (*Image, error) {
	for _, s := range c {
		img, err := s.Open(name)
		if errors.Is(err, ErrProgramNotFound) {
			continue
		}
		return img, err
	}
	return nil, fmt.Errorf("%w: %q", ErrProgramNotFound, name)
}
