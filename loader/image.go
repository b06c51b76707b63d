package loader

import (
	"github.com/sisoputnfrba/tp-yalnix/hardware"
)

// Image es un programa ensamblado listo para cargarse en la región 1. El
// texto empieza en VMem1Base y los datos en la página siguiente al texto.
type Image struct {
	Name    string
	Text    []byte
	Data    []byte
	Entry   uint64
	Symbols map[string]uint64
}

// TextPages devuelve la cantidad de páginas que ocupa el texto.
func (img *Image) TextPages() int {
	return int(hardware.UpToPage(uint64(len(img.Text))) >> hardware.PageShift)
}

// DataPages devuelve la cantidad de páginas que ocupan los datos.
func (img *Image) DataPages() int {
	return int(hardware.UpToPage(uint64(len(img.Data))) >> hardware.PageShift)
}

// DataBase es la dirección virtual del primer byte de datos.
func (img *Image) DataBase() uint64 {
	return hardware.VMem1Base + uint64(img.TextPages())<<hardware.PageShift
}

// HeapStart es la primera dirección libre después de los datos.
func (img *Image) HeapStart() uint64 {
	return img.DataBase() + uint64(img.DataPages())<<hardware.PageShift
}

// Instructions devuelve la cantidad de instrucciones del texto.
func (img *Image) Instructions() int {
	return len(img.Text) / hardware.InstrSize
}
