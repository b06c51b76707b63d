package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fogleman/gg"

	"github.com/sisoputnfrba/tp-yalnix/hardware"
	"github.com/sisoputnfrba/tp-yalnix/kernel"
	"github.com/sisoputnfrba/tp-yalnix/utils"
)

const (
	mapColumns = 32
	cellSize   = 16
	headerSize = 24
)

// frameDump es la foto de la memoria física que se vuelca a disco.
type frameDump struct {
	ticks   int
	frames  []kernel.Frame
	regions map[int]map[uint64]hardware.PTE
	names   map[int]string
}

func takeFrameDump(k *kernel.Kernel) frameDump {
	d := frameDump{
		ticks:   k.Ticks(),
		frames:  k.FrameUsageMap(),
		regions: make(map[int]map[uint64]hardware.PTE),
		names:   make(map[int]string),
	}
	for _, info := range k.Snapshot(false).Processes {
		if p := k.Lookup(info.PID); p != nil {
			d.regions[p.PID] = kernel.RegionPages(p)
			d.names[p.PID] = p.Name
		}
	}
	return d
}

// palette para los marcos de usuario, elegido por pid.
var palette = [][3]float64{
	{0.90, 0.49, 0.13},
	{0.18, 0.65, 0.32},
	{0.61, 0.35, 0.71},
	{0.91, 0.30, 0.24},
	{0.10, 0.74, 0.61},
	{0.95, 0.77, 0.06},
	{0.83, 0.33, 0.60},
	{0.50, 0.55, 0.55},
}

func frameColor(f kernel.Frame) (float64, float64, float64) {
	switch f.Usage {
	case kernel.FrameKernel:
		return 0.16, 0.50, 0.73
	case kernel.FrameUser:
		c := palette[f.Owner%len(palette)]
		return c[0], c[1], c[2]
	default:
		return 0.93, 0.93, 0.93
	}
}

func dumpName(dir string, ticks int, ext string) string {
	timestamp := time.Now().Format("20060102-150405")
	return filepath.Join(dir, fmt.Sprintf("marcos-%d-%s.%s", ticks, timestamp, ext))
}

// writeFrameMap dibuja un PNG con un cuadrado por marco físico.
func writeFrameMap(dir string, d frameDump) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("error al crear directorio para dumps: %w", err)
	}

	rows := (len(d.frames) + mapColumns - 1) / mapColumns
	w, h := mapColumns*cellSize, headerSize+rows*cellSize
	dc := gg.NewContext(w, h)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	used := 0
	for _, f := range d.frames {
		if f.Usage != kernel.FrameFree {
			used++
		}
	}
	dc.SetRGB(0, 0, 0)
	dc.DrawString(fmt.Sprintf("tick %d - %d/%d marcos en uso", d.ticks, used, len(d.frames)), 4, headerSize-8)

	for _, f := range d.frames {
		x := float64((f.PFN % mapColumns) * cellSize)
		y := float64(headerSize + (f.PFN/mapColumns)*cellSize)
		dc.SetRGB(frameColor(f))
		dc.DrawRectangle(x, y, cellSize, cellSize)
		dc.Fill()
		dc.SetRGB(1, 1, 1)
		dc.SetLineWidth(1)
		dc.DrawRectangle(x, y, cellSize, cellSize)
		dc.Stroke()
	}

	path := dumpName(dir, d.ticks, "png")
	if err := dc.SavePNG(path); err != nil {
		return "", fmt.Errorf("error al guardar %s: %w", path, err)
	}
	utils.InfoLog.Info("Mapa de marcos generado", "archivo", path, "marcos", len(d.frames), "en_uso", used)
	return path, nil
}

// writeFrameTable vuelca la tabla de marcos y la región 1 de cada proceso.
func writeFrameTable(dir string, d frameDump) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("error al crear directorio para dumps: %w", err)
	}
	path := dumpName(dir, d.ticks, "txt")
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("error al crear archivo de dump: %w", err)
	}
	defer file.Close()

	fmt.Fprintf(file, "# tick %d\n# pfn uso dueño\n", d.ticks)
	for _, f := range d.frames {
		if f.Usage == kernel.FrameFree {
			continue
		}
		fmt.Fprintf(file, "%5d %-7s %d\n", f.PFN, f.Usage, f.Owner)
	}

	pids := make([]int, 0, len(d.regions))
	for pid := range d.regions {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	for _, pid := range pids {
		fmt.Fprintf(file, "\n# pid %d (%s)\n", pid, d.names[pid])
		pages := d.regions[pid]
		addrs := make([]uint64, 0, len(pages))
		for addr := range pages {
			addrs = append(addrs, addr)
		}
		sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
		for _, addr := range addrs {
			pte := pages[addr]
			fmt.Fprintf(file, "%#08x -> %5d %s\n", addr, pte.PFN, pte.Prot)
		}
	}

	if err := file.Close(); err != nil {
		return "", fmt.Errorf("error al escribir %s: %w", path, err)
	}
	utils.InfoLog.Info("Volcado de marcos completado", "archivo", path)
	return path, nil
}
