// Package view renders 2-D image slices for inspection.
package view

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Size is the side length of rendered images.
var Size = 6 * vg.Inch

// grid adapts an [x][y] slice to plotter.GridXYZ.
type grid [][]float32

func (g grid) Dims() (c, r int) { return len(g), len(g[0]) }
func (g grid) Z(c, r int) float64 { return float64(g[c][r]) }
func (g grid) X(c int) float64 { return float64(c) }
func (g grid) Y(r int) float64 { return float64(r) }

// grays is a linear black to white palette.
type grays int

func (n grays) Colors() []color.Color {
	out := make([]color.Color, n)
	for i := range out {
		v := uint8(i * 255 / max(int(n)-1, 1))
		out[i] = color.Gray{Y: v}
	}
	return out
}

// Render draws img, indexed [x][y], as a grayscale heat map and saves it
// to path. The format follows the path's extension (png, svg, pdf, ...).
func Render(img [][]float32, title, path string) error {
	if len(img) == 0 || len(img[0]) == 0 {
		return errors.New("empty image")
	}
	for i, col := range img {
		if len(col) != len(img[0]) {
			return fmt.Errorf("ragged image: column %d has %d values, want %d", i, len(col), len(img[0]))
		}
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"

	hm := plotter.NewHeatMap(grid(img), grays(256))
	p.Add(hm)

	nx, ny := grid(img).Dims()
	p.X.Min, p.X.Max = -0.5, float64(nx)-0.5
	p.Y.Min, p.Y.Max = -0.5, float64(ny)-0.5

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	if err := p.Save(Size, Size, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
