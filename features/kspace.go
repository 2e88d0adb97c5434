package features

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// KSpace returns the log magnitude log(1+|F|) of the centred 2-D Fourier
// transform of img, the same shape as img.
func KSpace(img [][]float32) [][]float32 {
	rows := len(img)
	if rows == 0 {
		return nil
	}
	cols := len(img[0])

	grid := make([][]complex128, rows)
	rowFFT := fourier.NewCmplxFFT(cols)
	for r := range rows {
		seq := make([]complex128, cols)
		for c, v := range img[r] {
			seq[c] = complex(float64(v), 0)
		}
		grid[r] = rowFFT.Coefficients(nil, seq)
	}

	colFFT := fourier.NewCmplxFFT(rows)
	col := make([]complex128, rows)
	for c := range cols {
		for r := range rows {
			col[r] = grid[r][c]
		}
		colFFT.Coefficients(col, col)
		for r := range rows {
			grid[r][c] = col[r]
		}
	}

	out := make([][]float32, rows)
	for r := range rows {
		out[r] = make([]float32, cols)
	}
	for r := range rows {
		sr := colFFT.ShiftIdx(r)
		for c := range cols {
			out[r][c] = float32(math.Log1p(cmplx.Abs(grid[sr][rowFFT.ShiftIdx(c)])))
		}
	}
	return out
}
