package core

import "fmt"

// VelocityField holds daily grid-relative (u,v) velocities in m/s indexed
// [time][row][col]. Rows follow the planar y axis and columns the x axis.
// Masked cells carry no data. The integration code only reads a field.
type VelocityField struct {
	Times, Rows, Cols int

	u, v []float64
	mask []bool
}

// NewVelocityField allocates a field with every cell masked.
func NewVelocityField(times, rows, cols int) (*VelocityField, error) {
	if times <= 0 || rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("velocity field dimensions must be positive, got %dx%dx%d", times, rows, cols)
	}
	n := times * rows * cols
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = true
	}
	return &VelocityField{
		Times: times,
		Rows:  rows,
		Cols:  cols,
		u:     make([]float64, n),
		v:     make([]float64, n),
		mask:  mask,
	}, nil
}

// Set stores a velocity and clears the mask of one cell.
func (f *VelocityField) Set(t, row, col int, u, v float64) {
	i := f.index(t, row, col)
	f.u[i], f.v[i], f.mask[i] = u, v, false
}

// SetMasked flags one cell as missing.
func (f *VelocityField) SetMasked(t, row, col int) {
	i := f.index(t, row, col)
	f.u[i], f.v[i], f.mask[i] = 0, 0, true
}

// Fill sets every cell of every time step to the same velocity.
func (f *VelocityField) Fill(u, v float64) {
	for i := range f.mask {
		f.u[i], f.v[i], f.mask[i] = u, v, false
	}
}

// At returns the velocity of one cell; ok is false when the cell is masked.
// The indices must be in bounds.
func (f *VelocityField) At(t, row, col int) (u, v float64, ok bool) {
	i := f.index(t, row, col)
	if f.mask[i] {
		return 0, 0, false
	}
	return f.u[i], f.v[i], true
}

// Masked reports whether one cell has no data.
func (f *VelocityField) Masked(t, row, col int) bool {
	return f.mask[f.index(t, row, col)]
}

// Contains reports whether the indices address a cell of the field.
func (f *VelocityField) Contains(t, row, col int) bool {
	return t >= 0 && t < f.Times &&
		row >= 0 && row < f.Rows &&
		col >= 0 && col < f.Cols
}

// containsWindow reports whether the rectangle of cells [row0,row1]x[col0,col1]
// at time t lies inside the field.
func (f *VelocityField) containsWindow(t, row0, row1, col0, col1 int) bool {
	return f.Contains(t, row0, col0) && f.Contains(t, row1, col1)
}

func (f *VelocityField) index(t, row, col int) int {
	return (t*f.Rows+row)*f.Cols + col
}
