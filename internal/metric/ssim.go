package metric

import "visreg/internal/imaging"

// ssimWindow is the side length of the sliding comparison window.
const ssimWindow = 7

// ssimK1 and ssimK2 are the standard stabilization constants.
const (
	ssimK1 = 0.01
	ssimK2 = 0.03
)

// ComputeSSIM returns the mean structural similarity over 7x7 uniform
// windows of the luminance-converted frames. The data range is taken from
// the golden frame's pixel intensity span. Frames smaller than the window
// are compared as a single window.
func ComputeSSIM(golden, latest *imaging.Frame) float64 {
	g := golden.Gray()
	l := latest.Gray()

	min, max := g.Range()
	dataRange := max - min
	if dataRange == 0 {
		if sameSamples(g, l) {
			return 1.0
		}
		dataRange = float64(g.MaxVal)
	}

	win := ssimWindow
	if g.Width < win || g.Height < win {
		win = g.Width
		if g.Height < win {
			win = g.Height
		}
	}

	c1 := (ssimK1 * dataRange) * (ssimK1 * dataRange)
	c2 := (ssimK2 * dataRange) * (ssimK2 * dataRange)

	np := float64(win * win)
	covNorm := np / (np - 1)
	if np == 1 {
		covNorm = 1
	}

	var total float64
	var count int
	for y0 := 0; y0+win <= g.Height; y0++ {
		for x0 := 0; x0+win <= g.Width; x0++ {
			var sx, sy, sxx, syy, sxy float64
			for y := y0; y < y0+win; y++ {
				for x := x0; x < x0+win; x++ {
					a := g.At(x, y, 0)
					b := l.At(x, y, 0)
					sx += a
					sy += b
					sxx += a * a
					syy += b * b
					sxy += a * b
				}
			}
			ux := sx / np
			uy := sy / np
			vx := covNorm * (sxx/np - ux*ux)
			vy := covNorm * (syy/np - uy*uy)
			vxy := covNorm * (sxy/np - ux*uy)

			a1 := 2*ux*uy + c1
			a2 := 2*vxy + c2
			b1 := ux*ux + uy*uy + c1
			b2 := vx + vy + c2
			total += (a1 * a2) / (b1 * b2)
			count++
		}
	}
	if count == 0 {
		return 1.0
	}
	return total / float64(count)
}

func sameSamples(a, b *imaging.Frame) bool {
	for i := range a.Samples {
		if a.Samples[i] != b.Samples[i] {
			return false
		}
	}
	return true
}
