// Package calibration maps ADC channel indices to physical energies
// using a polynomial fitted through two or three reference points.
package calibration

import (
	"fmt"
	"math"
)

// Point is one calibration reference: a channel index and the energy
// (keV) it corresponds to.
type Point struct {
	Channel float64
	Energy  float64
}

// Calibration holds the fitted polynomial
//
//	energy = a*channel^2 + k*channel + d
//
// with a == 0 for a two-point linear fit. Coefficients survive
// Disable/Enable cycles so a calibration can be re-enabled without
// re-deriving it from its input points.
type Calibration struct {
	enabled bool
	degree  int
	a, k, d float64
}

// NewLinear fits a line through two reference points.
func NewLinear(p1, p2 Point) (*Calibration, error) {
	if err := checkPoints(p1, p2); err != nil {
		return nil, err
	}
	if p1.Channel == p2.Channel {
		return nil, fmt.Errorf("%w: channel %g used twice", ErrDuplicateChannel, p1.Channel)
	}

	k := (p2.Energy - p1.Energy) / (p2.Channel - p1.Channel)
	d := p1.Energy - k*p1.Channel

	return &Calibration{enabled: true, degree: 1, k: k, d: d}, nil
}

// NewQuadratic fits the unique parabola through three reference
// points using closed-form Lagrange coefficients. Two points sharing
// a channel make the fit singular and are rejected.
func NewQuadratic(p1, p2, p3 Point) (*Calibration, error) {
	if err := checkPoints(p1, p2, p3); err != nil {
		return nil, err
	}

	x1, x2, x3 := p1.Channel, p2.Channel, p3.Channel
	y1, y2, y3 := p1.Energy, p2.Energy, p3.Energy

	denom := (x1 - x2) * (x1 - x3) * (x2 - x3)
	if denom == 0 {
		return nil, fmt.Errorf("%w: reference channels %g, %g, %g", ErrDuplicateChannel, x1, x2, x3)
	}

	a := (x3*(y2-y1) + x2*(y1-y3) + x1*(y3-y2)) / denom
	k := (x3*x3*(y1-y2) + x2*x2*(y3-y1) + x1*x1*(y2-y3)) / denom
	d := (x2*x3*(x2-x3)*y1 + x3*x1*(x3-x1)*y2 + x1*x2*(x1-x2)*y3) / denom

	return &Calibration{enabled: true, degree: 2, a: a, k: k, d: d}, nil
}

func checkPoints(points ...Point) error {
	for _, p := range points {
		if math.IsNaN(p.Channel) || math.IsInf(p.Channel, 0) ||
			math.IsNaN(p.Energy) || math.IsInf(p.Energy, 0) {
			return fmt.Errorf("%w: (%g, %g)", ErrNonFinitePoint, p.Channel, p.Energy)
		}
	}
	return nil
}

// Degree returns 1 for a linear fit, 2 for a quadratic fit.
func (c *Calibration) Degree() int {
	return c.degree
}

// Enabled reports whether the calibration is currently active.
func (c *Calibration) Enabled() bool {
	return c.enabled
}

// Enable re-activates the calibration, reusing the previously fitted
// coefficients.
func (c *Calibration) Enable() {
	c.enabled = true
}

// Disable deactivates the calibration without discarding the fit.
func (c *Calibration) Disable() {
	c.enabled = false
}

// Apply maps a single channel index to energy. The result is not
// rounded; use MapAxis for display values.
func (c *Calibration) Apply(channel float64) float64 {
	return c.a*channel*channel + c.k*channel + c.d
}

// MapAxis produces one energy value per channel index 0..n-1,
// rounded to the 2-decimal display precision.
func (c *Calibration) MapAxis(n int) []float64 {
	axis := make([]float64, n)
	for i := range axis {
		axis[i] = Round2(c.Apply(float64(i)))
	}
	return axis
}

// Round2 rounds a value to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
