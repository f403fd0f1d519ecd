package segments

import "fmt"

// Range is a half-open span on the timeline, in seconds.
type Range struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Length returns End - Start.
func (r Range) Length() float64 {
	return r.End - r.Start
}

// Validate checks that the range is strictly ordered and lies inside [0, duration]
func (r Range) Validate(duration float64) error {
	if r.Start < 0 {
		return fmt.Errorf("start cannot be negative")
	}

	if r.End <= r.Start {
		return fmt.Errorf("end must be greater than start")
	}

	if r.End > duration {
		return fmt.Errorf("end %.3f exceeds duration %.3f", r.End, duration)
	}

	return nil
}

func (r Range) String() string {
	return fmt.Sprintf("%.3f-%.3f", r.Start, r.End)
}
