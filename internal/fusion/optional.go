package fusion

// Optional is a per-frame series that may be absent. Absence means the
// extractor could not run at all, not that individual frames failed.
type Optional struct {
	values []float64
	ok     bool
}

// Some wraps an available series
func Some(values []float64) Optional {
	return Optional{values: values, ok: true}
}

// None marks a signal as unavailable
func None() Optional {
	return Optional{}
}

// Get returns the series and whether it is available
func (o Optional) Get() ([]float64, bool) {
	return o.values, o.ok
}

// Available reports whether the series is present
func (o Optional) Available() bool {
	return o.ok
}

// Signal is a named per-frame series entering fusion
type Signal struct {
	Name   string
	Values Optional
}
