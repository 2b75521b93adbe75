package storekit

// Layer wraps an accessor and returns a new one with added behavior.
// A layer must return an accessor whose Info is the inner accessor's Info.
type Layer interface {
	Layer(inner Accessor) Accessor
}

// LayerFunc adapts a function to the Layer interface.
type LayerFunc func(inner Accessor) Accessor

// Layer calls f(inner).
func (f LayerFunc) Layer(inner Accessor) Accessor {
	return f(inner)
}

// Apply wraps acc with layers in order, so the last layer is outermost.
func Apply(acc Accessor, layers ...Layer) Accessor {
	for _, l := range layers {
		if l == nil {
			continue
		}
		acc = l.Layer(acc)
	}
	return acc
}

// Unwrapper is implemented by layered accessors.
type Unwrapper interface {
	Unwrap() Accessor
}

// Innermost follows Unwrap until it reaches the driver.
func Innermost(acc Accessor) Accessor {
	for {
		u, ok := acc.(Unwrapper)
		if !ok {
			return acc
		}
		acc = u.Unwrap()
	}
}
