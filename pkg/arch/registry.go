package arch

import "fmt"

var registry = map[string]func() Frontend{}

// Register makes a Frontend constructor available under name for callers
// that select an architecture by string (e.g. a CLI flag), mirroring the
// original's small set of compile-time-selectable CPU front-ends.
func Register(name string, ctor func() Frontend) {
	registry[name] = ctor
}

// ErrUnsupportedArchitecture is returned by New when name was never
// registered.
type ErrUnsupportedArchitecture struct {
	Name string
}

func (e *ErrUnsupportedArchitecture) Error() string {
	return fmt.Sprintf("arch: unsupported architecture %q", e.Name)
}

// New constructs a fresh Frontend for name, or an
// *ErrUnsupportedArchitecture if name was never registered via Register.
func New(name string) (Frontend, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, &ErrUnsupportedArchitecture{Name: name}
	}
	return ctor(), nil
}
