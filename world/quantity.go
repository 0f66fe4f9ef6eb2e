package world

import "fmt"

// Quantity identifies one simulated scalar carried by every chunk.
type Quantity uint8

const (
	Food Quantity = iota
	Water
	Trails

	NumQuantities
)

// Quantities lists every quantity in declaration order.
var Quantities = [NumQuantities]Quantity{Food, Water, Trails}

func (q Quantity) String() string {
	switch q {
	case Food:
		return "food"
	case Water:
		return "water"
	case Trails:
		return "trails"
	}
	return fmt.Sprintf("quantity(%d)", uint8(q))
}

// Valid reports whether q is a known quantity.
func (q Quantity) Valid() bool { return q < NumQuantities }

// ParseQuantity maps a config name to a Quantity.
func ParseQuantity(s string) (Quantity, error) {
	for _, q := range Quantities {
		if q.String() == s {
			return q, nil
		}
	}
	return 0, fmt.Errorf("unknown quantity %q", s)
}

// State is a chunk's simulation fidelity.
type State uint8

const (
	// Dormant chunks are frozen: their fields are kept but not advanced.
	Dormant State = iota
	// Active chunks get diffusion and decay.
	Active
	// Hyper chunks additionally run growth.
	Hyper
)

func (s State) String() string {
	switch s {
	case Dormant:
		return "dormant"
	case Active:
		return "active"
	case Hyper:
		return "hyper"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}
