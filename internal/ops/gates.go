package ops

import "fmt"

// Gate is the operation a Command applies. Value gates compare with ==.
type Gate interface {
	String() string
}

type (
	AllocateGate   struct{}
	DeallocateGate struct{}
	MeasureGate    struct{}
	FlushGate      struct{}
	XGate          struct{}
	YGate          struct{}
	ZGate          struct{}
	HGate          struct{}
	SGate          struct{}
	SdagGate       struct{}
	TGate          struct{}
	TdagGate       struct{}
	SwapGate       struct{}
)

func (AllocateGate) String() string   { return "Allocate" }
func (DeallocateGate) String() string { return "Deallocate" }
func (MeasureGate) String() string    { return "Measure" }
func (FlushGate) String() string      { return "Flush" }
func (XGate) String() string          { return "X" }
func (YGate) String() string          { return "Y" }
func (ZGate) String() string          { return "Z" }
func (HGate) String() string          { return "H" }
func (SGate) String() string          { return "S" }
func (SdagGate) String() string       { return "Sdag" }
func (TGate) String() string          { return "T" }
func (TdagGate) String() string       { return "Tdag" }
func (SwapGate) String() string       { return "Swap" }

// Rotation gates.
type (
	Rx struct{ Angle float64 }
	Ry struct{ Angle float64 }
	Rz struct{ Angle float64 }
	Ph struct{ Angle float64 }
)

func (g Rx) String() string { return fmt.Sprintf("Rx(%g)", g.Angle) }
func (g Ry) String() string { return fmt.Sprintf("Ry(%g)", g.Angle) }
func (g Rz) String() string { return fmt.Sprintf("Rz(%g)", g.Angle) }
func (g Ph) String() string { return fmt.Sprintf("Ph(%g)", g.Angle) }

var (
	Allocate   Gate = AllocateGate{}
	Deallocate Gate = DeallocateGate{}
	Measure    Gate = MeasureGate{}
	Flush      Gate = FlushGate{}
	X          Gate = XGate{}
	NOT             = X
	Y          Gate = YGate{}
	Z          Gate = ZGate{}
	H          Gate = HGate{}
	S          Gate = SGate{}
	Sdag       Gate = SdagGate{}
	T          Gate = TGate{}
	Tdag       Gate = TdagGate{}
	Swap       Gate = SwapGate{}
)

// IsBookkeeping reports whether g only manages qubit lifetime or pipeline
// flow (allocate, deallocate, flush).
func IsBookkeeping(g Gate) bool {
	switch g.(type) {
	case AllocateGate, DeallocateGate, FlushGate:
		return true
	}
	return false
}
