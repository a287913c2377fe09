// Package components defines the ECS components carried by every agent.
package components

import "fmt"

// Variant identifies which population an agent belongs to.
type Variant uint8

const (
	Celt   Variant = 1 // population 1
	Viking Variant = 2 // population 2
)

// Variants lists both populations in reporting order.
var Variants = [...]Variant{Celt, Viking}

func (v Variant) String() string {
	switch v {
	case Celt:
		return "Celt"
	case Viking:
		return "Viking"
	default:
		return fmt.Sprintf("Variant(%d)", uint8(v))
	}
}

// Index returns 0 for Celt and 1 for Viking, for per-population arrays.
func (v Variant) Index() int {
	return int(v) - 1
}

// MarshalCSV implements gocsv.TypeMarshaller.
func (v Variant) MarshalCSV() (string, error) {
	return v.String(), nil
}
