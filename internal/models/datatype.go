package models

// DataType is the refinement strategy selected by a term's declared type tag.
type DataType int

const (
	// Passthrough keeps the raw value untouched.
	Passthrough DataType = iota
	// Numeric converts a quantity into the configured unit.
	Numeric
	// Duration parses a duration and expresses it in the configured unit.
	Duration
)

// ParseDataType maps a declared type tag onto its strategy. Unknown tags
// (including "text" and the empty string) are passthrough.
func ParseDataType(tag string) DataType {
	switch tag {
	case "numeric":
		return Numeric
	case "duration":
		return Duration
	default:
		return Passthrough
	}
}

func (t DataType) String() string {
	switch t {
	case Numeric:
		return "numeric"
	case Duration:
		return "duration"
	default:
		return "passthrough"
	}
}
