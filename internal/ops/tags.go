package ops

import "fmt"

// Tag is an annotation carried by a Command. Stages append tags; they never
// mutate existing ones.
type Tag interface {
	Equal(other Tag) bool
	String() string
}

// LogicalQubitIDTag records the logical id of a measured qubit after a mapper
// rewrote it to a physical id.
type LogicalQubitIDTag struct {
	ID int
}

func (t LogicalQubitIDTag) Equal(other Tag) bool {
	o, ok := other.(LogicalQubitIDTag)
	return ok && o.ID == t.ID
}

func (t LogicalQubitIDTag) String() string { return fmt.Sprintf("LogicalQubitIDTag(%d)", t.ID) }

// DecomposedTag marks commands produced by a decomposition rule.
type DecomposedTag struct {
	Rule string
}

func (t DecomposedTag) Equal(other Tag) bool {
	o, ok := other.(DecomposedTag)
	return ok && o.Rule == t.Rule
}

func (t DecomposedTag) String() string { return "DecomposedTag(" + t.Rule + ")" }

// HasTag reports whether tags contains a tag equal to t.
func HasTag(tags []Tag, t Tag) bool {
	for _, tag := range tags {
		if tag.Equal(t) {
			return true
		}
	}
	return false
}

// LogicalID returns the id of the last LogicalQubitIDTag in tags.
func LogicalID(tags []Tag) (int, bool) {
	id, found := 0, false
	for _, tag := range tags {
		if lt, ok := tag.(LogicalQubitIDTag); ok {
			id, found = lt.ID, true
		}
	}
	return id, found
}
