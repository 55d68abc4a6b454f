package domain

import "fmt"

type ObjectKind string

const (
	KindTable   ObjectKind = "TABLE"
	KindView    ObjectKind = "VIEW"
	KindTrigger ObjectKind = "TRIGGER"
	KindRoutine ObjectKind = "ROUTINE"
)

type RoutineKind string

const (
	RoutineProcedure RoutineKind = "PROCEDURE"
	RoutineFunction  RoutineKind = "FUNCTION"
)

// SchemaObject references one live schema object. Trigger fields are only
// set for KindTrigger and Routine only for KindRoutine.
type SchemaObject struct {
	Name    string
	Kind    ObjectKind
	Routine RoutineKind

	Timing    string
	Event     string
	Table     string
	Statement string
}

// Inventory holds every object of a schema in enumeration order.
type Inventory struct {
	Tables   []SchemaObject
	Views    []SchemaObject
	Triggers []SchemaObject
	Routines []SchemaObject
}

type TableMode string

const (
	ModeFull          TableMode = "full"
	ModeStructureOnly TableMode = "structure_only"
	ModeDataOnly      TableMode = "data_only"
)

func ParseTableMode(s string) (TableMode, error) {
	switch TableMode(s) {
	case "", ModeFull:
		return ModeFull, nil
	case ModeStructureOnly:
		return ModeStructureOnly, nil
	case ModeDataOnly:
		return ModeDataOnly, nil
	}
	return "", fmt.Errorf("unknown table mode %q", s)
}

func (m TableMode) IncludesStructure() bool {
	return m != ModeDataOnly
}

func (m TableMode) IncludesData() bool {
	return m != ModeStructureOnly
}
