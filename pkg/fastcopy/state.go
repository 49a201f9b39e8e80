package fastcopy

// State is a step of the transfer state machine.
//
// Reads go Idle, ScratchAllocated, Fetched, [Decompressed], HandleOpen,
// ScratchReleased. Writes go Idle, ScratchAllocated, HandleOpen,
// [Compressed], Stored, ScratchReleased. The bracketed states only occur
// for targets ending in .gz. Any failure jumps to ScratchReleased.
type State int

const (
	StateIdle State = iota
	StateScratchAllocated
	StateFetched
	StateDecompressed
	StateHandleOpen
	StateCompressed
	StateStored
	StateScratchReleased
)

var stateNames = [...]string{
	StateIdle:             "Idle",
	StateScratchAllocated: "ScratchAllocated",
	StateFetched:          "Fetched",
	StateDecompressed:     "Decompressed",
	StateHandleOpen:       "HandleOpen",
	StateCompressed:       "Compressed",
	StateStored:           "Stored",
	StateScratchReleased:  "ScratchReleased",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// Terminal reports whether s ends an operation.
func (s State) Terminal() bool {
	return s == StateScratchReleased
}

// Direction is the way bytes flow in an operation.
type Direction string

const (
	DirectionRead  Direction = "read"
	DirectionWrite Direction = "write"
)
