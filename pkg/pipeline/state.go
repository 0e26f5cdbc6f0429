package pipeline

// State is a step of the enrichment state machine
type State int

const (
	Idle State = iota
	StageARunning
	StageAComplete
	EnrichmentFetching
	StageBRunning
	Complete
	Failed
)

var stateNames = map[State]string{
	Idle:               "idle",
	StageARunning:      "stage_a_running",
	StageAComplete:     "stage_a_complete",
	EnrichmentFetching: "enrichment_fetching",
	StageBRunning:      "stage_b_running",
	Complete:           "complete",
	Failed:             "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText lets traces serialize as readable names
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// allowed lists the legal successors of each state
var allowed = map[State][]State{
	Idle:               {StageARunning},
	StageARunning:      {StageAComplete, Failed},
	StageAComplete:     {EnrichmentFetching},
	EnrichmentFetching: {StageBRunning},
	StageBRunning:      {Complete, Failed},
}

// CanTransition reports whether from -> to is a legal step
func CanTransition(from, to State) bool {
	for _, next := range allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}
