package orchestrator

// Phase is the cycle state machine position.
type Phase int

const (
	Idle Phase = iota
	LoadingConfig
	RunningSync
	RunningMessages
	RunningReconciliation
	RunningSchemaUpdate
	RunningFollowUp
	PersistingState
	Sleeping
)

var phaseNames = [...]string{
	Idle:                  "idle",
	LoadingConfig:         "loading_config",
	RunningSync:           "running_sync",
	RunningMessages:       "running_messages",
	RunningReconciliation: "running_reconciliation",
	RunningSchemaUpdate:   "running_schema_update",
	RunningFollowUp:       "running_follow_up",
	PersistingState:       "persisting_state",
	Sleeping:              "sleeping",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}
