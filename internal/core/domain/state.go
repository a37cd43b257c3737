package domain

// MonitorState is the monitor's machine state. Exactly one monitor owns one
// state value at a time; only the orchestrator mutates it.
type MonitorState string

const (
	StateInit          MonitorState = "init"
	StateConnecting    MonitorState = "connecting"
	StateSubscribed    MonitorState = "subscribed"
	StatePolling       MonitorState = "polling"
	StateDegradedRetry MonitorState = "degraded_retry"
	StateStopped       MonitorState = "stopped"
	StateFailed        MonitorState = "failed"
)

// Terminal reports whether the state machine can leave this state.
func (s MonitorState) Terminal() bool {
	return s == StateStopped || s == StateFailed
}
