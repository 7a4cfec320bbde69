// ABOUTME: Result and ErrorEntry types accumulated during a sync pass
// ABOUTME: Structured, never-throwing report of per-agent outcomes

package sync

// Result is the outcome of one sync pass against a gateway. It is
// created at the start of a run, mutated only by the Syncer, and
// returned once; expected failures become Errors entries instead of
// returned errors.
type Result struct {
	GatewayID     string       `json:"gateway_id"`
	IncludeMain   bool         `json:"include_main"`
	ResetSessions bool         `json:"reset_sessions"`
	AgentsUpdated int          `json:"agents_updated"`
	AgentsSkipped int          `json:"agents_skipped"`
	MainUpdated   bool         `json:"main_updated"`
	Errors        []ErrorEntry `json:"errors"`
}

// ErrorEntry describes one failure or warning encountered during a sync
// pass. Entries are append-only.
type ErrorEntry struct {
	AgentID   string `json:"agent_id,omitempty"`
	AgentName string `json:"agent_name,omitempty"`
	BoardID   string `json:"board_id,omitempty"`
	Message   string `json:"message"`
}

func (r *Result) appendError(entry ErrorEntry) {
	r.Errors = append(r.Errors, entry)
}
