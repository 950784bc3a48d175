package domain

// RunState is the side-channel state carried between assistant runs.
// Empty strings stand for "none".
type RunState struct {
	ThreadID                string `json:"threadId"`
	AwaitingMapConfirmation string `json:"awaitingMapConfirmation"`
	LastMapLink             string `json:"lastMapLink"`
	IncludeMapLink          bool   `json:"includeMapLink"`
}

// AwaitingConfirmation reports whether a map link offer is pending.
func (s RunState) AwaitingConfirmation() bool {
	return s.AwaitingMapConfirmation != ""
}
