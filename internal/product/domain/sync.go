package domain

// SyncState describes how the external twin ended up after a catalog mutation.
type SyncState string

const (
	SyncStateSynced          SyncState = "SYNCED"
	SyncStatePriceChanged    SyncState = "PRICE_CHANGED"
	SyncStateExternalMissing SyncState = "EXTERNAL_MISSING"
	SyncStateArchived        SyncState = "ARCHIVED"
)

// SyncReport is returned with every successful mutation. Degraded is set when
// a non-critical processor call failed and the local change was kept anyway.
type SyncReport struct {
	State    SyncState `json:"state"`
	Degraded bool      `json:"degraded"`
	Reason   string    `json:"reason,omitempty"`
}

func (r *SyncReport) Degrade(reason string) {
	r.Degraded = true
	if r.Reason == "" {
		r.Reason = reason
	}
}
