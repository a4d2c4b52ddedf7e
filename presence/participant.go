package presence

import (
	"sort"
	"time"

	"github.com/samber/lo"
)

// Participant is one tracked chat identity.
type Participant struct {
	Pseudo    string `json:"pseudo"`
	Connected bool   `json:"connected"`
	// InitialCount is the archived baseline from prior periods.
	InitialCount int `json:"initial_count"`
	// PendingCount accrues in the current period until the next archive.
	PendingCount int `json:"pending_count"`
	// LastInteraction is zero while disconnected.
	LastInteraction time.Time `json:"last_interaction"`
}

// Total is the running tomato count.
func (p Participant) Total() int {
	return p.InitialCount + p.PendingCount
}

func (p *Participant) disconnect() {
	p.Connected = false
	p.LastInteraction = time.Time{}
}

// Snapshot is a value copy of the registry keyed by pseudo.
type Snapshot map[string]Participant

// Clone returns an independent copy of s.
func (s Snapshot) Clone() Snapshot {
	return Snapshot(lo.MapValues(s, func(p Participant, _ string) Participant { return p }))
}

// Archived folds every pending count into the initial count and disconnects everyone.
// s is left untouched.
func (s Snapshot) Archived() Snapshot {
	return Snapshot(lo.MapValues(s, func(p Participant, _ string) Participant {
		p.InitialCount += p.PendingCount
		p.PendingCount = 0
		p.disconnect()
		return p
	}))
}

// Disconnected returns a copy of s with every participant disconnected, counters intact.
func (s Snapshot) Disconnected() Snapshot {
	return Snapshot(lo.MapValues(s, func(p Participant, _ string) Participant {
		p.disconnect()
		return p
	}))
}

// Ranked orders participants by total descending, then pseudo ascending.
func (s Snapshot) Ranked() []Participant {
	ranked := lo.Values(s)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Total() != ranked[j].Total() {
			return ranked[i].Total() > ranked[j].Total()
		}
		return ranked[i].Pseudo < ranked[j].Pseudo
	})
	return ranked
}

// ConnectedCount is the number of connected participants.
func (s Snapshot) ConnectedCount() int {
	return lo.CountBy(lo.Values(s), func(p Participant) bool { return p.Connected })
}

// ConnectedPseudos lists connected participants in pseudo order.
func (s Snapshot) ConnectedPseudos() []string {
	names := lo.FilterMap(lo.Values(s), func(p Participant, _ int) (string, bool) {
		return p.Pseudo, p.Connected
	})
	sort.Strings(names)
	return names
}
