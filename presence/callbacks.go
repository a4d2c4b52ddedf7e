package presence

// Callbacks receives registry transitions. Methods run synchronously while the registry
// lock is held, possibly on a background goroutine, and must not call back into the
// Registry; the snapshot argument is the post-mutation state.
type Callbacks interface {
	OnConnected(pseudo string, snap Snapshot)
	OnDisconnected(pseudo string, snap Snapshot)
	OnScoreUpdate(snap Snapshot)
}

// NopCallbacks ignores every transition. Embed it to implement only some methods.
type NopCallbacks struct{}

func (NopCallbacks) OnConnected(string, Snapshot)    {}
func (NopCallbacks) OnDisconnected(string, Snapshot) {}
func (NopCallbacks) OnScoreUpdate(Snapshot)          {}

// Saver persists archived snapshots. isBackup selects the sibling backup file.
type Saver interface {
	Save(snap Snapshot, isBackup bool) error
}
