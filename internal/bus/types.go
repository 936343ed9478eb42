package bus

// Type is one of the closed set of event types the daemon emits.
type Type string

const (
	DaemonStarted       Type = "daemon:started"
	DaemonStopping      Type = "daemon:stopping"
	DaemonStopped       Type = "daemon:stopped"
	DaemonHeartbeat     Type = "daemon:heartbeat"
	DaemonMemoryWarning Type = "daemon:memory-warning"

	TaskQueued    Type = "task:queued"
	TaskStarted   Type = "task:started"
	TaskCompleted Type = "task:completed"
	TaskFailed    Type = "task:failed"
	TaskExpired   Type = "task:expired"

	ScheduleTriggered Type = "schedule:triggered"
	ScheduleUpdated   Type = "schedule:updated"

	WatcherChange Type = "watcher:change"
	WatcherError  Type = "watcher:error"

	ScanStarted   Type = "scan:started"
	ScanCompleted Type = "scan:completed"

	HealthUpdated Type = "health:updated"

	// Any is a pseudo-type used to subscribe to every event.
	Any Type = "*"
)

// Event is a single typed notification travelling over the bus.
type Event struct {
	Type      Type
	Timestamp int64 // unix nanos, set by Bus.Emit
	Data      map[string]any
}
