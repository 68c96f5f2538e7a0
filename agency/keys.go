package agency

const (
	PlanVersionKey    = "Plan/Version"
	CurrentVersionKey = "Current/Version"
	PlanServersKey    = "Plan/Servers"

	// ShutdownKey holds "true" when the cluster asks every server to stop
	ShutdownKey = "Shutdown"
)

// ServerStateKey is where a server reports its liveness and applied versions
func ServerStateKey(serverID string) string {
	return "Sync/ServerStates/" + serverID
}

// ServerCurrentKey is where a worker records the plan version it has applied
func ServerCurrentKey(serverID string) string {
	return "Current/Servers/" + serverID
}
