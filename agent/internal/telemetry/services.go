package telemetry

import (
	"github.com/pilot-net/remote-agent/pkg/types"
)

// serviceStateNames follows the SCM SERVICE_STATUS codes.
var serviceStateNames = map[uint32]string{
	1: "STOPPED",
	2: "START_PENDING",
	3: "STOP_PENDING",
	4: "RUNNING",
	5: "CONTINUE_PENDING",
	6: "PAUSE_PENDING",
	7: "PAUSED",
}

// ServiceStateName names a service controller state code.
func ServiceStateName(state uint32) string {
	if name, ok := serviceStateNames[state]; ok {
		return name
	}
	return "UNKNOWN"
}

// serviceInfo builds the payload entry for one service. An empty display
// name falls back to the service name.
func serviceInfo(name, displayName string, state uint32) types.ServiceInfo {
	if displayName == "" {
		displayName = name
	}
	return types.ServiceInfo{
		Name:        name,
		DisplayName: displayName,
		State:       ServiceStateName(state),
	}
}
