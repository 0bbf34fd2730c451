//go:build windows

package telemetry

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/winservices"

	"github.com/pilot-net/remote-agent/pkg/types"
)

// listServices reads at most limit services from the service control
// manager. Services that cannot be opened are reported with state UNKNOWN.
func listServices(ctx context.Context, limit int) ([]types.ServiceInfo, error) {
	all, err := winservices.ListServices()
	if err != nil {
		return nil, fmt.Errorf("enumerating services: %w", err)
	}
	if len(all) > limit {
		all = all[:limit]
	}

	services := make([]types.ServiceInfo, 0, len(all))
	for _, entry := range all {
		if err := ctx.Err(); err != nil {
			return services, err
		}

		srv, err := winservices.NewService(entry.Name)
		if err != nil {
			services = append(services, serviceInfo(entry.Name, "", 0))
			continue
		}
		if err := srv.GetServiceDetailWithContext(ctx); err != nil {
			services = append(services, serviceInfo(entry.Name, "", 0))
			continue
		}
		services = append(services, serviceInfo(srv.Name, srv.Config.DisplayName, uint32(srv.Status.State)))
	}
	return services, nil
}
