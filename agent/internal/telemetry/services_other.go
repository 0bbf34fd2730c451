//go:build !windows

package telemetry

import (
	"context"
	"errors"

	"github.com/pilot-net/remote-agent/pkg/types"
)

func listServices(ctx context.Context, limit int) ([]types.ServiceInfo, error) {
	return nil, errors.New("service listing is only supported on windows")
}
