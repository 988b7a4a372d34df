package docker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

type Stats struct {
	CPUPercent  float64
	MemoryUsage uint64
	MemoryLimit uint64
	Pids        uint64
}

// Stats takes a single resource sample of the identity's container. It
// returns nil, nil when the container is missing or not running.
func (m *Manager) Stats(ctx context.Context, id string) (*Stats, error) {
	name := m.ContainerName(id)
	if !m.IsRunning(ctx, id) {
		return nil, nil
	}

	resp, err := m.engine.ContainerStatsOneShot(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("container stats: %w", err)
	}
	defer resp.Body.Close()

	var raw container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}

	return &Stats{
		CPUPercent:  CPUPercent(&raw),
		MemoryUsage: raw.MemoryStats.Usage,
		MemoryLimit: raw.MemoryStats.Limit,
		Pids:        raw.PidsStats.Current,
	}, nil
}

// CPUPercent derives CPU usage from a stats sample. A single-shot sample
// can race the engine, so non-positive deltas read as 0.
func CPUPercent(s *container.StatsResponse) float64 {
	cpuDelta := float64(s.CPUStats.CPUUsage.TotalUsage) - float64(s.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(s.CPUStats.SystemUsage) - float64(s.PreCPUStats.SystemUsage)
	if systemDelta <= 0 || cpuDelta < 0 {
		return 0
	}

	online := float64(s.CPUStats.OnlineCPUs)
	if online == 0 {
		online = float64(len(s.CPUStats.CPUUsage.PercpuUsage))
	}
	if online == 0 {
		online = 1
	}
	return cpuDelta / systemDelta * online * 100
}
