package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
)

// InitNetworks creates the configured tier networks that do not exist yet.
// Built-in network modes are never created.
func (m *Manager) InitNetworks(ctx context.Context) error {
	seen := make(map[string]bool)
	for _, name := range []string{m.cfg.Docker.Network.Admin, m.cfg.Docker.Network.Trusted, m.cfg.Docker.Network.Normal} {
		if name == "" || builtinNetwork(name) || seen[name] {
			continue
		}
		seen[name] = true

		_, err := m.engine.NetworkInspect(ctx, name, network.InspectOptions{})
		if err == nil {
			continue
		}
		if !client.IsErrNotFound(err) {
			return fmt.Errorf("network inspect %s: %w", name, err)
		}

		if _, err := m.engine.NetworkCreate(ctx, name, network.CreateOptions{
			Driver: "bridge",
			Labels: map[string]string{labelManaged: "true"},
		}); err != nil {
			return fmt.Errorf("network create %s: %w", name, err)
		}
		m.logger.Info("created network", "network", name)
	}
	return nil
}

func builtinNetwork(name string) bool {
	switch name {
	case "bridge", "host", "none", "default":
		return true
	}
	return false
}
