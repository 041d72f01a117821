package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// LabelManaged marks every container started through this package's callers,
// so leftovers can be found again after the owning process died.
const LabelManaged = "org.localstack-ci.managed"

func managedFilter() filters.Args {
	return filters.NewArgs(filters.Arg("label", LabelManaged+"=true"))
}

// RemoveManaged force-removes every managed backend container on the daemon
// DOCKER_HOST points at and returns the removed container IDs.
func RemoveManaged(ctx context.Context) ([]string, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("connect to docker: %w", err)
	}
	defer cli.Close()

	list, err := cli.ContainerList(ctx, container.ListOptions{All: true, Filters: managedFilter()})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	removed := make([]string, 0, len(list))
	for _, c := range list {
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			return removed, fmt.Errorf("remove container %s: %w", shortID(c.ID), err)
		}
		removed = append(removed, c.ID)
	}
	return removed, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
