package invoker

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/sirupsen/logrus"
)

// DockerExecutor runs each sandbox as a one-shot Docker container: create,
// start, wait, collect output, remove. Nothing is reused between runs.
type DockerExecutor struct {
	cli *client.Client
}

// NewDockerExecutor connects to the Docker daemon using the standard
// environment configuration (DOCKER_HOST and friends) with API version
// negotiation.
func NewDockerExecutor() (*DockerExecutor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("connecting to docker daemon: %w", err)
	}
	return &DockerExecutor{cli: cli}, nil
}

// Ping verifies the Docker daemon is reachable.
func (d *DockerExecutor) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon not reachable: %w", err)
	}
	return nil
}

// Close releases the underlying client connection.
func (d *DockerExecutor) Close() error {
	return d.cli.Close()
}

// Run executes one sandbox container to completion and returns its combined
// output and exit code. The sandbox image is pulled when missing locally.
func (d *DockerExecutor) Run(ctx context.Context, spec ExecutionSpec) (*Output, error) {
	cfg := &container.Config{
		Image: spec.Image,
		Cmd:   commandFor(spec),
		Env:   envSlice(spec.Env),
	}

	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:        mount.TypeBind,
			Source:      spec.CodeDir,
			Target:      TaskDir,
			ReadOnly:    true,
			Consistency: mount.ConsistencyDelegated,
		}},
	}
	if spec.LayerDir != "" {
		hostCfg.Mounts = append(hostCfg.Mounts, mount.Mount{
			Type:        mount.TypeBind,
			Source:      spec.LayerDir,
			Target:      LayerDir,
			ReadOnly:    true,
			Consistency: mount.ConsistencyDelegated,
		})
	}
	if spec.Network != "" {
		hostCfg.NetworkMode = container.NetworkMode(spec.Network)
	}

	created, err := d.createWithPull(ctx, cfg, hostCfg)
	if err != nil {
		return nil, err
	}
	defer d.remove(created.ID)

	if err := d.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("starting sandbox container: %w", err)
	}

	statusCh, errCh := d.cli.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	var exitCode int
	select {
	case err := <-errCh:
		return nil, fmt.Errorf("waiting for sandbox container: %w", err)
	case status := <-statusCh:
		if status.Error != nil {
			return nil, fmt.Errorf("sandbox container wait: %s", status.Error.Message)
		}
		exitCode = int(status.StatusCode)
	}

	logs, err := d.cli.ContainerLogs(ctx, created.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("reading sandbox output: %w", err)
	}
	defer logs.Close()

	// Demultiplex both streams into one buffer so lines keep stream order,
	// matching what a caller attached to the container would have seen.
	var combined bytes.Buffer
	if _, err := stdcopy.StdCopy(&combined, &combined, logs); err != nil {
		return nil, fmt.Errorf("demultiplexing sandbox output: %w", err)
	}

	return &Output{Combined: combined.Bytes(), ExitCode: exitCode}, nil
}

// createWithPull creates the sandbox container, pulling the image once if
// the daemon does not have it yet.
func (d *DockerExecutor) createWithPull(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig) (container.CreateResponse, error) {
	created, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err == nil {
		return created, nil
	}
	if !errdefs.IsNotFound(err) {
		return created, fmt.Errorf("creating sandbox container: %w", err)
	}

	logrus.WithField("image", cfg.Image).Info("Pulling sandbox image")
	reader, err := d.cli.ImagePull(ctx, cfg.Image, image.PullOptions{})
	if err != nil {
		return created, fmt.Errorf("pulling image %s: %w", cfg.Image, err)
	}
	_, copyErr := io.Copy(io.Discard, reader)
	reader.Close()
	if copyErr != nil {
		return created, fmt.Errorf("pulling image %s: %w", cfg.Image, copyErr)
	}

	created, err = d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return created, fmt.Errorf("creating sandbox container: %w", err)
	}
	return created, nil
}

// remove deletes a finished sandbox container. Removal failures are logged,
// not surfaced: the invocation outcome is already decided by then.
func (d *DockerExecutor) remove(id string) {
	if err := d.cli.ContainerRemove(context.Background(), id, container.RemoveOptions{Force: true}); err != nil {
		logrus.WithFields(logrus.Fields{
			"container_id": id,
			"error":        err.Error(),
		}).Warn("Failed to remove sandbox container")
	}
}

// commandFor builds the container command: the handler reference and, when
// present, the serialized event as the sole positional argument.
func commandFor(spec ExecutionSpec) []string {
	cmd := []string{spec.Handler}
	if spec.Payload != "" {
		cmd = append(cmd, spec.Payload)
	}
	return cmd
}
