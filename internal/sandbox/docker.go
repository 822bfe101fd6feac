package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

const (
	defaultImage     = "node:20-alpine"
	sandboxUser      = "1000"
	scriptDir        = "/tmp"
	scriptEnv        = "AURACODE_SCRIPT"
	memoryLimitBytes = 256 * 1024 * 1024 // 256MB
	cpuQuota         = 50000             // 0.5 CPU
	pidsLimit        = 64
	cleanupTimeout   = 10 * time.Second
	maxOutputBytes   = 64 * 1024
)

// DockerRunner runs each script in a fresh, network-less container that is
// removed afterwards.
type DockerRunner struct {
	cli     *client.Client
	image   string
	runtime string // Container runtime: "" = default (runc), "runsc" = gVisor
}

// NewDockerRunner creates a runner using the Docker daemon from the environment.
func NewDockerRunner(image, runtime string) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	if image == "" {
		image = defaultImage
	}
	if runtime != "" {
		slog.Info("Sandbox docker client initialized", "image", image, "runtime", runtime)
	} else {
		slog.Info("Sandbox docker client initialized", "image", image, "runtime", "default")
	}
	return &DockerRunner{cli: cli, image: image, runtime: runtime}, nil
}

// Ping checks the daemon is reachable.
func (r *DockerRunner) Ping(ctx context.Context) error {
	if _, err := r.cli.Ping(ctx); err != nil {
		return fmt.Errorf("ping docker: %w", err)
	}
	return nil
}

// Close releases the Docker client.
func (r *DockerRunner) Close() error {
	return r.cli.Close()
}

// Run executes script and collects its output. A script that outlives
// limit is killed and ErrTimeout returned.
func (r *DockerRunner) Run(ctx context.Context, lang Language, script string, limit time.Duration) (*Output, error) {
	path := scriptDir + "/main" + lang.extension()
	shell := fmt.Sprintf(`printf '%%s' "$%s" > %s && exec %s`, scriptEnv, path, shellJoin(lang.command(path)))

	cfg := &container.Config{
		Image:           r.image,
		User:            sandboxUser,
		WorkingDir:      scriptDir,
		Cmd:             []string{"sh", "-c", shell},
		Env:             []string{scriptEnv + "=" + script},
		NetworkDisabled: true,
	}
	hostCfg := &container.HostConfig{
		Runtime:     r.runtime,
		NetworkMode: container.NetworkMode("none"),
		Resources: container.Resources{
			Memory:    memoryLimitBytes,
			CPUQuota:  cpuQuota,
			PidsLimit: ptr(int64(pidsLimit)),
		},
	}

	resp, err := r.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("create sandbox container: %w", err)
	}
	defer r.remove(resp.ID)

	start := time.Now()
	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("start sandbox container %s: %w", resp.ID, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	var exitCode int64
	statusCh, errCh := r.cli.ContainerWait(runCtx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("wait sandbox container %s: %w", resp.ID, err)
	case st := <-statusCh:
		exitCode = st.StatusCode
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrTimeout
	}
	elapsed := time.Since(start)

	logs, err := r.cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, fmt.Errorf("read sandbox logs %s: %w", resp.ID, err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return nil, fmt.Errorf("demux sandbox logs %s: %w", resp.ID, err)
	}

	return &Output{
		Stdout:   truncate(stdout.String()),
		Stderr:   truncate(stderr.String()),
		ExitCode: int(exitCode),
		Duration: elapsed,
	}, nil
}

// remove force-deletes a container on a fresh context so cleanup survives
// request cancellation.
func (r *DockerRunner) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := r.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		if errdefs.IsNotFound(err) {
			slog.Debug("Sandbox container already removed", "container_id", id)
			return
		}
		slog.Warn("Failed to remove sandbox container", "container_id", id, "error", err)
	}
}

func truncate(s string) string {
	if len(s) > maxOutputBytes {
		return s[:maxOutputBytes]
	}
	return s
}

func shellJoin(args []string) string {
	var b bytes.Buffer
	for i, a := range args {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(a)
	}
	return b.String()
}

func ptr[T any](v T) *T {
	return &v
}
