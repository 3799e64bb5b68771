package docker

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/go-connections/nat"
	"github.com/pkg/errors"
	"github.com/pseudomuto/hermes/pkg/consts"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// httpPort is the port the readiness check is made against.
	httpPort = nat.Port("8123/tcp")

	// configMountPath is where Options.ConfigDir is mounted.
	configMountPath = "/etc/clickhouse-server/config.d"

	startupDeadline = 5 * time.Minute
)

type (
	// Options configures a disposable ClickHouse server.
	Options struct {
		// Version is the ClickHouse engine version to run (default: consts.DefaultClickHouseVersion).
		// "latest" is accepted.
		Version string

		// ConfigDir is an optional config.d directory to mount. Relative paths
		// are resolved against the working directory.
		ConfigDir string
	}

	// Container manages a throwaway ClickHouse server used for round-trip runs.
	Container struct {
		options   Options
		container *clickhouse.ClickHouseContainer
	}
)

// New creates a container that has not been started yet.
//
// Example:
//
//	container := docker.New(docker.Options{Version: "25.7"})
//	if err := container.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer container.Stop(ctx)
func New(opts Options) *Container {
	return &Container{options: opts}
}

// Provision creates and starts a container in one call.
//
// Example:
//
//	container, err := docker.Provision(ctx, docker.Options{Version: "24.8"})
//	if err != nil {
//		return err
//	}
//	defer container.Stop(ctx)
//
//	dsn, err := container.DSN(ctx)
func Provision(ctx context.Context, opts Options) (*Container, error) {
	c := New(opts)
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Version returns the engine version the container runs.
func (c *Container) Version() string {
	if c.options.Version == "" {
		return consts.DefaultClickHouseVersion
	}
	return c.options.Version
}

// Image returns the docker image used for the container.
func (c *Container) Image() string {
	return fmt.Sprintf("clickhouse/clickhouse-server:%s-alpine", c.Version())
}

// Start starts the ClickHouse server and waits for it to answer over HTTP.
func (c *Container) Start(ctx context.Context) error {
	if c.container != nil {
		return errors.New("container is already running")
	}

	customizers, err := c.customizers()
	if err != nil {
		return err
	}

	ch, err := clickhouse.Run(ctx, c.Image(), customizers...)
	if err != nil {
		return errors.Wrapf(err, "failed to start ClickHouse %s container", c.Version())
	}

	c.container = ch
	return nil
}

func (c *Container) customizers() ([]testcontainers.ContainerCustomizer, error) {
	customizers := []testcontainers.ContainerCustomizer{
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		testcontainers.WithEnv(map[string]string{"CLICKHOUSE_DEFAULT_ACCESS_MANAGEMENT": "1"}),
		testcontainers.WithWaitStrategyAndDeadline(
			startupDeadline,
			wait.
				NewHTTPStrategy("/").
				WithPort(httpPort).
				WithStatusCodeMatcher(func(status int) bool {
					return status == 200
				}),
		),
	}

	if c.options.ConfigDir == "" {
		return customizers, nil
	}

	configDir, err := filepath.Abs(c.options.ConfigDir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get absolute path for config dir: %s", c.options.ConfigDir)
	}

	return append(
		customizers,
		testcontainers.WithHostConfigModifier(func(hostConfig *container.HostConfig) {
			hostConfig.Mounts = []mount.Mount{
				{
					Type:     mount.TypeBind,
					Source:   configDir,
					Target:   configMountPath,
					ReadOnly: true,
				},
			}
		}),
	), nil
}

// Stop terminates and removes the container. Stopping a container that is
// not running is a no-op.
func (c *Container) Stop(ctx context.Context) error {
	if c.container == nil {
		return nil
	}

	err := c.container.Terminate(ctx)
	c.container = nil

	if err != nil {
		return errors.Wrap(err, "failed to stop ClickHouse container")
	}

	return nil
}

// DSN returns a clickhouse:// URL for the native protocol port.
func (c *Container) DSN(ctx context.Context) (string, error) {
	if c.container == nil {
		return "", errors.New("container is not running")
	}

	dsn, err := c.container.ConnectionString(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to get connection string")
	}

	return dsn, nil
}

// IsRunning returns true if the container is currently running.
func (c *Container) IsRunning() bool {
	return c.container != nil
}
