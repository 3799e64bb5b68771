package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/pseudomuto/hermes/pkg/config"
	"github.com/pseudomuto/hermes/pkg/consts"
	"github.com/urfave/cli/v3"
)

// initCmd creates the init command which writes a default hermes.toml and
// an empty migrations directory.
//
// Example usage:
//
//	# Initialize the working directory
//	hermes init
//
//	# Initialize another folder
//	hermes init ./analytics
func initCmd() *cli.Command {
	return &cli.Command{
		Name:      "init",
		Usage:     "Write a default hermes.toml and migrations directory",
		ArgsUsage: "[folder]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			dir := "."
			if cmd.Args().Len() > 0 {
				dir = cmd.Args().First()
			}

			path, err := initProject(dir)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.Root().Writer, "%s %s\n", success("Created"), path)
			return nil
		},
	}
}

func initProject(dir string) (string, error) {
	if err := os.MkdirAll(dir, consts.ModeDir); err != nil {
		return "", errors.Wrapf(err, "failed to create %s", dir)
	}

	for _, name := range []string{consts.ConfigFileTOML, consts.ConfigFileYAML} {
		existing := filepath.Join(dir, name)
		if _, err := os.Stat(existing); err == nil {
			return "", errors.Errorf("%s already exists", existing)
		}
	}

	cfg := config.Defaults()
	if err := os.MkdirAll(filepath.Join(dir, cfg.MigrationsLocation), consts.ModeDir); err != nil {
		return "", errors.Wrap(err, "failed to create migrations directory")
	}

	path := filepath.Join(dir, consts.ConfigFileTOML)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, consts.ModeFile)
	if err != nil {
		return "", errors.Wrapf(err, "failed to create %s", path)
	}

	if err := cfg.Encode(f, config.TOML); err != nil {
		_ = f.Close()
		return "", err
	}

	return path, f.Close()
}
