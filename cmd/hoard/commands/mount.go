// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/hoardlabs/hoard/cmd/hoard/cli"
	"github.com/hoardlabs/hoard/lib/vault"
	"github.com/hoardlabs/hoard/lib/vault/fuse"
)

type mountParams struct {
	Snapshot   string `json:"snapshot"    flag:"snapshot"    desc:"snapshot database path"`
	AllowOther bool   `json:"allow_other" flag:"allow-other" desc:"allow other users to read the mount (requires user_allow_other in /etc/fuse.conf)"`
}

func mountCommand() *cli.Command {
	var params mountParams

	return &cli.Command{
		Name:    "mount",
		Summary: "Mount a snapshot as a read-only filesystem",
		Usage:   "hoard mount --snapshot <path> <mountpoint> [flags]",
		Description: `Present a snapshot's file index as a browsable directory tree.

Files read through the mount are decompressed on demand; nothing is
extracted to disk. The mount is read-only and serves until the process
receives SIGINT or SIGTERM, then unmounts and exits.`,
		Examples: []cli.Example{
			{
				Description: "Browse an archived snapshot in place",
				Command:     "hoard mount --snapshot prices-2024.snapshot /mnt/prices",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("mount", &params)
		},
		Run: func(args []string) error {
			if params.Snapshot == "" {
				return fmt.Errorf("--snapshot is required")
			}
			if len(args) != 1 {
				return fmt.Errorf("exactly one mountpoint argument is required")
			}
			mountpoint := args[0]

			logger := cli.NewCommandLogger().With("command", "mount")

			store, err := vault.Open(vault.Config{Path: params.Snapshot, ReadOnly: true, Logger: logger})
			if err != nil {
				return err
			}
			defer store.Close()

			server, err := fuse.Mount(fuse.Options{
				Mountpoint: mountpoint,
				Snapshot:   store,
				AllowOther: params.AllowOther,
				Logger:     logger,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go func() {
				<-ctx.Done()
				logger.Info("unmounting", "mountpoint", mountpoint)
				if err := server.Unmount(); err != nil {
					logger.Error("unmount failed; is the mountpoint busy?",
						"mountpoint", mountpoint,
						"error", err,
					)
				}
			}()

			// Blocks until the filesystem is unmounted, either by the
			// signal handler above or externally via fusermount -u.
			server.Wait()
			return nil
		},
	}
}
