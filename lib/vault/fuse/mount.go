// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/hoardlabs/hoard/lib/vault"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	// It is created if it does not exist.
	Mountpoint string

	// Snapshot is the store to present. It must be opened read-only:
	// the directory tree is built once at mount time and never
	// refreshed.
	Snapshot *vault.Store

	// AllowOther permits other users (including root) to access the
	// mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Logger receives diagnostic messages. If nil, errors go to
	// stderr.
	Logger *slog.Logger
}

// Mount mounts the snapshot filesystem at the configured mountpoint.
// The caller must call Unmount on the returned Server when done.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.Snapshot == nil {
		return nil, fmt.Errorf("snapshot store is required")
	}
	if !options.Snapshot.ReadOnly() {
		return nil, fmt.Errorf("snapshot must be opened read-only")
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}

	// List the index up front so a broken snapshot fails the mount
	// instead of producing an empty tree.
	entries, err := options.Snapshot.ListEntries(context.Background(), vault.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing snapshot index: %w", err)
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &rootNode{options: &options, entries: entries}

	// The snapshot never changes underneath the kernel, so cached
	// entries and attributes stay valid indefinitely.
	entryTimeout := 60 * time.Second
	attrTimeout := 60 * time.Second
	negativeTimeout := 1 * time.Second

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout:    &entryTimeout,
		AttrTimeout:     &attrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "hoard-snapshot",
			Name:       "hoard",
			AllowOther: options.AllowOther,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("snapshot mounted",
		"mountpoint", options.Mountpoint,
		"entries", len(entries),
	)
	return server, nil
}

// rootNode is the filesystem root. OnAdd materializes the whole index
// as a persistent inode tree.
type rootNode struct {
	gofuse.Inode
	options *Options
	entries []vault.Entry
}

var _ gofuse.InodeEmbedder = (*rootNode)(nil)
var _ gofuse.NodeOnAdder = (*rootNode)(nil)

func (r *rootNode) OnAdd(ctx context.Context) {
	for _, entry := range r.entries {
		if entry.Path == "." || !fs.ValidPath(entry.Path) {
			r.options.Logger.Warn("skipping index entry with invalid path", "path", entry.Path)
			continue
		}

		components := strings.Split(entry.Path, "/")
		parent := &r.Inode

		for _, component := range components[:len(components)-1] {
			child := parent.GetChild(component)
			if child == nil {
				child = parent.NewPersistentInode(ctx, &gofuse.Inode{}, gofuse.StableAttr{Mode: syscall.S_IFDIR})
				parent.AddChild(component, child, true)
			} else if !child.IsDir() {
				// A file already sits where this entry needs a
				// directory. Directories win; the file entry is
				// unreachable through the mount.
				r.options.Logger.Warn("index entry shadowed by directory",
					"path", entry.Path,
					"component", component,
				)
				dir := parent.NewPersistentInode(ctx, &gofuse.Inode{}, gofuse.StableAttr{Mode: syscall.S_IFDIR})
				parent.AddChild(component, dir, true)
				child = dir
			}
			parent = child
		}

		leaf := components[len(components)-1]
		if existing := parent.GetChild(leaf); existing != nil && existing.IsDir() {
			r.options.Logger.Warn("index entry shadowed by directory", "path", entry.Path)
			continue
		}

		node := &entryNode{options: r.options, entry: entry}
		parent.AddChild(leaf, parent.NewPersistentInode(ctx, node, gofuse.StableAttr{Mode: syscall.S_IFREG}), true)
	}
}

// entryNode presents one file index entry as a regular file. The
// object's decompressed content is loaded on first open and kept for
// the lifetime of the inode.
type entryNode struct {
	gofuse.Inode
	options *Options
	entry   vault.Entry

	// mu protects content and loaded.
	mu      sync.Mutex
	content []byte
	loaded  bool
}

var _ gofuse.InodeEmbedder = (*entryNode)(nil)
var _ gofuse.NodeGetattrer = (*entryNode)(nil)
var _ gofuse.NodeOpener = (*entryNode)(nil)
var _ gofuse.NodeReader = (*entryNode)(nil)

func (n *entryNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = syscall.S_IFREG | 0o444
	out.Size = uint64(n.entry.Size)
	out.Blocks = (out.Size + 511) / 512
	modTime := n.entry.ModTime()
	out.SetTimes(nil, &modTime, nil)
	return 0
}

func (n *entryNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}

	if err := n.ensureContent(ctx); err != nil {
		n.options.Logger.Error("loading object failed",
			"path", n.entry.Path,
			"hash", vault.FormatHash(n.entry.ContentHash),
			"error", err,
		)
		return nil, 0, syscall.EIO
	}

	// Snapshot content is immutable, so the kernel page cache never
	// goes stale.
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

func (n *entryNode) Read(ctx context.Context, f gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if err := n.ensureContent(ctx); err != nil {
		return nil, syscall.EIO
	}

	if off >= int64(len(n.content)) {
		return fuse.ReadResultData(nil), 0
	}
	end := off + int64(len(dest))
	if end > int64(len(n.content)) {
		end = int64(len(n.content))
	}
	return fuse.ReadResultData(n.content[off:end]), 0
}

func (n *entryNode) ensureContent(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.loaded {
		return nil
	}

	content, err := n.options.Snapshot.Get(ctx, n.entry.ContentHash)
	if err != nil {
		return fmt.Errorf("loading object for %s: %w", n.entry.Path, err)
	}

	n.content = content
	n.loaded = true
	return nil
}
