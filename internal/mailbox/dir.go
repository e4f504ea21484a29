package mailbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/solatis/inboxkeeper/internal/types"
)

/*
 * Directory mailbox.
 *
 * A Dir is a flat directory of *.eml files. Walk visits them in file-name
 * order, so exporters that prefix names with a timestamp or sequence number
 * get chronological processing.
 *
 * Per-message problems never abort a walk:
 *   - larger than the size limit -> skipped with a warning
 *   - unreadable or unparseable  -> skipped with a warning
 *   - malformed body part        -> visited with the parts read so far
 *
 * Walk checks ctx between messages; a cancelled walk returns ctx.Err().
 */

// SkipAll is returned by a WalkFunc to end a walk without error.
var SkipAll = errors.New("skip remaining messages")

// WalkFunc is called for every readable message.
type WalkFunc func(msg *Message) error

// Dir reads messages from a directory.
type Dir struct {
	path    string
	maxSize int64
	logger  *slog.Logger
}

// Option configures a Dir.
type Option func(*Dir)

// WithMaxSize limits message size in bytes. Zero disables the limit.
func WithMaxSize(limit int64) Option {
	return func(d *Dir) {
		d.maxSize = limit
	}
}

// WithLogger sets the logger for skipped messages.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dir) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Open returns a Dir for path, which must be an existing directory.
func Open(path string, opts ...Option) (*Dir, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mailbox: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("mailbox %s is not a directory", path)
	}

	d := &Dir{path: path, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Path returns the directory path.
func (d *Dir) Path() string {
	return d.path
}

// Names returns the message file names in walk order.
func (d *Dir) Names() ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("failed to list mailbox: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".eml") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Read parses a single message by file name.
func (d *Dir) Read(name string) (*Message, error) {
	path := filepath.Join(d.path, name)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", name, err)
	}
	if d.maxSize > 0 && info.Size() > d.maxSize {
		return nil, fmt.Errorf("%s: %w (%d > %d bytes)", name, types.ErrMessageTooLarge, info.Size(), d.maxSize)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return Parse(name, raw)
}

// Walk calls fn for each message in name order.
func (d *Dir) Walk(ctx context.Context, fn WalkFunc) error {
	names, err := d.Names()
	if err != nil {
		return err
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := d.Read(name)
		if err != nil {
			if msg == nil {
				d.logger.Warn("skipping message", "file", name, "error", err)
				continue
			}
			d.logger.Warn("message partially parsed", "file", name, "error", err)
		}

		if err := fn(msg); err != nil {
			if errors.Is(err, SkipAll) {
				return nil
			}
			return err
		}
	}
	return nil
}

// Move relocates message name into subdirectory folder, creating it when
// needed. Moved messages are no longer visited by Walk.
func (d *Dir) Move(name, folder string) error {
	if folder == "" || strings.ContainsAny(folder, `/\`) || folder == "." || folder == ".." {
		return fmt.Errorf("invalid folder name %q", folder)
	}
	target := filepath.Join(d.path, folder)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", folder, err)
	}
	if err := os.Rename(filepath.Join(d.path, name), filepath.Join(target, name)); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", name, folder, err)
	}
	return nil
}
