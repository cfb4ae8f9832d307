package docstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/yaoapp/kun/log"

	"github.com/yaoapp/duan/errs"
)

// FS stores blobs as plain files under a root directory.
type FS struct {
	root string
}

// NewFS creates the root directory if needed and returns the store.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errs.Wrap(errs.IO, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, errs.Wrap(errs.IO, err)
	}
	return &FS{root: abs}, nil
}

// ID implements Store.
func (s *FS) ID() string {
	return "fs"
}

// Root returns the watched directory.
func (s *FS) Root() string {
	return s.root
}

// Read returns the blob stored at path.
func (s *FS) Read(ctx context.Context, path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errs.New(errs.DoesNotExist, "file %q does not exist", path)
	}
	if err != nil {
		return nil, errs.Wrap(errs.IO, err)
	}
	return content, nil
}

// Write stores the blob under name and returns its path. Overwriting an
// existing file is refused so uploads cannot clobber synced documents.
func (s *FS) Write(ctx context.Context, name string, content []byte) (string, error) {
	path := filepath.Join(s.root, name)
	if !strings.HasPrefix(path, s.root+string(filepath.Separator)) {
		return "", errs.New(errs.InvalidFileName, "file name %q escapes the store root", name)
	}

	if _, err := os.Stat(path); err == nil {
		return "", errs.New(errs.AlreadyExists, "file %q already exists", path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", errs.Wrap(errs.IO, err)
	}

	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", errs.Wrap(errs.IO, err)
	}
	return path, nil
}

// Delete removes the blob at path.
func (s *FS) Delete(ctx context.Context, path string) error {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return errs.New(errs.DoesNotExist, "file %q does not exist", path)
	}
	if err != nil {
		return errs.Wrap(errs.IO, err)
	}
	return nil
}

// List returns the files directly under the root.
func (s *FS) List(ctx context.Context) ([]File, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, errs.Wrap(errs.IO, err)
	}
	files := []File{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, File{
			Name: entry.Name(),
			Path: filepath.Join(s.root, entry.Name()),
		})
	}
	return files, nil
}

// Watch observes the root directory and calls handler for every create,
// write, remove or rename until a value arrives on interrupt. Chmod
// noise is dropped.
func (s *FS) Watch(handler func(event string, path string), interrupt chan uint8) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errs.Wrap(errs.IO, err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.root); err != nil {
		return errs.Wrap(errs.IO, err)
	}
	log.Info("Watching %s", s.root)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			log.Trace("Store fs event %s %s", event.Op.String(), event.Name)
			handler(event.Op.String(), event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("Store fs watcher: %s", err.Error())

		case <-interrupt:
			log.Info("Stop watching %s", s.root)
			return nil
		}
	}
}
