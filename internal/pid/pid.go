package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pavelc4/auriya/internal/errors"
	"golang.org/x/sys/unix"
)

const FileName = "auriya.pid"

// File guards against a second daemon instance
type File struct {
	path string
}

func New(dir string) *File {
	return &File{path: filepath.Join(dir, FileName)}
}

func (f *File) Path() string {
	return f.path
}

// Write records the current process ID. It fails with ErrAlreadyRunning
// when the file names another live process; a stale file is replaced.
func (f *File) Write() error {
	errFactory := errors.New()

	if other, ok := f.read(); ok && other != os.Getpid() && alive(other) {
		return errFactory.WithData(errors.ErrAlreadyRunning, other)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}
	if err := os.WriteFile(f.path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove deletes the file if it still names this process
func (f *File) Remove() error {
	if other, ok := f.read(); ok && other != os.Getpid() {
		return nil
	}

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}

func (f *File) read() (int, bool) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0, false
	}

	return pid, true
}

func alive(pid int) bool {
	err := unix.Kill(pid, 0)

	return err == nil || err == unix.EPERM
}
