package rtlog

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/yanet-platform/daemonrt/rio"
)

// FileOutput adapts an rio.File as a logger output capable of
// size-triggered rotation (it implements sizedOutput), for the common
// case of a real on-disk log file.
type FileOutput struct {
	f    *rio.File
	path string
}

// OpenFileOutput opens path for append, creating it if necessary.
func OpenFileOutput(path string) (*FileOutput, error) {
	f, err := rio.OpenFile(path, unix.O_CREAT|unix.O_WRONLY|unix.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("rtlog: open log file %q: %w", path, err)
	}
	return &FileOutput{f: f, path: path}, nil
}

func (o *FileOutput) Fd() int { return o.f.Fd() }
func (o *FileOutput) Write(p []byte) (int, error) { return o.f.Write(p) }
func (o *FileOutput) Close() error { return o.f.Close() }

// Size reports the file's current length, satisfying sizedOutput so
// Logger.SetOutput can seed outputSize from what's already on disk
// rather than assuming a fresh file.
func (o *FileOutput) Size() (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(o.f.Fd(), &st); err != nil {
		return 0, fmt.Errorf("rtlog: stat %q: %w", o.path, err)
	}
	return st.Size, nil
}

// RenameRotate returns a RotateFunc that renames the current file to
// path+suffix and reopens path fresh. The *FileOutput the logger holds is
// updated in place, so the logger keeps writing to the same output value
// after rotation.
func RenameRotate(suffix string) RotateFunc {
	return func(current outputIO) (Level, string, error) {
		fo, ok := current.(*FileOutput)
		if !ok {
			return LevelError, "", fmt.Errorf("rtlog: RenameRotate requires a *FileOutput output")
		}

		rotated := fo.path + suffix
		if err := fo.Close(); err != nil {
			return LevelError, "", fmt.Errorf("rtlog: close before rotate: %w", err)
		}
		if err := os.Rename(fo.path, rotated); err != nil {
			return LevelError, "", fmt.Errorf("rtlog: rename %q to %q: %w", fo.path, rotated, err)
		}

		reopened, err := OpenFileOutput(fo.path)
		if err != nil {
			return LevelError, "", fmt.Errorf("rtlog: reopen after rotate: %w", err)
		}
		*fo = *reopened

		return LevelInfo, fmt.Sprintf("rotated log to %s", rotated), nil
	}
}
