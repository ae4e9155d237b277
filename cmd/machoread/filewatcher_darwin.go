//go:build darwin
// +build darwin

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// FileWatcher wraps a kqueue watching a single file for writes, with a
// debounce so a burst of writes from one save only triggers one reread.
type FileWatcher struct {
	kq       int
	fd       int
	path     string
	mu       sync.Mutex
	debounce *time.Timer
	onChange func(string)
}

func NewFileWatcher(path string, onChange func(string)) (*FileWatcher, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue failed: %v", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		unix.Close(kq)
		return nil, err
	}

	fd, err := unix.Open(absPath, unix.O_RDONLY, 0)
	if err != nil {
		unix.Close(kq)
		return nil, fmt.Errorf("failed to open %s: %v", absPath, err)
	}

	event := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_VNODE,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
		Fflags: unix.NOTE_WRITE | unix.NOTE_ATTRIB,
	}
	if _, err := unix.Kevent(kq, []unix.Kevent_t{event}, nil, nil); err != nil {
		unix.Close(fd)
		unix.Close(kq)
		return nil, fmt.Errorf("failed to add kevent for %s: %v", absPath, err)
	}

	return &FileWatcher{kq: kq, fd: fd, path: absPath, onChange: onChange}, nil
}

// Watch blocks forever, invoking onChange on every debounced write.
func (fw *FileWatcher) Watch() {
	events := make([]unix.Kevent_t, 4)
	for {
		n, err := unix.Kevent(fw.kq, nil, events, nil)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			fmt.Fprintf(os.Stderr, "watch: kevent error: %v\n", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if n > 0 {
			fw.debouncedCallback()
		}
	}
}

func (fw *FileWatcher) debouncedCallback() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.debounce != nil {
		fw.debounce.Stop()
	}
	fw.debounce = time.AfterFunc(300*time.Millisecond, func() {
		fw.onChange(fw.path)
	})
}

func (fw *FileWatcher) Close() error {
	unix.Close(fw.fd)
	return unix.Close(fw.kq)
}
