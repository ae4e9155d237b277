//go:build linux
// +build linux

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// FileWatcher wraps inotify watching a single file for writes, with a
// debounce so a burst of writes from one save only triggers one reread.
type FileWatcher struct {
	fd       int
	path     string
	mu       sync.Mutex
	debounce *time.Timer
	onChange func(string)
}

func NewFileWatcher(path string, onChange func(string)) (*FileWatcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify_init failed: %v", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	if _, err := unix.InotifyAddWatch(fd, absPath, unix.IN_MODIFY|unix.IN_CLOSE_WRITE); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to watch %s: %v", absPath, err)
	}

	return &FileWatcher{fd: fd, path: absPath, onChange: onChange}, nil
}

func (fw *FileWatcher) Watch() {
	buf := make([]byte, unix.SizeofInotifyEvent*4)
	for {
		n, err := unix.Read(fw.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			fmt.Fprintf(os.Stderr, "watch: inotify read error: %v\n", err)
			continue
		}

		offset := 0
		for offset < n {
			event := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
			offset += unix.SizeofInotifyEvent + int(event.Len)
			if event.Mask&(unix.IN_MODIFY|unix.IN_CLOSE_WRITE) != 0 {
				fw.debouncedCallback()
			}
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
	return unix.Close(fw.fd)
}
