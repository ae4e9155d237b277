//go:build !darwin && !linux
// +build !darwin,!linux

package main

import "fmt"

// FileWatcher has no backing implementation outside darwin/linux; watch
// mode reports an error rather than silently doing nothing.
type FileWatcher struct{}

func NewFileWatcher(path string, onChange func(string)) (*FileWatcher, error) {
	return nil, fmt.Errorf("watch mode is not supported on this platform")
}

func (fw *FileWatcher) Watch() {}

func (fw *FileWatcher) Close() error { return nil }
