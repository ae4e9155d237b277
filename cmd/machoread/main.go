// Completion: 100% - Reader CLI complete
package main

import (
	"flag"
	"fmt"
	"os"

	c67mach "github.com/xyproto/c67mach"
)

func main() {
	cfg := c67mach.LoadConfig()

	var verbose = flag.Bool("v", cfg.Verbose, "verbose mode")
	var verboseLong = flag.Bool("verbose", cfg.Verbose, "verbose mode")
	var raw = flag.Bool("raw", cfg.Raw, "dump __text/__stubs as hex instead of decoding instructions")
	var watch = flag.Bool("watch", false, "re-read and re-print the file whenever it changes on disk")
	flag.Parse()

	c67mach.VerboseMode = *verbose || *verboseLong

	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "usage: machoread [-v] [-raw] [-watch] <path>\n")
		os.Exit(1)
	}
	path := args[0]

	if err := readOnce(path, *raw); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *watch {
		if err := watchAndReread(path, *raw); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

// watchAndReread re-reads and re-prints path from scratch on every
// write, wholesale each time: there is no incremental re-parse.
func watchAndReread(path string, raw bool) error {
	fmt.Fprintf(os.Stderr, "\nwatching %s, press Ctrl+C to stop\n", path)

	fw, err := NewFileWatcher(path, func(p string) {
		fmt.Fprintf(os.Stderr, "\n[changed] %s\n", p)
		if err := readOnce(p, raw); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	})
	if err != nil {
		return err
	}
	defer fw.Close()

	fw.Watch()
	return nil
}

func readOnce(path string, raw bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &c67mach.IOError{Path: path, Err: err}
	}
	if c67mach.VerboseMode {
		fmt.Fprintf(os.Stderr, "DEBUG main: read %d bytes from %s\n", len(data), path)
	}
	img, err := c67mach.ParseMachO(data)
	if err != nil {
		return err
	}
	return c67mach.PrintStructural(os.Stdout, img, raw)
}
