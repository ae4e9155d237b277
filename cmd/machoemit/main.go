// Completion: 100% - Emitter CLI complete
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	c67mach "github.com/xyproto/c67mach"
)

// The three embedded IR sources mirror the original tool's three
// separate demo entry points: a full helper pipeline that prints a
// decimal integer, a no-helper program that writes a literal string
// directly, and a reference program exercising the ReturnCode exit
// path instead of ExitCode.
const irFullPipeline = `
@msg = constant [14 x i8] c"Hello, ARM64!\00"
@nl = constant [2 x i8] c"\0A\00"

define i32 @int_to_string(i32 %0, ptr %1) {
  %2 = udiv i32 %0, 10
  %3 = mul i32 %2, 10
  %4 = sub i32 %0, %3
  store i8 %4, ptr %1
  ret ptr %1
}

define i32 @print_i64(i32 %0) {
  %1 = call ptr @int_to_string(i32 %0, ptr %buf)
  %2 = call i64 @strlen(ptr %1)
  %3 = call i64 @write(i32 1, ptr %1, i64 %2)
  %4 = call i64 @write(i32 1, ptr @nl, i64 1)
  ret void
}

define i32 @main() {
  call i64 @write(i32 1, ptr @msg, i64 13)
  call void @print_i64(i64 42)
  call void @exit(i32 0)
}
`

const irNoHelpers = `
@msg = constant [6 x i8] c"done\0A\00"

define i32 @main() {
  call i64 @write(i32 1, ptr @msg, i64 5)
  call void @exit(i32 0)
}
`

const irReference = `
@msg = constant [6 x i8] c"ready\00"
@nl = constant [2 x i8] c"\0A\00"

define i32 @int_to_string(i32 %0, ptr %1) {
  %2 = udiv i32 %0, 10
  %3 = mul i32 %2, 10
  %4 = sub i32 %0, %3
  store i8 %4, ptr %1
  ret ptr %1
}

define i32 @print_i64(i32 %0) {
  %1 = call ptr @int_to_string(i32 %0, ptr %buf)
  %2 = call i64 @strlen(ptr %1)
  %3 = call i64 @write(i32 1, ptr %1, i64 %2)
  %4 = call i64 @write(i32 1, ptr @nl, i64 1)
  ret void
}

define i32 @main() {
  call i64 @write(i32 1, ptr @msg, i64 5)
  call void @print_i64(i64 7)
  ret i32 0
}
`

var demos = []struct {
	name string
	ir   string
}{
	{"test.x", irFullPipeline},
	{"test2.x", irNoHelpers},
	{"test_ir.x", irReference},
}

func main() {
	cfg := c67mach.LoadConfig()

	var verbose = flag.Bool("v", cfg.Verbose, "verbose mode (show codegen and layout diagnostics)")
	var verboseLong = flag.Bool("verbose", cfg.Verbose, "verbose mode (show codegen and layout diagnostics)")
	var outDir = flag.String("o", cfg.OutDir, "directory to write the three demo executables into")
	var identifier = flag.String("identifier", "c67mach", "code signature identifier string")
	flag.Parse()

	c67mach.VerboseMode = *verbose || *verboseLong

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for _, d := range demos {
		if c67mach.VerboseMode {
			fmt.Fprintf(os.Stderr, "DEBUG main: emitting %s\n", d.name)
		}
		if err := emitOne(d.ir, *identifier, filepath.Join(*outDir, d.name)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", d.name, err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", filepath.Join(*outDir, d.name))
	}
}

func emitOne(ir, identifier, path string) error {
	prog, err := c67mach.ParseIR(ir)
	if err != nil {
		return err
	}
	cg, err := c67mach.Generate(prog)
	if err != nil {
		return err
	}
	layout, err := c67mach.BuildImage(cg)
	if err != nil {
		return err
	}
	signed, err := c67mach.Sign(layout.Image, layout.CodeLimit, identifier)
	if err != nil {
		return err
	}
	image := append(append([]byte{}, layout.Image...), signed...)
	if err := os.WriteFile(path, image, 0o755); err != nil {
		return &c67mach.IOError{Path: path, Err: err}
	}
	return nil
}
