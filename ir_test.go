package c67mach

import (
	"strings"
	"testing"
)

const irWithHelpers = `
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

func TestParseIRFullPipeline(t *testing.T) {
	prog, err := ParseIR(irWithHelpers)
	if err != nil {
		t.Fatalf("ParseIR: %v", err)
	}
	if len(prog.Globals) != 2 {
		t.Fatalf("len(Globals) = %d, want 2", len(prog.Globals))
	}
	if prog.Globals[0].Name != "msg" || prog.Globals[0].Content != "Hello, ARM64!" {
		t.Errorf("Globals[0] = %+v, want msg=\"Hello, ARM64!\"", prog.Globals[0])
	}
	if prog.Globals[1].Name != "nl" || prog.Globals[1].Content != "\n" {
		t.Errorf("Globals[1] = %+v, want nl=\"\\n\"", prog.Globals[1])
	}
	if len(prog.MainOps) != 3 {
		t.Fatalf("len(MainOps) = %d, want 3", len(prog.MainOps))
	}
	wantOps := []Operation{
		{Kind: OpWriteGlobal, Global: "msg", Value: 13},
		{Kind: OpPrintI64, Value: 42},
		{Kind: OpExitCode, Value: 0},
	}
	for i, want := range wantOps {
		if prog.MainOps[i] != want {
			t.Errorf("MainOps[%d] = %+v, want %+v", i, prog.MainOps[i], want)
		}
	}
	if !prog.HasHelpers {
		t.Error("HasHelpers should be true when int_to_string/print_i64 are defined")
	}
	if len(prog.IntToStr) == 0 || len(prog.PrintI64) == 0 {
		t.Error("helper bodies should be captured as raw lines")
	}
}

func TestParseIRNoHelperProgram(t *testing.T) {
	prog, err := ParseIR(irNoHelpers)
	if err != nil {
		t.Fatalf("ParseIR: %v", err)
	}
	if prog.HasHelpers {
		t.Error("HasHelpers should be false when no helper functions are defined")
	}
	if len(prog.MainOps) != 2 {
		t.Fatalf("len(MainOps) = %d, want 2", len(prog.MainOps))
	}
	if prog.MainOps[1].Kind != OpExitCode {
		t.Errorf("MainOps[1].Kind = %v, want OpExitCode", prog.MainOps[1].Kind)
	}
}

func TestParseIRReturnCodeTerminator(t *testing.T) {
	ir := `
@msg = constant [2 x i8] c"x\00"

define i32 @main() {
  call i64 @write(i32 1, ptr @msg, i64 1)
  ret i32 7
}
`
	prog, err := ParseIR(ir)
	if err != nil {
		t.Fatalf("ParseIR: %v", err)
	}
	last := prog.MainOps[len(prog.MainOps)-1]
	if last.Kind != OpReturnCode || last.Value != 7 {
		t.Errorf("last op = %+v, want ReturnCode(7)", last)
	}
}

func TestParseIRTakesLastI64LiteralOnLine(t *testing.T) {
	// A @write( call line can carry more than one i64 literal (e.g. the
	// computed length as well as the syscall number); the last one wins.
	ir := `
@msg = constant [4 x i8] c"abc\00"

define i32 @main() {
  call i64 @write(i32 1, ptr @msg, i64 99, i64 3)
  call void @exit(i32 0)
}
`
	prog, err := ParseIR(ir)
	if err != nil {
		t.Fatalf("ParseIR: %v", err)
	}
	if prog.MainOps[0].Value != 3 {
		t.Errorf("WriteGlobal.Value = %d, want 3 (the last i64 literal on the line)", prog.MainOps[0].Value)
	}
}

func TestParseIRRejectsWriteGlobalLenExceedingByteLength(t *testing.T) {
	ir := `
@msg = constant [4 x i8] c"ab\00"

define i32 @main() {
  call i64 @write(i32 1, ptr @msg, i64 999)
  call void @exit(i32 0)
}
`
	_, err := ParseIR(ir)
	if err == nil {
		t.Fatal("expected an error for WriteGlobal.len exceeding its global's byte length")
	}
}

func TestParseIRRejectsUndeclaredGlobal(t *testing.T) {
	ir := `
@msg = constant [2 x i8] c"x\00"

define i32 @main() {
  call i64 @write(i32 1, ptr @nope, i64 1)
  call void @exit(i32 0)
}
`
	_, err := ParseIR(ir)
	if err == nil {
		t.Fatal("expected an error referencing an undeclared global")
	}
}

func TestParseIRRejectsMissingExitCode(t *testing.T) {
	ir := `
@msg = constant [2 x i8] c"x\00"

define i32 @main() {
  call i64 @write(i32 1, ptr @msg, i64 1)
}
`
	_, err := ParseIR(ir)
	if err == nil {
		t.Fatal("expected an error when main does not terminate with ExitCode/ReturnCode")
	}
	if !strings.Contains(err.Error(), "no ExitCode lowered") {
		t.Errorf("error = %q, want it to contain %q", err.Error(), "no ExitCode lowered")
	}
}

func TestParseIRRejectsEmptyGlobals(t *testing.T) {
	ir := `
define i32 @main() {
  call void @exit(i32 0)
}
`
	if _, err := ParseIR(ir); err == nil {
		t.Error("expected an error for an IR with no globals")
	}
}

func TestParseIRRejectsEmptyMain(t *testing.T) {
	ir := `
@msg = constant [2 x i8] c"x\00"

define i32 @main() {
}
`
	if _, err := ParseIR(ir); err == nil {
		t.Error("expected an error for an IR whose main body is empty")
	}
}

func TestParseIRRejectsOversizedOperand(t *testing.T) {
	ir := `
@msg = constant [2 x i8] c"x\00"

define i32 @main() {
  call void @exit(i32 70000)
}
`
	if _, err := ParseIR(ir); err == nil {
		t.Error("expected an error for an operand that does not fit in u16")
	}
}

func TestParseIRRequiresHelperBodiesOnlyWhenPrintI64IsUsed(t *testing.T) {
	// print_i64 referenced with no int_to_string/print_i64 definitions at
	// all should fail; but an IR that never calls print_i64 is fine
	// without any helper bodies (covered by TestParseIRNoHelperProgram).
	ir := `
@msg = constant [2 x i8] c"x\00"

define i32 @main() {
  call void @print_i64(i64 5)
  call void @exit(i32 0)
}
`
	if _, err := ParseIR(ir); err == nil {
		t.Error("expected an error when PrintI64 is used but no helper bodies are defined")
	}
}

func TestUnescapeIRStringDropsTrailingNulMarker(t *testing.T) {
	got := unescapeIRString(`Hello, ARM64!\00`)
	if got != "Hello, ARM64!" {
		t.Errorf("unescapeIRString = %q, want %q", got, "Hello, ARM64!")
	}
}

func TestUnescapeIRStringDecodesArbitraryHexEscape(t *testing.T) {
	got := unescapeIRString(`a\0Ab`)
	if got != "a\nb" {
		t.Errorf("unescapeIRString = %q, want %q", got, "a\nb")
	}
}
