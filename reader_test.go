package c67mach

import (
	"bytes"
	"testing"
)

func buildFullImage(t *testing.T, ir, identifier string) []byte {
	t.Helper()
	prog, err := ParseIR(ir)
	if err != nil {
		t.Fatalf("ParseIR: %v", err)
	}
	cg, err := Generate(prog)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	layout, err := BuildImage(cg)
	if err != nil {
		t.Fatalf("BuildImage: %v", err)
	}
	signed, err := Sign(layout.Image, layout.CodeLimit, identifier)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return append(append([]byte{}, layout.Image...), signed...)
}

func TestParseMachORejectsShortFile(t *testing.T) {
	if _, err := ParseMachO(make([]byte, 10)); err == nil {
		t.Error("expected an error for a file shorter than mach_header_64")
	}
}

func TestParseMachORejectsBadMagic(t *testing.T) {
	data := make([]byte, 64)
	if _, err := ParseMachO(data); err == nil {
		t.Error("expected an error for a zeroed/bad magic header")
	}
}

func TestParseMachOFullImageRoundTrip(t *testing.T) {
	data := buildFullImage(t, irWithHelpers, "c67mach")
	if len(data) != int(totalImageSize) {
		t.Fatalf("total image size = %d, want %d", len(data), totalImageSize)
	}

	img, err := ParseMachO(data)
	if err != nil {
		t.Fatalf("ParseMachO: %v", err)
	}

	var names []string
	for _, seg := range img.Segments {
		names = append(names, seg.Name)
	}
	wantSegs := []string{"__PAGEZERO", "__TEXT", "__DATA_CONST", "__LINKEDIT"}
	if len(names) != len(wantSegs) {
		t.Fatalf("segments = %v, want %v", names, wantSegs)
	}
	for i, want := range wantSegs {
		if names[i] != want {
			t.Errorf("Segments[%d] = %q, want %q", i, names[i], want)
		}
	}

	cstringSec, ok := img.Section("__TEXT", "__cstring")
	if !ok {
		t.Fatal("__cstring section not found")
	}
	strs, err := img.CStrings(cstringSec)
	if err != nil {
		t.Fatalf("CStrings: %v", err)
	}
	if len(strs) != 2 || strs[0] != "Hello, ARM64!" || strs[1] != "\n" {
		t.Errorf("CStrings = %q, want [\"Hello, ARM64!\" \"\\n\"]", strs)
	}
}

func TestParseMachODecodesTextSection(t *testing.T) {
	data := buildFullImage(t, irNoHelpers, "c67mach")
	img, err := ParseMachO(data)
	if err != nil {
		t.Fatalf("ParseMachO: %v", err)
	}
	sec, ok := img.Section("__TEXT", "__text")
	if !ok {
		t.Fatal("__text section not found")
	}
	decoded, err := img.DecodeText(sec)
	if err != nil {
		t.Fatalf("DecodeText: %v", err)
	}
	if len(decoded) == 0 {
		t.Fatal("expected at least one decoded instruction")
	}
	for _, d := range decoded {
		if d.Mnemonic == "?" {
			t.Errorf("generator-produced instruction 0x%08X decoded as unrecognized", d.Word)
		}
	}
}

func TestMachOImageBytesRejectsOutOfRangeSection(t *testing.T) {
	img := &MachOImage{raw: make([]byte, 10)}
	sec := Section{Name: "bogus", Offset: 5, Size: 100}
	if _, err := img.Bytes(sec); err == nil {
		t.Error("expected an error for a section that runs past end of file")
	}
}

func TestParseMachOUnknownLoadCommandsAreNonFatal(t *testing.T) {
	data := buildFullImage(t, irNoHelpers, "c67mach")
	img, err := ParseMachO(data)
	if err != nil {
		t.Fatalf("ParseMachO: %v", err)
	}
	if len(img.Unknown) == 0 {
		t.Error("expected at least one unrecognized load command (e.g. LC_MAIN) to be recorded, not rejected")
	}
}

func TestPrintStructuralProducesNonEmptyOutput(t *testing.T) {
	data := buildFullImage(t, irWithHelpers, "c67mach")
	img, err := ParseMachO(data)
	if err != nil {
		t.Fatalf("ParseMachO: %v", err)
	}
	var buf bytes.Buffer
	if err := PrintStructural(&buf, img, false); err != nil {
		t.Fatalf("PrintStructural: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("PrintStructural wrote no output")
	}
	if !bytes.Contains(buf.Bytes(), []byte("__TEXT")) {
		t.Error("PrintStructural output should mention __TEXT")
	}
}

func TestPrintStructuralRawModeHexDumpsCode(t *testing.T) {
	data := buildFullImage(t, irNoHelpers, "c67mach")
	img, err := ParseMachO(data)
	if err != nil {
		t.Fatalf("ParseMachO: %v", err)
	}
	var buf bytes.Buffer
	if err := PrintStructural(&buf, img, true); err != nil {
		t.Fatalf("PrintStructural: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("bytes):")) {
		t.Error("raw mode output should include a hex-dump byte count")
	}
}
