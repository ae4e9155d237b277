package c67mach

import (
	"crypto/sha256"
	"encoding/binary"
	"strings"
	"testing"
)

func TestSignProducesFixedSizeSlot(t *testing.T) {
	image := make([]byte, 8192)
	sig, err := Sign(image, len(image), "c67mach")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig) != int(codeSigLen) {
		t.Errorf("len(sig) = %d, want %d", len(sig), codeSigLen)
	}
}

func TestSignSuperBlobHeader(t *testing.T) {
	image := make([]byte, 4096)
	sig, err := Sign(image, len(image), "id")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	magic := binary.BigEndian.Uint32(sig[0:4])
	if magic != cscMagic {
		t.Errorf("superblob magic = 0x%08X, want 0x%08X", magic, cscMagic)
	}
	count := binary.BigEndian.Uint32(sig[8:12])
	if count != 1 {
		t.Errorf("superblob count = %d, want 1", count)
	}
	// index entry: type then offset, both big-endian u32, at [12:20).
	slotType := binary.BigEndian.Uint32(sig[12:16])
	if slotType != cstSlotCodeDirectory {
		t.Errorf("blob index type = %d, want %d", slotType, cstSlotCodeDirectory)
	}
	cdOffset := binary.BigEndian.Uint32(sig[16:20])
	if cdOffset != 20 {
		t.Errorf("CodeDirectory offset = %d, want 20", cdOffset)
	}
	cdMagicGot := binary.BigEndian.Uint32(sig[20:24])
	if cdMagicGot != cdMagic {
		t.Errorf("CodeDirectory magic = 0x%08X, want 0x%08X", cdMagicGot, cdMagic)
	}
}

func TestSignIdentifierIsEmbeddedAtFixedOffset(t *testing.T) {
	image := make([]byte, 4096)
	ident := "my-identifier"
	sig, err := Sign(image, len(image), ident)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	// CodeDirectory starts at byte 20 of the superblob; its identifier
	// field begins cdIdentOff bytes into the CodeDirectory.
	start := 20 + int(cdIdentOff)
	got := string(sig[start : start+len(ident)])
	if got != ident {
		t.Errorf("identifier region = %q, want %q", got, ident)
	}
	if sig[start+len(ident)] != 0 {
		t.Error("identifier must be NUL-terminated")
	}
}

func TestSignHashesExactlyCodeLimitBytes(t *testing.T) {
	// Build an image where codeLimit is smaller than len(image); Sign
	// must hash only the first codeLimit bytes, one page.
	image := make([]byte, 4096*2)
	for i := range image {
		image[i] = byte(i)
	}
	codeLimit := 4096
	sig, err := Sign(image, codeLimit, "x")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	wantHash := sha256.Sum256(image[:codeLimit])

	identLen := len("x")
	hashOff := 20 + int(cdIdentOff) + identLen + 1
	got := sig[hashOff : hashOff+32]
	if !bytesEqual(got, wantHash[:]) {
		t.Errorf("first page hash = % X, want % X", got, wantHash[:])
	}
}

func TestSignRejectsCodeLimitBeyondImage(t *testing.T) {
	image := make([]byte, 100)
	if _, err := Sign(image, 200, "x"); err == nil {
		t.Error("expected an error when codeLimit exceeds len(image)")
	}
}

func TestSignRejectsIdentifierThatOverflowsTheFixedSlot(t *testing.T) {
	image := make([]byte, 4096)
	huge := strings.Repeat("x", int(codeSigLen))
	if _, err := Sign(image, len(image), huge); err == nil {
		t.Error("expected an error when the identifier makes the signature exceed codeSigLen")
	}
}

func TestSignPageCountRoundsUp(t *testing.T) {
	image := make([]byte, 4096+1)
	sig, err := Sign(image, len(image), "x")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	nCodeSlots := binary.BigEndian.Uint32(sig[20+28 : 20+32])
	if nCodeSlots != 2 {
		t.Errorf("nCodeSlots = %d, want 2 for a %d-byte image", nCodeSlots, len(image))
	}
}

func TestSignCodeDirectoryTrailer(t *testing.T) {
	image := make([]byte, 4096)
	sig, err := Sign(image, len(image), "x")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	// CodeDirectory starts at superblob byte 20; the fixed header ends
	// at byte 76 with three big-endian words {0x1C, 0x0, 0x1} rather
	// than the execSegBase/execSegLimit/execSegFlags fields.
	cdStart := 20
	trailer := sig[cdStart+76 : cdStart+88]
	want := []byte{
		0x00, 0x00, 0x00, 0x1C,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x01,
	}
	if !bytesEqual(trailer, want) {
		t.Errorf("CodeDirectory bytes [76,88) = % X, want % X", trailer, want)
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
