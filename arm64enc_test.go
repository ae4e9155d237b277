package c67mach

import "testing"

func TestEncodeMOVZ64(t *testing.T) {
	// MOVZ X0, #1 should put imm16=1 in bits [5,21) and leave rd=0.
	word, err := EncodeMOVZ64(regX0, 1, 0)
	if err != nil {
		t.Fatalf("EncodeMOVZ64: %v", err)
	}
	want := uint32(0xD2800000) | (1 << 5)
	if word != want {
		t.Errorf("EncodeMOVZ64(x0, 1, 0) = 0x%08X, want 0x%08X", word, want)
	}
}

func TestEncodeMOVZ64RejectsOversizedImm16(t *testing.T) {
	if _, err := EncodeMOVZ64(regX0, 0x10000, 0); err == nil {
		t.Error("expected an error for imm16 > 0xFFFF")
	}
}

func TestEncodeMOVZ64RejectsBadRegister(t *testing.T) {
	if _, err := EncodeMOVZ64(32, 1, 0); err == nil {
		t.Error("expected an error for register index 32")
	}
}

func TestEncodeADRPRoundTripsPageDelta(t *testing.T) {
	word, err := EncodeADRP(regX1, 3)
	if err != nil {
		t.Fatalf("EncodeADRP: %v", err)
	}
	// decode the immlo/immhi fields back out and confirm they recombine to 3.
	immlo := (word >> 29) & 0x3
	immhi := (word >> 5) & 0x7FFFF
	got := int32(immhi<<2 | immlo)
	if got != 3 {
		t.Errorf("decoded page delta = %d, want 3", got)
	}
}

func TestEncodeADRPRejectsOutOfRangeDelta(t *testing.T) {
	if _, err := EncodeADRP(regX0, 1<<20); err == nil {
		t.Error("expected an error for a page delta outside ±2^20")
	}
}

func TestEncodeADDImmAndSUBImm(t *testing.T) {
	add, err := EncodeADDImm(true, 1, 2, 0x10)
	if err != nil {
		t.Fatalf("EncodeADDImm: %v", err)
	}
	if add&(1<<31) == 0 {
		t.Error("64-bit ADD must set bit 31")
	}
	if add&0xFFC00000 != 0x91000000 {
		t.Errorf("ADD opcode bits = 0x%08X, want base 0x91000000", add&0xFFC00000)
	}

	sub, err := EncodeSUBImm(false, 1, 2, 0x10)
	if err != nil {
		t.Fatalf("EncodeSUBImm: %v", err)
	}
	if sub&(1<<31) != 0 {
		t.Error("32-bit SUB must not set bit 31")
	}
	if sub&0xFFC00000 != 0x51000000 {
		t.Errorf("SUB opcode bits = 0x%08X, want base 0x51000000", sub&0xFFC00000)
	}
}

func TestEncodeADDImmRejectsOversizedImm12(t *testing.T) {
	if _, err := EncodeADDImm(true, 0, 0, 0x1000); err == nil {
		t.Error("expected an error for imm12 > 0xFFF")
	}
}

func TestEncodeMUL32IsMADDWithZeroAccumulator(t *testing.T) {
	mul, err := EncodeMUL32(3, 4, 5)
	if err != nil {
		t.Fatalf("EncodeMUL32: %v", err)
	}
	madd, err := EncodeMADD32(3, 4, 5, 31)
	if err != nil {
		t.Fatalf("EncodeMADD32: %v", err)
	}
	if mul != madd {
		t.Errorf("MUL32(3,4,5) = 0x%08X, want it to equal MADD32(3,4,5,xzr) = 0x%08X", mul, madd)
	}
}

func TestEncodeUDIV32(t *testing.T) {
	word, err := EncodeUDIV32(7, 5, 9)
	if err != nil {
		t.Fatalf("EncodeUDIV32: %v", err)
	}
	if word&0xFFE0FC00 != 0x1AC00800 {
		t.Errorf("UDIV opcode bits = 0x%08X, want base 0x1AC00800", word&0xFFE0FC00)
	}
	if rd := word & 0x1F; rd != 7 {
		t.Errorf("rd field = %d, want 7", rd)
	}
}

func TestEncodeLoadStoreImm64ScalesBy8(t *testing.T) {
	ldr, err := EncodeLDRImm64(0, 1, 2)
	if err != nil {
		t.Fatalf("EncodeLDRImm64: %v", err)
	}
	imm12 := (ldr >> 10) & 0xFFF
	if imm12 != 2 {
		t.Errorf("encoded imm12 field = %d, want 2 (the caller scales, the field stores units of 8 bytes)", imm12)
	}
}

func TestEncodeBRAndRETDifferOnlyInOpcode(t *testing.T) {
	br, err := EncodeBR(30)
	if err != nil {
		t.Fatalf("EncodeBR: %v", err)
	}
	ret, err := EncodeRET(30)
	if err != nil {
		t.Fatalf("EncodeRET: %v", err)
	}
	if br == ret {
		t.Error("BR and RET must encode to different words")
	}
	if rn := (br >> 5) & 0x1F; rn != 30 {
		t.Errorf("BR rn field = %d, want 30", rn)
	}
}

func TestEncodeBLAndBRejectOutOfRangeImm26(t *testing.T) {
	if _, err := EncodeBL(1 << 25); err == nil {
		t.Error("expected an error for imm26 == 2^25")
	}
	if _, err := EncodeB(-(1 << 25) - 1); err == nil {
		t.Error("expected an error for imm26 < -2^25")
	}
}

func TestAdrpPageDeltaCrossingOnePage(t *testing.T) {
	delta, err := AdrpPageDelta(0x1000, 0x2000)
	if err != nil {
		t.Fatalf("AdrpPageDelta: %v", err)
	}
	if delta != 1 {
		t.Errorf("AdrpPageDelta(0x1000, 0x2000) = %d, want 1", delta)
	}
}

func TestAdrpPageDeltaSamePageIsZero(t *testing.T) {
	delta, err := AdrpPageDelta(0x1000, 0x1FFF)
	if err != nil {
		t.Fatalf("AdrpPageDelta: %v", err)
	}
	if delta != 0 {
		t.Errorf("AdrpPageDelta within one page = %d, want 0", delta)
	}
}

func TestBLImm26RejectsUnalignedDelta(t *testing.T) {
	if _, err := BLImm26(0, 1); err == nil {
		t.Error("expected an error for a branch delta that isn't a multiple of 4")
	}
}

func TestBLImm26ComputesWordDelta(t *testing.T) {
	imm26, err := BLImm26(0x1000, 0x1010)
	if err != nil {
		t.Fatalf("BLImm26: %v", err)
	}
	if imm26 != 4 {
		t.Errorf("BLImm26(0x1000, 0x1010) = %d, want 4", imm26)
	}
}
