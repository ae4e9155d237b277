// Completion: 100% - ARM64 instruction encoder complete
package c67mach

// Pure ARM64 (A64) instruction encoders. Each function returns the
// 32-bit little-endian instruction word a caller would otherwise have
// to hand-assemble, validating its operand domain and returning an
// *InvariantError on violation rather than silently truncating.
//
// Bit layouts follow the Arm Architecture Reference Manual's A64
// encoding tables; register fields are plain 0-31 indices (XZR/WZR is
// register 31 where the caller wants it).

func validateReg(name string, r uint32) error {
	if r > 31 {
		return Invariant("%s register index %d out of range [0,31]", name, r)
	}
	return nil
}

func validateImm12(v uint32) error {
	if v > 0xFFF {
		return Invariant("imm12 %d exceeds 0xFFF", v)
	}
	return nil
}

func validateImm16(v uint32) error {
	if v > 0xFFFF {
		return Invariant("imm16 %d exceeds 0xFFFF", v)
	}
	return nil
}

func validateImm26(v int32) error {
	if v < -(1<<25) || v > (1<<25)-1 {
		return Invariant("imm26 %d out of range [-2^25, 2^25-1]", v)
	}
	return nil
}

func validateImm19(v int32) error {
	if v < -(1<<18) || v > (1<<18)-1 {
		return Invariant("imm19 %d out of range [-2^18, 2^18-1]", v)
	}
	return nil
}

// EncodeMOVZ64 encodes `MOVZ Xd, #imm16, LSL #(hw*16)`.
func EncodeMOVZ64(rd, imm16, hw uint32) (uint32, error) {
	return encodeMoveWide(0xD2800000, rd, imm16, hw)
}

// EncodeMOVN64 encodes `MOVN Xd, #imm16, LSL #(hw*16)`.
func EncodeMOVN64(rd, imm16, hw uint32) (uint32, error) {
	return encodeMoveWide(0x92800000, rd, imm16, hw)
}

// EncodeMOVK64 encodes `MOVK Xd, #imm16, LSL #(hw*16)`.
func EncodeMOVK64(rd, imm16, hw uint32) (uint32, error) {
	return encodeMoveWide(0xF2800000, rd, imm16, hw)
}

func encodeMoveWide(base, rd, imm16, hw uint32) (uint32, error) {
	if err := validateReg("rd", rd); err != nil {
		return 0, err
	}
	if err := validateImm16(imm16); err != nil {
		return 0, err
	}
	if hw > 3 {
		return 0, Invariant("hw shift field %d out of range [0,3]", hw)
	}
	return base | (hw << 21) | (imm16 << 5) | rd, nil
}

// EncodeADRP encodes `ADRP Xd, #(pageDelta*4096)`. pageDelta is the
// number of 4 KiB pages between the page containing the instruction
// and the page containing the target; see AdrpPageDelta.
func EncodeADRP(rd uint32, pageDelta int32) (uint32, error) {
	if err := validateReg("rd", rd); err != nil {
		return 0, err
	}
	if err := validateImm21(pageDelta); err != nil {
		return 0, err
	}
	u := uint32(pageDelta)
	immlo := u & 0x3
	immhi := (u >> 2) & 0x7FFFF
	return 0x90000000 | (immlo << 29) | (immhi << 5) | rd, nil
}

func validateImm21(v int32) error {
	if v < -(1<<20) || v > (1<<20)-1 {
		return Invariant("imm21 page delta %d out of range [-2^20, 2^20-1]", v)
	}
	return nil
}

// EncodeADDImm encodes `ADD Rd, Rn, #imm12` for sixtyFour = true/false.
func EncodeADDImm(sixtyFour bool, rd, rn, imm12 uint32) (uint32, error) {
	return encodeAddSubImm(sixtyFour, false, rd, rn, imm12)
}

// EncodeSUBImm encodes `SUB Rd, Rn, #imm12` for sixtyFour = true/false.
func EncodeSUBImm(sixtyFour bool, rd, rn, imm12 uint32) (uint32, error) {
	return encodeAddSubImm(sixtyFour, true, rd, rn, imm12)
}

func encodeAddSubImm(sixtyFour, sub bool, rd, rn, imm12 uint32) (uint32, error) {
	if err := validateReg("rd", rd); err != nil {
		return 0, err
	}
	if err := validateReg("rn", rn); err != nil {
		return 0, err
	}
	if err := validateImm12(imm12); err != nil {
		return 0, err
	}
	base := uint32(0x11000000)
	if sub {
		base = 0x51000000
	}
	if sixtyFour {
		base |= 1 << 31
	}
	return base | (imm12 << 10) | (rn << 5) | rd, nil
}

// EncodeADDReg encodes `ADD Rd, Rn, Rm` (shifted register, shift=0).
func EncodeADDReg(sixtyFour bool, rd, rn, rm uint32) (uint32, error) {
	return encodeAddSubReg(sixtyFour, false, rd, rn, rm)
}

// EncodeSUBReg encodes `SUB Rd, Rn, Rm` (shifted register, shift=0).
func EncodeSUBReg(sixtyFour bool, rd, rn, rm uint32) (uint32, error) {
	return encodeAddSubReg(sixtyFour, true, rd, rn, rm)
}

func encodeAddSubReg(sixtyFour, sub bool, rd, rn, rm uint32) (uint32, error) {
	if err := validateReg("rd", rd); err != nil {
		return 0, err
	}
	if err := validateReg("rn", rn); err != nil {
		return 0, err
	}
	if err := validateReg("rm", rm); err != nil {
		return 0, err
	}
	base := uint32(0x0B000000)
	if sub {
		base = 0x4B000000
	}
	if sixtyFour {
		base |= 1 << 31
	}
	return base | (rm << 16) | (rn << 5) | rd, nil
}

// EncodeMUL32 encodes `MUL Wd, Wn, Wm` as `MADD Wd, Wn, Wm, WZR`.
func EncodeMUL32(rd, rn, rm uint32) (uint32, error) {
	return EncodeMADD32(rd, rn, rm, 31)
}

// EncodeMADD32 encodes `MADD Wd, Wn, Wm, Ra`.
func EncodeMADD32(rd, rn, rm, ra uint32) (uint32, error) {
	for _, r := range []struct{ name string; v uint32 }{{"rd", rd}, {"rn", rn}, {"rm", rm}, {"ra", ra}} {
		if err := validateReg(r.name, r.v); err != nil {
			return 0, err
		}
	}
	return 0x1B000000 | (rm << 16) | (ra << 10) | (rn << 5) | rd, nil
}

// EncodeUDIV32 encodes `UDIV Wd, Wn, Wm`.
func EncodeUDIV32(rd, rn, rm uint32) (uint32, error) {
	if err := validateReg("rd", rd); err != nil {
		return 0, err
	}
	if err := validateReg("rn", rn); err != nil {
		return 0, err
	}
	if err := validateReg("rm", rm); err != nil {
		return 0, err
	}
	return 0x1AC00800 | (rm << 16) | (rn << 5) | rd, nil
}

// EncodeLDRImm64 encodes `LDR Xt, [Xn, #(imm12*8)]` (unsigned offset).
func EncodeLDRImm64(rt, rn, imm12 uint32) (uint32, error) {
	return encodeLoadStoreImm64(0xF9400000, rt, rn, imm12)
}

// EncodeSTRImm64 encodes `STR Xt, [Xn, #(imm12*8)]` (unsigned offset).
func EncodeSTRImm64(rt, rn, imm12 uint32) (uint32, error) {
	return encodeLoadStoreImm64(0xF9000000, rt, rn, imm12)
}

func encodeLoadStoreImm64(base, rt, rn, imm12 uint32) (uint32, error) {
	if err := validateReg("rt", rt); err != nil {
		return 0, err
	}
	if err := validateReg("rn", rn); err != nil {
		return 0, err
	}
	if err := validateImm12(imm12); err != nil {
		return 0, err
	}
	return base | (imm12 << 10) | (rn << 5) | rt, nil
}

// EncodeSTRBImm encodes `STRB Wt, [Xn, #imm12]` (unsigned offset, unscaled byte).
func EncodeSTRBImm(rt, rn, imm12 uint32) (uint32, error) {
	return encodeLoadStoreByteImm(0x39000000, rt, rn, imm12)
}

// EncodeLDRBImm encodes `LDRB Wt, [Xn, #imm12]` (unsigned offset, unscaled byte).
func EncodeLDRBImm(rt, rn, imm12 uint32) (uint32, error) {
	return encodeLoadStoreByteImm(0x39400000, rt, rn, imm12)
}

func encodeLoadStoreByteImm(base, rt, rn, imm12 uint32) (uint32, error) {
	if err := validateReg("rt", rt); err != nil {
		return 0, err
	}
	if err := validateReg("rn", rn); err != nil {
		return 0, err
	}
	if err := validateImm12(imm12); err != nil {
		return 0, err
	}
	return base | (imm12 << 10) | (rn << 5) | rt, nil
}

// EncodeBR encodes `BR Xn`.
func EncodeBR(rn uint32) (uint32, error) {
	if err := validateReg("rn", rn); err != nil {
		return 0, err
	}
	return 0xD61F0000 | (rn << 5), nil
}

// EncodeRET encodes `RET Xn` (Xn defaults to X30 at the call site).
func EncodeRET(rn uint32) (uint32, error) {
	if err := validateReg("rn", rn); err != nil {
		return 0, err
	}
	return 0xD65F0000 | (rn << 5), nil
}

// EncodeBL encodes `BL #(imm26*4)`.
func EncodeBL(imm26 int32) (uint32, error) {
	if err := validateImm26(imm26); err != nil {
		return 0, err
	}
	return 0x94000000 | (uint32(imm26) & 0x03FFFFFF), nil
}

// EncodeB encodes `B #(imm26*4)`.
func EncodeB(imm26 int32) (uint32, error) {
	if err := validateImm26(imm26); err != nil {
		return 0, err
	}
	return 0x14000000 | (uint32(imm26) & 0x03FFFFFF), nil
}

// EncodeCBZW encodes `CBZ Wt, #(imm19*4)`.
func EncodeCBZW(rt uint32, imm19 int32) (uint32, error) {
	if err := validateReg("rt", rt); err != nil {
		return 0, err
	}
	if err := validateImm19(imm19); err != nil {
		return 0, err
	}
	return 0x34000000 | ((uint32(imm19) & 0x7FFFF) << 5) | rt, nil
}

// AdrpPageDelta computes the number of 4 KiB pages between the page
// containing fromAddr and the page containing toAddr, as required by
// EncodeADRP's immediate.
func AdrpPageDelta(fromAddr, toAddr uint64) (int32, error) {
	const pageMask = ^uint64(0xFFF)
	fromPage := fromAddr & pageMask
	toPage := toAddr & pageMask
	delta := (int64(toPage) - int64(fromPage)) / 4096
	if delta < -(1<<20) || delta > (1<<20)-1 {
		return 0, Invariant("adrp_page_delta %d exceeds ±1 MiB page range", delta)
	}
	return int32(delta), nil
}

// BLImm26 computes the signed word offset for EncodeBL/EncodeB between
// fromAddr (the instruction's own address) and toAddr.
func BLImm26(fromAddr, toAddr uint64) (int32, error) {
	byteDelta := int64(toAddr) - int64(fromAddr)
	if byteDelta%4 != 0 {
		return 0, Invariant("branch delta %d is not a multiple of 4", byteDelta)
	}
	wordDelta := byteDelta / 4
	if wordDelta < -(1<<25) || wordDelta > (1<<25)-1 {
		return 0, Invariant("branch word delta %d out of imm26 range", wordDelta)
	}
	return int32(wordDelta), nil
}
