// Completion: 100% - ARM64 instruction decoder complete
package c67mach

import "fmt"

// Decoded holds a decoder's best-effort rendering of one instruction
// word: a mnemonic plus whatever operands it recognized, rendered as a
// single display string. Decoding is diagnostic, not authoritative: an
// unrecognized word decodes to "?" rather than failing the read, since
// a reader walking someone else's binary has no business aborting on
// an encoding it doesn't know (spec §9).
type Decoded struct {
	Word     uint32
	Mnemonic string
	Text     string
}

// DecodeARM64 renders a single instruction word. It never returns an
// error: the worst outcome is Mnemonic == "?".
func DecodeARM64(word uint32) Decoded {
	if m, text, ok := decodeMoveWide(word); ok {
		return Decoded{word, m, text}
	}
	if text, ok := decodeADRP(word); ok {
		return Decoded{word, "adrp", text}
	}
	if m, text, ok := decodeAddSubImm(word); ok {
		return Decoded{word, m, text}
	}
	if m, text, ok := decodeAddSubReg(word); ok {
		return Decoded{word, m, text}
	}
	if m, text, ok := decodeMADD(word); ok {
		return Decoded{word, m, text}
	}
	if text, ok := decodeUDIV(word); ok {
		return Decoded{word, "udiv", text}
	}
	if m, text, ok := decodeLoadStore64(word); ok {
		return Decoded{word, m, text}
	}
	if m, text, ok := decodeLoadStoreByte(word); ok {
		return Decoded{word, m, text}
	}
	if text, ok := decodeBR(word); ok {
		return Decoded{word, "br", text}
	}
	if text, ok := decodeRET(word); ok {
		return Decoded{word, "ret", text}
	}
	if text, ok := decodeBL(word); ok {
		return Decoded{word, "bl", text}
	}
	if text, ok := decodeB(word); ok {
		return Decoded{word, "b", text}
	}
	if text, ok := decodeCBZW(word); ok {
		return Decoded{word, "cbz", text}
	}
	if text, ok := decodeSVC(word); ok {
		return Decoded{word, "svc", text}
	}
	if text, ok := decodeSTP(word); ok {
		return Decoded{word, "stp", text}
	}
	if text, ok := decodeLDP(word); ok {
		return Decoded{word, "ldp", text}
	}
	if text, ok := decodeSTUR(word); ok {
		return Decoded{word, "stur", text}
	}
	return Decoded{word, "?", "?"}
}

func decodeMoveWide(word uint32) (mnemonic, text string, ok bool) {
	hw := (word >> 21) & 0x3
	imm16 := (word >> 5) & 0xFFFF
	rd := word & 0x1F
	sixtyFour := word&(1<<31) != 0
	masked := word & 0xFF800000

	switch masked {
	case 0xD2800000, 0x52800000:
		mnemonic = "movz"
	case 0x92800000, 0x12800000:
		mnemonic = "movn"
	case 0xF2800000, 0x72800000:
		mnemonic = "movk"
	default:
		return "", "", false
	}
	return mnemonic, fmt.Sprintf("%s %s, #%d, lsl #%d", mnemonic, regName(rd, sixtyFour), imm16, hw*16), true
}

func decodeADRP(word uint32) (string, bool) {
	if word&0x9F000000 != 0x90000000 {
		return "", false
	}
	rd := word & 0x1F
	immlo := (word >> 29) & 0x3
	immhi := (word >> 5) & 0x7FFFF
	imm21 := int32(immhi<<2 | immlo)
	imm21 = signExtend(imm21, 21)
	return fmt.Sprintf("adrp x%d, #%d*4096", rd, imm21), true
}

func decodeAddSubImm(word uint32) (mnemonic, text string, ok bool) {
	sixtyFour := word&(1<<31) != 0
	rd := word & 0x1F
	rn := (word >> 5) & 0x1F
	imm12 := (word >> 10) & 0xFFF
	switch word & 0xFFC00000 {
	case 0x11000000, 0x91000000:
		mnemonic = "add"
	case 0x51000000, 0xD1000000:
		mnemonic = "sub"
	default:
		return "", "", false
	}
	return mnemonic, fmt.Sprintf("%s %s, %s, #%d", mnemonic, regName(rd, sixtyFour), regName(rn, sixtyFour), imm12), true
}

func decodeAddSubReg(word uint32) (mnemonic, text string, ok bool) {
	sixtyFour := word&(1<<31) != 0
	rd := word & 0x1F
	rn := (word >> 5) & 0x1F
	rm := (word >> 16) & 0x1F
	// opcode bits with sf, Rm, Rn and Rd cleared; shift and imm6 must be 0
	base := word & 0x7FE0FC00
	switch base {
	case 0x0B000000:
		return "add", fmt.Sprintf("add %s, %s, %s", regName(rd, sixtyFour), regName(rn, sixtyFour), regName(rm, sixtyFour)), true
	case 0x4B000000:
		return "sub", fmt.Sprintf("sub %s, %s, %s", regName(rd, sixtyFour), regName(rn, sixtyFour), regName(rm, sixtyFour)), true
	}
	return "", "", false
}

func decodeMADD(word uint32) (mnemonic, text string, ok bool) {
	sixtyFour := word&(1<<31) != 0
	base := word &^ uint32(1<<31)
	if base&0x7FE08000 != 0x1B000000 {
		return "", "", false
	}
	rd := word & 0x1F
	rn := (word >> 5) & 0x1F
	ra := (word >> 10) & 0x1F
	rm := (word >> 16) & 0x1F
	if ra == 31 {
		return "mul", fmt.Sprintf("mul %s, %s, %s", regName(rd, sixtyFour), regName(rn, sixtyFour), regName(rm, sixtyFour)), true
	}
	return "madd", fmt.Sprintf("madd %s, %s, %s, %s", regName(rd, sixtyFour), regName(rn, sixtyFour), regName(rm, sixtyFour), regName(ra, sixtyFour)), true
}

func decodeUDIV(word uint32) (string, bool) {
	sixtyFour := word&(1<<31) != 0
	base := word &^ uint32(1<<31)
	if base&0xFFE0FC00 != 0x1AC00800 {
		return "", false
	}
	rd := word & 0x1F
	rn := (word >> 5) & 0x1F
	rm := (word >> 16) & 0x1F
	return fmt.Sprintf("udiv %s, %s, %s", regName(rd, sixtyFour), regName(rn, sixtyFour), regName(rm, sixtyFour)), true
}

func decodeLoadStore64(word uint32) (mnemonic, text string, ok bool) {
	rt := word & 0x1F
	rn := (word >> 5) & 0x1F
	imm12 := (word >> 10) & 0xFFF
	switch word & 0xFFC00000 {
	case 0xF9400000:
		return "ldr", fmt.Sprintf("ldr x%d, [x%d, #%d]", rt, rn, imm12*8), true
	case 0xF9000000:
		return "str", fmt.Sprintf("str x%d, [x%d, #%d]", rt, rn, imm12*8), true
	}
	return "", "", false
}

func decodeLoadStoreByte(word uint32) (mnemonic, text string, ok bool) {
	rt := word & 0x1F
	rn := (word >> 5) & 0x1F
	imm12 := (word >> 10) & 0xFFF
	switch word & 0xFFC00000 {
	case 0x39000000:
		return "strb", fmt.Sprintf("strb w%d, [x%d, #%d]", rt, rn, imm12), true
	case 0x39400000:
		return "ldrb", fmt.Sprintf("ldrb w%d, [x%d, #%d]", rt, rn, imm12), true
	}
	return "", "", false
}

func decodeBR(word uint32) (string, bool) {
	if word&0xFFFFFC1F != 0xD61F0000 {
		return "", false
	}
	rn := (word >> 5) & 0x1F
	return fmt.Sprintf("br x%d", rn), true
}

func decodeRET(word uint32) (string, bool) {
	if word&0xFFFFFC1F != 0xD65F0000 {
		return "", false
	}
	rn := (word >> 5) & 0x1F
	return fmt.Sprintf("ret x%d", rn), true
}

func decodeBL(word uint32) (string, bool) {
	if word&0xFC000000 != 0x94000000 {
		return "", false
	}
	imm26 := signExtend(int32(word&0x03FFFFFF), 26)
	return fmt.Sprintf("bl #%d*4", imm26), true
}

func decodeB(word uint32) (string, bool) {
	if word&0xFC000000 != 0x14000000 {
		return "", false
	}
	imm26 := signExtend(int32(word&0x03FFFFFF), 26)
	return fmt.Sprintf("b #%d*4", imm26), true
}

func decodeCBZW(word uint32) (string, bool) {
	if word&0xFF000000 != 0x34000000 {
		return "", false
	}
	rt := word & 0x1F
	imm19 := signExtend(int32((word>>5)&0x7FFFF), 19)
	return fmt.Sprintf("cbz w%d, #%d*4", rt, imm19), true
}

func decodeSVC(word uint32) (string, bool) {
	if word&0xFFE0001F != 0xD4000001 {
		return "", false
	}
	imm16 := (word >> 5) & 0xFFFF
	return fmt.Sprintf("svc #%d", imm16), true
}

// decodeSTP/decodeLDP/decodeSTUR handle the signed-offset 64-bit pair
// and unscaled-offset forms the encoder never emits; the generator's
// own output never contains them, but a binary read from elsewhere
// might, so the decoder still names them.
func decodeSTP(word uint32) (string, bool) {
	if word&0xFFC00000 != 0xA9000000 {
		return "", false
	}
	rt := word & 0x1F
	rt2 := (word >> 10) & 0x1F
	rn := (word >> 5) & 0x1F
	imm7 := signExtend(int32((word>>15)&0x7F), 7)
	return fmt.Sprintf("stp x%d, x%d, [x%d, #%d]", rt, rt2, rn, imm7*8), true
}

func decodeLDP(word uint32) (string, bool) {
	if word&0xFFC00000 != 0xA9400000 {
		return "", false
	}
	rt := word & 0x1F
	rt2 := (word >> 10) & 0x1F
	rn := (word >> 5) & 0x1F
	imm7 := signExtend(int32((word>>15)&0x7F), 7)
	return fmt.Sprintf("ldp x%d, x%d, [x%d, #%d]", rt, rt2, rn, imm7*8), true
}

func decodeSTUR(word uint32) (string, bool) {
	if word&0xFFE00C00 != 0xF8000000 {
		return "", false
	}
	rt := word & 0x1F
	rn := (word >> 5) & 0x1F
	imm9 := signExtend(int32((word>>12)&0x1FF), 9)
	return fmt.Sprintf("stur x%d, [x%d, #%d]", rt, rn, imm9), true
}

func regName(r uint32, sixtyFour bool) string {
	if sixtyFour {
		return fmt.Sprintf("x%d", r)
	}
	return fmt.Sprintf("w%d", r)
}

func signExtend(v int32, bits uint) int32 {
	shift := 32 - bits
	return (v << shift) >> shift
}
