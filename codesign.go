// Completion: 100% - Code signature generator complete
package c67mach

import "crypto/sha256"

// CodeDirectory/SuperBlob field layout follows Apple's ad-hoc code
// signing format. Every multi-byte field in a code-signature blob is
// big-endian, unlike the rest of this toolkit's little-endian image.
const (
	cdMagic    uint32 = 0xfade0c02
	cscMagic   uint32 = 0xfade0cc0
	cdVersion  uint32 = 0x00020400
	cdFlags    uint32 = 0x00020002 // CS_ADHOC | CS_LINKER_SIGNED
	cdPageLog2 uint8  = 12         // 4096-byte pages
	cdHashType uint8  = 2          // SHA-256
	cdHashSize uint8  = 32
	cdIdentOff uint32 = 88 // fixed: identifier string begins right after the header

	cstSlotCodeDirectory uint32 = 0
)

// Sign computes the ad-hoc code signature for image[:codeLimit] and
// returns the 408-byte embedded-signature superblob to append at the
// image's fixed code-signature offset. It never re-hashes its own
// output: the superblob it returns is not part of the hashed region.
func Sign(image []byte, codeLimit int, identifier string) ([]byte, error) {
	if codeLimit > len(image) {
		return nil, Invariant("code limit %d exceeds image length %d", codeLimit, len(image))
	}
	pageSize := 1 << cdPageLog2
	nPages := (codeLimit + pageSize - 1) / pageSize
	if nPages == 0 {
		nPages = 1
	}

	digests := make([][]byte, nPages)
	for i := 0; i < nPages; i++ {
		start := i * pageSize
		end := start + pageSize
		if end > codeLimit {
			end = codeLimit
		}
		sum := sha256.Sum256(image[start:end])
		digests[i] = sum[:]
	}

	cd, err := buildCodeDirectory(identifier, uint32(codeLimit), uint32(nPages), digests)
	if err != nil {
		return nil, err
	}

	// SuperBlob layout: 12-byte header (magic, length, count), then one
	// 8-byte CS_BlobIndex entry per blob, then the blobs themselves.
	const sbHeaderLen = 12
	const sbIndexLen = 8
	sb := NewByteWriter()
	sb.U32BE(cscMagic)
	sb.U32BE(uint32(sbHeaderLen + sbIndexLen + len(cd))) // length
	sb.U32BE(1)                                          // count
	sb.U32BE(cstSlotCodeDirectory)
	sb.U32BE(uint32(sbHeaderLen + sbIndexLen)) // offset of CodeDirectory within the superblob
	sb.Raw(cd)

	if err := sb.PadTo(int(codeSigLen)); err != nil {
		return nil, Invariant("code signature %d bytes exceeds the fixed %d-byte slot", sb.Len(), codeSigLen)
	}
	return sb.Bytes(), nil
}

func buildCodeDirectory(identifier string, codeLimit, nCodeSlots uint32, digests [][]byte) ([]byte, error) {
	identOff := cdIdentOff
	hashOff := identOff + uint32(len(identifier)) + 1

	w := NewByteWriter()
	w.U32BE(cdMagic)
	w.U32BE(hashOff + nCodeSlots*uint32(cdHashSize)) // length
	w.U32BE(cdVersion)
	w.U32BE(cdFlags)
	w.U32BE(hashOff)
	w.U32BE(identOff)
	w.U32BE(0) // nSpecialSlots
	w.U32BE(nCodeSlots)
	w.U32BE(codeLimit)
	w.U8(cdHashSize)
	w.U8(cdHashType)
	w.U8(0) // platform
	w.U8(cdPageLog2)
	w.U32BE(0) // spare2
	w.U32BE(0) // scatterOffset
	w.U32BE(0) // teamOffset
	if err := w.PadTo(76); err != nil {
		return nil, err
	}
	w.U32BE(0x1C)
	w.U32BE(0x0)
	w.U32BE(0x1)

	if uint32(w.Len()) != identOff {
		// the fixed 88-byte header must end exactly where the
		// identifier begins; a mismatch means a field above was added
		// or removed without updating cdIdentOff.
		return nil, Invariant("CodeDirectory header is %d bytes, expected %d", w.Len(), identOff)
	}

	w.CString(identifier)
	for _, d := range digests {
		w.Raw(d)
	}
	return w.Bytes(), nil
}
