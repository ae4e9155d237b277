// Completion: 100% - Mach-O layout and load-command emitter complete
package c67mach

// Mach-O header and load-command constants. Values are bit-exact with
// the fixed single-target layout this toolkit emits: one PAGEZERO,
// one TEXT segment with __text/__stubs/__cstring, one DATA_CONST
// segment with __got, one LINKEDIT segment, and the handful of linker
// directive commands a minimal dyld-loadable ARM64 executable needs.
const (
	MagicMachO64  uint32 = 0xFEEDFACF
	CPUTypeARM64  uint32 = 0x0100000C
	CPUSubtypeAll uint32 = 0x00000000
	FileTypeExec  uint32 = 2
	HeaderFlags   uint32 = 0x00200085 // MH_NOUNDEFS | MH_DYLDLINK | MH_TWOLEVEL | MH_PIE
	NumLoadCmds   uint32 = 17
	SizeOfCmds    uint32 = 976

	lcSegment64          uint32 = 0x19
	lcSymtab             uint32 = 0x02
	lcDysymtab           uint32 = 0x0B
	lcLoadDylinker       uint32 = 0x0E
	lcUUID               uint32 = 0x1B
	lcCodeSignature      uint32 = 0x1D
	lcFunctionStarts     uint32 = 0x26
	lcDataInCode          uint32 = 0x29
	lcLoadDylib          uint32 = 0x0C
	lcMain               uint32 = 0x28 | 0x80000000
	lcSourceVersion      uint32 = 0x2A
	lcBuildVersion       uint32 = 0x32
	lcDyldChainedFixups  uint32 = 0x34 | 0x80000000
	lcDyldExportsTrie    uint32 = 0x33 | 0x80000000

	vmProtNone = 0x0
	vmProtRead = 0x1
	vmProtWrite = 0x2
	vmProtExec  = 0x4

	sAttrPureInstructions = 0x80000000
	sAttrSomeInstructions = 0x00000400
	sRegular              = 0x0
	sCstringLiterals      = 0x2
	sSymbolStubs          = 0x8
	sNonLazySymbolPointers = 0x6

	dataConstFileOff uint64 = 16384
	linkeditFileOff  uint64 = 32768
	totalImageSize   uint64 = 33512

	chainedFixupsOff uint64 = 32768
	chainedFixupsLen uint64 = 104
	exportsTrieOff   uint64 = 32872
	exportsTrieLen   uint64 = 48
	functionStartsOff uint64 = 32920
	functionStartsLen uint64 = 8
	symtabOff         uint64 = 32928
	symtabLen         uint64 = 96
	indirectSymtabOff uint64 = 33024
	indirectSymtabLen uint64 = 16
	strtabOff         uint64 = 33040
	strtabLen         uint64 = 56
	codeSigOff        uint64 = 33104
	codeSigLen        uint64 = 408
)

// LayoutResult is the fully assembled image, still missing only its
// code-signature superblob (appended by C7).
type LayoutResult struct {
	Image     []byte // everything up to, but not including, the signature region
	CodeLimit int    // byte length of Image == the code-signature's code_limit
}

// BuildImage lays out the Mach-O header, all 17 load commands, the
// code/stub/cstring/got sections at their fixed file offsets, and the
// LINKEDIT blobs, zero-padded up to codeSigOff. The image stops there:
// the signer's codeSigLen-byte superblob is appended after it.
func BuildImage(cg *CodegenResult) (*LayoutResult, error) {
	w := NewByteWriter()

	writeHeader(w)
	writeLoadCommands(w, cg)

	if err := w.PadTo(int(TextFileOff)); err != nil {
		return nil, err
	}
	w.Raw(cg.Text)
	w.Raw(cg.Stubs)
	w.Raw(cg.Cstring)

	if err := w.PadTo(int(dataConstFileOff)); err != nil {
		return nil, err
	}
	w.Raw(cg.Got)

	if err := w.PadTo(int(linkeditFileOff)); err != nil {
		return nil, err
	}
	writeChainedFixups(w)
	writeExportsTrie(w)
	writeFunctionStarts(w)
	writeSymtab(w, cg.Addr)
	writeIndirectSymtab(w)
	writeStrtab(w)

	if err := w.PadTo(int(codeSigOff)); err != nil {
		return nil, err
	}
	if w.Len() != int(codeSigOff) {
		return nil, Invariant("image reached %d bytes before the code-signature offset %d", w.Len(), codeSigOff)
	}

	return &LayoutResult{Image: w.Bytes(), CodeLimit: w.Len()}, nil
}

func writeHeader(w *ByteWriter) {
	w.U32(MagicMachO64)
	w.U32(CPUTypeARM64)
	w.U32(CPUSubtypeAll)
	w.U32(FileTypeExec)
	w.U32(NumLoadCmds)
	w.U32(SizeOfCmds)
	w.U32(HeaderFlags)
	w.U32(0) // reserved
}

func writeLoadCommands(w *ByteWriter, cg *CodegenResult) {
	a := cg.Addr

	// __PAGEZERO reserves the low 4 GiB so __TEXT can sit at TextVMBase.
	writeSegmentHeader(w, "__PAGEZERO", 0, TextVMBase, 0, 0, vmProtNone, vmProtNone, 0, 0)

	// __TEXT: fixed 16 KiB file region regardless of actual code size;
	// the rest is zero-padding absorbed by PadTo.
	writeSegmentHeaderWithSections(w, "__TEXT", TextVMBase, dataConstFileOff, 0, dataConstFileOff,
		vmProtRead|vmProtExec, vmProtRead|vmProtExec, 3, []sectionSpec{
			{"__text", "__TEXT", TextAddr, TextFileOff, uint64(len(cg.Text)), 2, sRegular | sAttrPureInstructions | sAttrSomeInstructions, 0, 0},
			{"__stubs", "__TEXT", a.StubsAddr, TextFileOff + uint64(len(cg.Text)), uint64(len(cg.Stubs)), 2, sSymbolStubs | sAttrPureInstructions | sAttrSomeInstructions, 0, 12},
			{"__cstring", "__TEXT", a.CstringAddr, TextFileOff + uint64(len(cg.Text)+len(cg.Stubs)), uint64(len(cg.Cstring)), 0, sCstringLiterals, 0, 0},
		})

	// __DATA_CONST
	writeSegmentHeaderWithSections(w, "__DATA_CONST", TextVMBase+dataConstFileOff, linkeditFileOff-dataConstFileOff, dataConstFileOff, linkeditFileOff-dataConstFileOff,
		vmProtRead|vmProtWrite, vmProtRead|vmProtWrite, 1, []sectionSpec{
			{"__got", "__DATA_CONST", a.GotAddr, dataConstFileOff, uint64(len(cg.Got)), 3, sNonLazySymbolPointers, 2, 0},
		})

	// __LINKEDIT: filesize is the actual byte count, but vmsize must be
	// page-aligned (16 KiB) for dyld to accept the segment.
	linkeditSize := totalImageSize - linkeditFileOff
	writeSegmentHeader(w, "__LINKEDIT", TextVMBase+linkeditFileOff, dataConstFileOff, linkeditFileOff, linkeditSize,
		vmProtRead, vmProtRead, 0, 0)

	writeLinkeditDataCmd(w, lcDyldChainedFixups, chainedFixupsOff, chainedFixupsLen)
	writeLinkeditDataCmd(w, lcDyldExportsTrie, exportsTrieOff, exportsTrieLen)
	writeSymtabCmd(w)
	writeDysymtabCmd(w)
	writeDylinkerCmd(w)
	writeUUIDCmd(w)
	writeBuildVersionCmd(w)
	writeSourceVersionCmd(w)
	writeMainCmd(w)
	writeLoadDylibCmd(w)
	writeLinkeditDataCmd(w, lcFunctionStarts, functionStartsOff, functionStartsLen)
	writeLinkeditDataCmd(w, lcDataInCode, 0, 0)
	writeLinkeditDataCmd(w, lcCodeSignature, codeSigOff, codeSigLen)
}

func pad16(name string) []byte {
	b := make([]byte, 16)
	copy(b, name)
	return b
}

func writeSegmentHeader(w *ByteWriter, name string, vmaddr, vmsize, fileoff, filesize uint64, maxprot, initprot uint32, nsects uint32, _ uint32) {
	cmdsize := uint32(72 + 80*nsects)
	w.U32(lcSegment64)
	w.U32(cmdsize)
	w.Raw(pad16(name))
	w.U64(vmaddr)
	w.U64(vmsize)
	w.U64(fileoff)
	w.U64(filesize)
	w.U32(maxprot)
	w.U32(initprot)
	w.U32(nsects)
	w.U32(0) // flags
}

type sectionSpec struct {
	name, segName      string
	addr, offset, size uint64
	align              uint32
	flags              uint32
	reserved1          uint32
	reserved2          uint32
}

func writeSegmentHeaderWithSections(w *ByteWriter, name string, vmaddr, vmsize, fileoff, filesize uint64, maxprot, initprot uint32, nsects uint32, sections []sectionSpec) {
	writeSegmentHeader(w, name, vmaddr, vmsize, fileoff, filesize, maxprot, initprot, nsects, 0)
	for _, s := range sections {
		w.Raw(pad16(s.name))
		w.Raw(pad16(s.segName))
		w.U64(s.addr)
		w.U64(s.size)
		w.U32(uint32(s.offset))
		w.U32(s.align)
		w.U32(0) // reloff
		w.U32(0) // nreloc
		w.U32(s.flags)
		w.U32(s.reserved1)
		w.U32(s.reserved2)
		w.U32(0) // reserved3
	}
}

func writeLinkeditDataCmd(w *ByteWriter, cmd uint32, dataoff, datasize uint64) {
	w.U32(cmd)
	w.U32(16)
	w.U32(uint32(dataoff))
	w.U32(uint32(datasize))
}

func writeSymtabCmd(w *ByteWriter) {
	w.U32(lcSymtab)
	w.U32(24)
	w.U32(uint32(symtabOff))
	w.U32(6) // nsyms
	w.U32(uint32(strtabOff))
	w.U32(uint32(strtabLen))
}

func writeDysymtabCmd(w *ByteWriter) {
	w.U32(lcDysymtab)
	w.U32(80)
	w.U32(0) // ilocalsym
	w.U32(2) // nlocalsym
	w.U32(2) // iextdefsym
	w.U32(2) // nextdefsym
	w.U32(4) // iundefsym
	w.U32(2) // nundefsym
	w.U32(0) // tocoff
	w.U32(0) // ntoc
	w.U32(0) // modtaboff
	w.U32(0) // nmodtab
	w.U32(0) // extrefsymoff
	w.U32(0) // nextrefsyms
	w.U32(uint32(indirectSymtabOff))
	w.U32(4) // nindirectsyms
	w.U32(0) // extreloff
	w.U32(0) // nextrel
	w.U32(0) // locreloff
	w.U32(0) // nlocrel
}

func writeDylinkerCmd(w *ByteWriter) {
	path := "/usr/lib/dyld"
	nameOff := uint32(12)
	cmdsize := align8(nameOff + uint32(len(path)) + 1)
	w.U32(lcLoadDylinker)
	w.U32(cmdsize)
	w.U32(nameOff)
	w.CString(path)
	padCmd(w, cmdsize, nameOff+uint32(len(path))+1)
}

func writeUUIDCmd(w *ByteWriter) {
	w.U32(lcUUID)
	w.U32(24)
	// fixed UUID; any change invalidates nothing structurally, but
	// determinism requires a constant value across runs.
	w.Raw([]byte{0xC6, 0x70, 0x4D, 0xDE, 0xAD, 0xBE, 0xEF, 0x11, 0xA0, 0x67, 0x00, 0x0C, 0x67, 0x4D, 0xAC, 0x48})
}

func writeBuildVersionCmd(w *ByteWriter) {
	w.U32(lcBuildVersion)
	w.U32(32)
	w.U32(1)          // platform = macOS
	w.U32(0x000F_0700) // minos 15.7.0
	w.U32(0)           // sdk
	w.U32(1)           // ntools
	w.U32(3)           // tool = LD
	w.U32(0x04CE0100)  // tool version
}

func writeSourceVersionCmd(w *ByteWriter) {
	w.U32(lcSourceVersion)
	w.U32(16)
	w.U64(0)
}

func writeMainCmd(w *ByteWriter) {
	w.U32(lcMain)
	w.U32(24)
	w.U64(TextFileOff)
	w.U64(0) // stacksize
}

func writeLoadDylibCmd(w *ByteWriter) {
	path := "/usr/lib/libSystem.B.dylib"
	nameOff := uint32(24)
	cmdsize := align8(nameOff + uint32(len(path)) + 1)
	w.U32(lcLoadDylib)
	w.U32(cmdsize)
	w.U32(nameOff)
	w.U32(2)          // timestamp
	w.U32(0x054C0000) // current_version
	w.U32(0x00010000) // compatibility_version
	w.CString(path)
	padCmd(w, cmdsize, nameOff+uint32(len(path))+1)
}

func align8(n uint32) uint32 {
	return (n + 7) &^ 7
}

func padCmd(w *ByteWriter, cmdsize, written uint32) {
	for i := written; i < cmdsize; i++ {
		w.U8(0)
	}
}

// writeChainedFixups emits the fixed 104-byte dyld chained-fixups blob
// describing a single page of __DATA_CONST with two imports (_exit,
// _write).
func writeChainedFixups(w *ByteWriter) {
	start := w.Len()
	w.U32(0)    // fixups_version
	w.U32(0x20) // starts_offset: dyld_chained_starts_in_image begins after this 7-word header plus one pad word
	w.U32(0x50) // imports_offset
	w.U32(0x58) // symbols_offset
	w.U32(2)    // imports_count
	w.U32(1)    // imports_format (DYLD_CHAINED_IMPORT)
	w.U32(0)    // symbols_format (uncompressed)
	w.U32(0)    // pad: aligns starts_in_image to starts_offset

	// dyld_chained_starts_in_image: seg_count + per-segment offsets,
	// each relative to starts_offset.
	w.U32(4)    // seg_count (PAGEZERO, TEXT, DATA_CONST, LINKEDIT)
	w.U32(0)    // seg_info_offset[0] PAGEZERO: none
	w.U32(0)    // seg_info_offset[1] TEXT: none
	w.U32(0x18) // seg_info_offset[2] DATA_CONST
	w.U32(0)    // seg_info_offset[3] LINKEDIT: none
	w.U32(0)    // pad: aligns dyld_chained_starts_in_segment to starts_offset+0x18

	// dyld_chained_starts_in_segment for __DATA_CONST; this struct is
	// exactly 0x18 bytes, starting at 0x38 and ending precisely at
	// imports_offset.
	w.U32(0x18)   // size
	w.U16(0x4000) // page_size
	w.U16(6)      // pointer_format (DYLD_CHAINED_PTR_ARM64E_USERLAND24-ish sentinel used by this toolkit)
	w.U64(0x4000) // segment_offset
	w.U32(0)      // max_valid_pointer
	w.U16(1)      // page_count
	w.U16(0)      // page_start[0]

	// imports: 2 packed u32 DYLD_CHAINED_IMPORT entries (lib ordinal 1 in
	// the low 8 bits; name_offset in bits 9 and up is 1 and 7, the offsets
	// of "_exit" and "_write" in the symbols table below).
	w.U32(0x00000201)
	w.U32(0x00000e01)

	// symbols table: "", "_exit", "_write".
	w.U8(0)
	w.CString("_exit")
	w.CString("_write")

	w.PadTo(start + int(chainedFixupsLen))
}

// writeExportsTrie emits the fixed 48-byte dyld export trie encoding
// __mh_execute_header at address 0 and _main at address 0x410.
func writeExportsTrie(w *ByteWriter) {
	start := w.Len()

	// Root node: not itself terminal, two edges. Offsets are byte
	// positions relative to the start of the trie. Root node occupies
	// terminal_size(1) + child_count(1) + "__mh_execute_header\0"(20) +
	// ULEB(1) + "_main\0"(6) + ULEB(1) = 30 bytes, so the
	// "__mh_execute_header" edge targets 30 and the "_main" edge,
	// following a 4-byte child, targets 34.
	w.U8(0) // terminal size 0: root is not an exported symbol itself
	w.U8(2) // child count
	w.CString("__mh_execute_header")
	w.ULEB128(30)
	w.CString("_main")
	w.ULEB128(34)

	// Child 1 at offset 30: __mh_execute_header, terminal, flags=0,
	// address=0, no children of its own. Terminal data is 2 bytes
	// (flags, address), so terminal_size=2.
	w.U8(2)
	w.ULEB128(0) // flags
	w.ULEB128(0) // address
	w.U8(0)      // child count

	// Child 2 at offset 34: _main, terminal, flags=0, address=0x410.
	// Address 0x410 needs two ULEB128 bytes, so terminal_size=3.
	w.U8(3)
	w.ULEB128(0)
	w.ULEB128(0x410)
	w.U8(0)

	w.PadTo(start + int(exportsTrieLen))
}

// writeFunctionStarts emits the ULEB128 delta stream with a single
// entry for _main's offset from the image base, zero-padded to 8 B.
func writeFunctionStarts(w *ByteWriter) {
	start := w.Len()
	w.ULEB128(TextFileOff)
	w.U8(0)
	w.PadTo(start + int(functionStartsLen))
}

// writeSymtab emits the six fixed nlist_64 entries, in the documented
// order, each 16 bytes.
func writeSymtab(w *ByteWriter, addr AddressMap) {
	// string table layout (see writeStrtab): offsets into strtab for
	// each symbol name, matching the order symbols are listed here.
	const (
		strOffMsg    = 2  // "msg\0" at [2,6)
		strOffMsgLen = 6  // "msg_len\0" at [6,14)
		strOffMH     = 14 // "__mh_execute_header\0" at [14,34)
		strOffMain   = 34 // "_main\0" at [34,40)
		strOffExit   = 40 // "_exit\0" at [40,46)
		strOffWrite  = 46 // "_write\0" at [46,53)
	)
	nlist := func(strx uint32, ntype, nsect uint8, ndesc uint16, value uint64) {
		w.U32(strx)
		w.U8(ntype)
		w.U8(nsect)
		w.U16(ndesc)
		w.U64(value)
	}
	// msg: local symbol pointing at the first global's cstring address,
	// section 3 (__text=1, __stubs=2, __cstring=3).
	firstGlobalAddr := addr.CstringAddr
	nlist(strOffMsg, 0x0E, 3, 0, firstGlobalAddr) // N_SECT, local
	// msg_len: absolute symbol, cosmetic (spec open question).
	nlist(strOffMsgLen, 0x02, 0, 0, uint64(addr.MsgLenValue)) // N_ABS
	// __mh_execute_header
	nlist(strOffMH, 0x0F, 1, 0x10, TextVMBase) // N_SECT|N_EXT, REFERENCED_DYNAMICALLY
	// _main
	nlist(strOffMain, 0x0F, 1, 0, addr.MainAddr)
	// _exit (undefined, external, library ordinal 1)
	nlist(strOffExit, 0x01, 0, 0x0100, 0)
	// _write (undefined, external, library ordinal 1)
	nlist(strOffWrite, 0x01, 0, 0x0100, 0)
}

// writeIndirectSymtab emits the four indirect symbol-table entries:
// two for __stubs (both resolve through symbol index 4 then 5) and
// two for __got (same order).
func writeIndirectSymtab(w *ByteWriter) {
	for range [2]int{} {
		w.U32(4) // _exit
		w.U32(5) // _write
	}
}

// writeStrtab emits the leading {0x20,0x00} pad and the six symbol
// names as NUL-terminated strings, zero-padded to 56 B.
func writeStrtab(w *ByteWriter) {
	start := w.Len()
	w.U8(0x20)
	w.U8(0x00)
	w.CString("msg")
	w.CString("msg_len")
	w.CString("__mh_execute_header")
	w.CString("_main")
	w.CString("_exit")
	w.CString("_write")
	w.PadTo(start + int(strtabLen))
}
