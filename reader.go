// Completion: 100% - Mach-O reader complete
package c67mach

import (
	"encoding/binary"
	"fmt"
)

// Section describes one section's file and address placement, enough
// to slice it out of the raw image.
type Section struct {
	Name    string
	SegName string
	Addr    uint64
	Offset  uint32
	Size    uint64
}

// Segment describes one LC_SEGMENT_64 load command and the sections
// nested under it.
type Segment struct {
	Name     string
	VMAddr   uint64
	VMSize   uint64
	FileOff  uint64
	FileSize uint64
	Sections []Section
}

// Symbol is one decoded nlist_64 entry with its name resolved from the
// string table.
type Symbol struct {
	Name  string
	Type  uint8
	Sect  uint8
	Desc  uint16
	Value uint64
}

// UnknownLoadCommand records a load command this reader doesn't
// interpret; walking one is never fatal (spec: unknown load commands
// are reported but non-halting), only out-of-range cmdsize is.
type UnknownLoadCommand struct {
	Cmd     uint32
	CmdSize uint32
}

// MachOImage is the parsed structure of one Mach-O 64-bit ARM64
// executable, grouping everything the reader extracted from walking
// its load commands.
type MachOImage struct {
	CPUType    uint32
	CPUSubtype uint32
	FileType   uint32
	Flags      uint32

	Segments []Segment
	Symbols  []Symbol
	Unknown  []UnknownLoadCommand

	raw []byte
}

// ParseMachO validates the header and walks every load command,
// dispatching LC_SEGMENT_64/LC_SYMTAB into Segments/Symbols and
// recording anything else as Unknown. Magic/cputype mismatches and
// any cmdsize that would run past the end of the file are fatal;
// unrecognized load command types are not.
func ParseMachO(data []byte) (*MachOImage, error) {
	if len(data) < 32 {
		return nil, &InputError{Context: "header", Msg: "file shorter than a mach_header_64"}
	}
	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != MagicMachO64 {
		return nil, &InputError{Context: "header", Msg: fmt.Sprintf("bad magic 0x%08X", magic)}
	}
	img := &MachOImage{raw: data}
	img.CPUType = binary.LittleEndian.Uint32(data[4:8])
	img.CPUSubtype = binary.LittleEndian.Uint32(data[8:12])
	img.FileType = binary.LittleEndian.Uint32(data[12:16])
	ncmds := binary.LittleEndian.Uint32(data[16:20])
	sizeofcmds := binary.LittleEndian.Uint32(data[20:24])
	img.Flags = binary.LittleEndian.Uint32(data[24:28])

	if img.CPUType != CPUTypeARM64 {
		return nil, &InputError{Context: "header", Msg: fmt.Sprintf("unsupported cputype 0x%08X", img.CPUType)}
	}

	idx := 32
	cmdsEnd := idx + int(sizeofcmds)
	if cmdsEnd > len(data) {
		return nil, &InputError{Context: "load commands", Msg: "sizeofcmds runs past end of file"}
	}

	var symtabOffset, symtabCount, strtabOffset, strtabSize uint32
	for i := uint32(0); i < ncmds; i++ {
		if idx+8 > len(data) {
			return nil, &InputError{Context: "load commands", Msg: "truncated load command header"}
		}
		cmd := binary.LittleEndian.Uint32(data[idx : idx+4])
		cmdsize := binary.LittleEndian.Uint32(data[idx+4 : idx+8])
		if cmdsize < 8 || idx+int(cmdsize) > len(data) {
			return nil, &InputError{Context: "load commands", Msg: fmt.Sprintf("command %d has out-of-range cmdsize %d", i, cmdsize)}
		}

		switch cmd {
		case lcSegment64:
			seg, err := parseSegment(data[idx : idx+int(cmdsize)])
			if err != nil {
				return nil, err
			}
			img.Segments = append(img.Segments, seg)
		case lcSymtab:
			symtabOffset = binary.LittleEndian.Uint32(data[idx+8 : idx+12])
			symtabCount = binary.LittleEndian.Uint32(data[idx+12 : idx+16])
			strtabOffset = binary.LittleEndian.Uint32(data[idx+16 : idx+20])
			strtabSize = binary.LittleEndian.Uint32(data[idx+20 : idx+24])
		default:
			img.Unknown = append(img.Unknown, UnknownLoadCommand{Cmd: cmd, CmdSize: cmdsize})
		}
		idx += int(cmdsize)
	}

	if symtabCount > 0 {
		syms, err := parseSymtab(data, symtabOffset, symtabCount, strtabOffset, strtabSize)
		if err != nil {
			return nil, err
		}
		img.Symbols = syms
	}

	return img, nil
}

func parseSegment(cmd []byte) (Segment, error) {
	if len(cmd) < 72 {
		return Segment{}, &InputError{Context: "segment", Msg: "segment_command_64 shorter than 72 bytes"}
	}
	seg := Segment{
		Name:     cString16(cmd[8:24]),
		VMAddr:   binary.LittleEndian.Uint64(cmd[24:32]),
		VMSize:   binary.LittleEndian.Uint64(cmd[32:40]),
		FileOff:  binary.LittleEndian.Uint64(cmd[40:48]),
		FileSize: binary.LittleEndian.Uint64(cmd[48:56]),
	}
	nsects := binary.LittleEndian.Uint32(cmd[64:68])
	off := 72
	for s := uint32(0); s < nsects; s++ {
		if off+80 > len(cmd) {
			return Segment{}, &InputError{Context: seg.Name, Msg: "section list runs past cmdsize"}
		}
		sec := cmd[off : off+80]
		seg.Sections = append(seg.Sections, Section{
			Name:    cString16(sec[0:16]),
			SegName: cString16(sec[16:32]),
			Addr:    binary.LittleEndian.Uint64(sec[32:40]),
			Size:    binary.LittleEndian.Uint64(sec[40:48]),
			Offset:  binary.LittleEndian.Uint32(sec[48:52]),
		})
		off += 80
	}
	return seg, nil
}

func cString16(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func parseSymtab(data []byte, symoff, nsyms, stroff, strsize uint32) ([]Symbol, error) {
	if uint64(symoff)+uint64(nsyms)*16 > uint64(len(data)) {
		return nil, &InputError{Context: "symtab", Msg: "symbol table runs past end of file"}
	}
	if uint64(stroff)+uint64(strsize) > uint64(len(data)) {
		return nil, &InputError{Context: "strtab", Msg: "string table runs past end of file"}
	}
	strtab := data[stroff : stroff+strsize]
	syms := make([]Symbol, 0, nsyms)
	for i := uint32(0); i < nsyms; i++ {
		off := symoff + i*16
		strx := binary.LittleEndian.Uint32(data[off : off+4])
		name := ""
		if strx < uint32(len(strtab)) {
			name = cStringFrom(strtab[strx:])
		}
		syms = append(syms, Symbol{
			Name:  name,
			Type:  data[off+4],
			Sect:  data[off+5],
			Desc:  binary.LittleEndian.Uint16(data[off+6 : off+8]),
			Value: binary.LittleEndian.Uint64(data[off+8 : off+16]),
		})
	}
	return syms, nil
}

func cStringFrom(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Section looks up a section by segment name and section name, e.g.
// ("__TEXT", "__text").
func (m *MachOImage) Section(segName, sectName string) (Section, bool) {
	for _, seg := range m.Segments {
		if seg.Name != segName {
			continue
		}
		for _, sec := range seg.Sections {
			if sec.Name == sectName {
				return sec, true
			}
		}
	}
	return Section{}, false
}

// Bytes slices the raw file bytes backing a section.
func (m *MachOImage) Bytes(sec Section) ([]byte, error) {
	end := uint64(sec.Offset) + sec.Size
	if end > uint64(len(m.raw)) {
		return nil, &InputError{Context: sec.Name, Msg: "section runs past end of file"}
	}
	return m.raw[sec.Offset:end], nil
}

// DecodeText decodes a section's bytes as a stream of ARM64 instruction
// words via DecodeARM64; it's meant for __text and __stubs.
func (m *MachOImage) DecodeText(sec Section) ([]Decoded, error) {
	b, err := m.Bytes(sec)
	if err != nil {
		return nil, err
	}
	if len(b)%4 != 0 {
		return nil, &InputError{Context: sec.Name, Msg: "section length is not a multiple of 4"}
	}
	out := make([]Decoded, 0, len(b)/4)
	for i := 0; i < len(b); i += 4 {
		word := binary.LittleEndian.Uint32(b[i : i+4])
		out = append(out, DecodeARM64(word))
	}
	return out, nil
}

// CStrings splits a __cstring-style section's bytes into its
// individual NUL-terminated string constants.
func (m *MachOImage) CStrings(sec Section) ([]string, error) {
	b, err := m.Bytes(sec)
	if err != nil {
		return nil, err
	}
	var out []string
	start := 0
	for i, c := range b {
		if c == 0 {
			out = append(out, string(b[start:i]))
			start = i + 1
		}
	}
	return out, nil
}
