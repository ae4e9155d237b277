// Completion: 100% - Textual dump printer complete
package c67mach

import (
	"fmt"
	"io"
)

// PrintStructural writes a human-readable structural dump of img to w:
// load commands, segments/sections, decoded instruction text for
// __text and __stubs, and the split __cstring payloads. raw selects
// between the decoded-instruction view and a plain hex dump of the
// code sections.
func PrintStructural(w io.Writer, img *MachOImage, raw bool) error {
	fmt.Fprintf(w, "cputype: 0x%08X  filetype: %d  flags: 0x%08X\n", img.CPUType, img.FileType, img.Flags)

	for _, seg := range img.Segments {
		fmt.Fprintf(w, "segment %-14s vmaddr=0x%010X vmsize=0x%X fileoff=%d filesize=%d\n",
			seg.Name, seg.VMAddr, seg.VMSize, seg.FileOff, seg.FileSize)
		for _, sec := range seg.Sections {
			fmt.Fprintf(w, "  section %-10s addr=0x%010X size=%d offset=%d\n", sec.Name, sec.Addr, sec.Size, sec.Offset)
		}
	}

	for _, u := range img.Unknown {
		fmt.Fprintf(w, "load command 0x%08X (cmdsize=%d) not decoded\n", u.Cmd, u.CmdSize)
	}

	for _, sym := range img.Symbols {
		fmt.Fprintf(w, "symbol %-24s type=0x%02X sect=%d desc=0x%04X value=0x%X\n", sym.Name, sym.Type, sym.Sect, sym.Desc, sym.Value)
	}

	if sec, ok := img.Section("__TEXT", "__text"); ok {
		if err := printCode(w, img, sec, "text", raw); err != nil {
			return err
		}
	}
	if sec, ok := img.Section("__TEXT", "__stubs"); ok {
		if err := printCode(w, img, sec, "stubs", raw); err != nil {
			return err
		}
	}
	if sec, ok := img.Section("__TEXT", "__cstring"); ok {
		strs, err := img.CStrings(sec)
		if err != nil {
			return err
		}
		for i, s := range strs {
			fmt.Fprintf(w, "cstring[%d] = %q\n", i, s)
		}
	}
	return nil
}

func printCode(w io.Writer, img *MachOImage, sec Section, label string, raw bool) error {
	if raw {
		b, err := img.Bytes(sec)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s (%d bytes): %X\n", label, len(b), b)
		return nil
	}
	decoded, err := img.DecodeText(sec)
	if err != nil {
		return err
	}
	for i, d := range decoded {
		fmt.Fprintf(w, "%s[%3d] 0x%08X  %s\n", label, i, d.Word, d.Text)
	}
	return nil
}
