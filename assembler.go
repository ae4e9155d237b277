// Completion: 100% - Label/patch assembler complete
package c67mach

// Assembler accumulates a sequence of instruction words while letting
// the caller refer to addresses that aren't known yet: call Label to
// mark a position, EmitBToLabel/EmitCBZWToLabel to emit a placeholder
// branch against a label that may be defined later, and Resolve to
// patch every placeholder once all labels exist. This mirrors the
// two-idiom split in the code generator: most of the layout is fixed
// offsets computed up front, but intra-function branches still need a
// forward-reference patch pass.
type Assembler struct {
	base     uint64
	words    []uint32
	labels   map[string]int // label name -> word index
	patches  []pendingPatch
}

type pendingPatch struct {
	wordIndex int
	label     string
	kind      patchKind
	reg       uint32 // operand register for patchCBZW; unused for patchB
}

type patchKind int

const (
	patchB patchKind = iota
	patchCBZW
)

// NewAssembler creates an assembler whose first emitted word lands at
// baseAddr.
func NewAssembler(baseAddr uint64) *Assembler {
	return &Assembler{base: baseAddr, labels: make(map[string]int)}
}

// Emit appends an already-encoded instruction word.
func (a *Assembler) Emit(word uint32) {
	a.words = append(a.words, word)
}

// Label records name as referring to the address of the next word to
// be emitted.
func (a *Assembler) Label(name string) {
	a.labels[name] = len(a.words)
}

// Addr returns the address of the next word to be emitted.
func (a *Assembler) Addr() uint64 {
	return a.base + uint64(len(a.words)*4)
}

// EmitBToLabel emits a placeholder `B` targeting name, to be resolved
// once name is defined.
func (a *Assembler) EmitBToLabel(name string) {
	idx := len(a.words)
	a.words = append(a.words, 0)
	a.patches = append(a.patches, pendingPatch{wordIndex: idx, label: name, kind: patchB})
}

// EmitCBZWToLabel emits a placeholder `CBZ Wt` targeting name.
func (a *Assembler) EmitCBZWToLabel(reg uint32, name string) {
	idx := len(a.words)
	a.words = append(a.words, 0)
	a.patches = append(a.patches, pendingPatch{wordIndex: idx, label: name, kind: patchCBZW, reg: reg})
}

// Resolve patches every pending branch now that all labels are known.
// It returns an *InputError naming the missing label if any patch
// references a label that was never defined.
func (a *Assembler) Resolve() error {
	for _, p := range a.patches {
		targetIdx, ok := a.labels[p.label]
		if !ok {
			return &InputError{Context: p.label, Msg: "branch target label never defined"}
		}
		fromAddr := a.base + uint64(p.wordIndex*4)
		toAddr := a.base + uint64(targetIdx*4)
		switch p.kind {
		case patchB:
			imm26, err := BLImm26(fromAddr, toAddr)
			if err != nil {
				return err
			}
			word, err := EncodeB(imm26)
			if err != nil {
				return err
			}
			a.words[p.wordIndex] = word
		case patchCBZW:
			byteDelta := int64(toAddr) - int64(fromAddr)
			if byteDelta%4 != 0 {
				return Invariant("cbz delta %d is not a multiple of 4", byteDelta)
			}
			imm19 := int32(byteDelta / 4)
			word, err := EncodeCBZW(p.reg, imm19)
			if err != nil {
				return err
			}
			a.words[p.wordIndex] = word
		}
	}
	return nil
}

// Words returns the resolved instruction stream.
func (a *Assembler) Words() []uint32 {
	return a.words
}

// Bytes serializes the resolved instruction stream as little-endian
// 32-bit words via a ByteWriter.
func (a *Assembler) Bytes() []byte {
	w := NewByteWriter()
	for _, word := range a.words {
		w.U32(word)
	}
	return w.Bytes()
}
