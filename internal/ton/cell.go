package ton

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sort"
)

// Cell is an immutable TON cell: up to 1023 data bits and up to 4 references.
type Cell struct {
	bits int
	data []byte
	refs []*Cell
}

const (
	maxCellBits = 1023
	maxCellRefs = 4
)

// Bits returns the number of data bits stored in the cell.
func (c *Cell) Bits() int { return c.bits }

// Refs returns the cell's references.
func (c *Cell) Refs() []*Cell { return c.refs }

// depth is 0 for a leaf and 1 + the maximum child depth otherwise.
func (c *Cell) depth() int {
	d := 0
	for _, ref := range c.refs {
		if rd := ref.depth() + 1; rd > d {
			d = rd
		}
	}
	return d
}

// descriptors returns the standard d1/d2 descriptor bytes.
func (c *Cell) descriptors() (byte, byte) {
	d1 := byte(len(c.refs))
	d2 := byte(c.bits/8 + (c.bits+7)/8)
	return d1, d2
}

// paddedData returns the data bytes with the completion tag applied when the
// bit length is not byte aligned.
func (c *Cell) paddedData() []byte {
	out := make([]byte, (c.bits+7)/8)
	copy(out, c.data)
	if c.bits%8 != 0 {
		out[c.bits/8] |= 1 << (7 - uint(c.bits%8))
	}
	return out
}

// Hash returns the standard representation hash of the cell.
func (c *Cell) Hash() [32]byte {
	d1, d2 := c.descriptors()
	repr := []byte{d1, d2}
	repr = append(repr, c.paddedData()...)
	for _, ref := range c.refs {
		var depth [2]byte
		binary.BigEndian.PutUint16(depth[:], uint16(ref.depth()))
		repr = append(repr, depth[:]...)
	}
	for _, ref := range c.refs {
		h := ref.Hash()
		repr = append(repr, h[:]...)
	}
	return sha256.Sum256(repr)
}

// Builder assembles a cell bit by bit. Errors are sticky: the first overflow
// is reported by EndCell and later stores become no-ops.
type Builder struct {
	bits int
	data []byte
	refs []*Cell
	err  error
}

// NewBuilder returns an empty cell builder.
func NewBuilder() *Builder {
	return &Builder{data: make([]byte, 0, 128)}
}

func (b *Builder) storeBit(on bool) {
	if b.err != nil {
		return
	}
	if b.bits >= maxCellBits {
		b.err = fmt.Errorf("cell overflow at %d bits", b.bits)
		return
	}
	if b.bits%8 == 0 {
		b.data = append(b.data, 0)
	}
	if on {
		b.data[b.bits/8] |= 1 << (7 - uint(b.bits%8))
	}
	b.bits++
}

// StoreBit appends a single bit.
func (b *Builder) StoreBit(on bool) *Builder {
	b.storeBit(on)
	return b
}

// StoreUint appends value as a big-endian unsigned integer of the given width.
func (b *Builder) StoreUint(value uint64, bits int) *Builder {
	if bits < 0 || bits > 64 {
		b.setErr(fmt.Errorf("uint width %d out of range", bits))
		return b
	}
	for i := bits - 1; i >= 0; i-- {
		b.storeBit(value>>uint(i)&1 == 1)
	}
	return b
}

// StoreBytes appends raw bytes.
func (b *Builder) StoreBytes(data []byte) *Builder {
	for _, by := range data {
		b.StoreUint(uint64(by), 8)
	}
	return b
}

// StoreCoins appends a nanoton amount as the standard variable-length coin
// encoding: a 4-bit byte length followed by that many value bytes.
func (b *Builder) StoreCoins(nano uint64) *Builder {
	n := 0
	for v := nano; v > 0; v >>= 8 {
		n++
	}
	b.StoreUint(uint64(n), 4)
	for i := n - 1; i >= 0; i-- {
		b.StoreUint(nano>>uint(8*i)&0xff, 8)
	}
	return b
}

// StoreAddr appends addr_std: tag 10, no anycast, workchain and account hash.
func (b *Builder) StoreAddr(addr Address) *Builder {
	b.StoreUint(0b10, 2)
	b.storeBit(false)
	b.StoreUint(uint64(uint8(addr.Workchain)), 8)
	b.StoreBytes(addr.Hash[:])
	return b
}

// StoreAddrNone appends addr_none (two zero bits).
func (b *Builder) StoreAddrNone() *Builder {
	return b.StoreUint(0b00, 2)
}

// StoreRef attaches a child cell.
func (b *Builder) StoreRef(ref *Cell) *Builder {
	if b.err != nil {
		return b
	}
	if ref == nil {
		b.err = fmt.Errorf("nil cell reference")
		return b
	}
	if len(b.refs) >= maxCellRefs {
		b.err = fmt.Errorf("cell reference overflow")
		return b
	}
	b.refs = append(b.refs, ref)
	return b
}

func (b *Builder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

// EndCell finalises the builder into a cell.
func (b *Builder) EndCell() (*Cell, error) {
	if b.err != nil {
		return nil, b.err
	}
	data := make([]byte, len(b.data))
	copy(data, b.data)
	return &Cell{bits: b.bits, data: data, refs: b.refs}, nil
}

// CommentCell builds the standard text-comment payload: a zero opcode
// followed by the comment bytes.
func CommentCell(comment string) (*Cell, error) {
	return NewBuilder().
		StoreUint(0, 32).
		StoreBytes([]byte(comment)).
		EndCell()
}

// SerializeBOC encodes a single-root bag of cells with a CRC32-C trailer, as
// produced by standard TON tooling.
func SerializeBOC(root *Cell) ([]byte, error) {
	cells := orderCells(root)
	if len(cells) > 255 {
		return nil, fmt.Errorf("bag of cells too large: %d cells", len(cells))
	}
	index := make(map[*Cell]int, len(cells))
	for i, c := range cells {
		index[c] = i
	}

	var payload []byte
	for _, c := range cells {
		d1, d2 := c.descriptors()
		payload = append(payload, d1, d2)
		payload = append(payload, c.paddedData()...)
		for _, ref := range c.refs {
			payload = append(payload, byte(index[ref]))
		}
	}

	offBytes := 1
	for limit := 1 << 8; len(payload) >= limit; limit <<= 8 {
		offBytes++
	}

	out := make([]byte, 0, len(payload)+16)
	out = binary.BigEndian.AppendUint32(out, 0xb5ee9c72)
	out = append(out, 0x40|1) // has_crc32c, one-byte cell references
	out = append(out, byte(offBytes))
	out = append(out, byte(len(cells)), 1, 0) // cells, roots, absent
	for i := offBytes - 1; i >= 0; i-- {
		out = append(out, byte(len(payload)>>uint(8*i)))
	}
	out = append(out, 0) // root index
	out = append(out, payload...)

	crc := crc32.Checksum(out, crc32.MakeTable(crc32.Castagnoli))
	out = binary.LittleEndian.AppendUint32(out, crc)
	return out, nil
}

// ParseBOC decodes a bag of cells and returns its first root. It is the
// validity check applied to caller-supplied transaction evidence.
func ParseBOC(raw []byte) (*Cell, error) {
	if len(raw) < 11 {
		return nil, fmt.Errorf("bag of cells truncated")
	}
	if binary.BigEndian.Uint32(raw[:4]) != 0xb5ee9c72 {
		return nil, fmt.Errorf("bad bag of cells magic")
	}

	flags := raw[4]
	refSize := int(flags & 0x07)
	hasIdx := flags&0x80 != 0
	hasCRC := flags&0x40 != 0
	if refSize < 1 || refSize > 4 {
		return nil, fmt.Errorf("unsupported reference size %d", refSize)
	}

	offBytes := int(raw[5])
	if offBytes < 1 || offBytes > 8 {
		return nil, fmt.Errorf("unsupported offset size %d", offBytes)
	}

	r := &bocReader{raw: raw, pos: 6}
	cellCount, err := r.readUint(refSize)
	if err != nil {
		return nil, err
	}
	rootCount, err := r.readUint(refSize)
	if err != nil {
		return nil, err
	}
	if _, err := r.readUint(refSize); err != nil { // absent
		return nil, err
	}
	totalSize, err := r.readUint(offBytes)
	if err != nil {
		return nil, err
	}
	if rootCount < 1 {
		return nil, fmt.Errorf("bag of cells has no roots")
	}

	roots := make([]int, rootCount)
	for i := range roots {
		idx, err := r.readUint(refSize)
		if err != nil {
			return nil, err
		}
		roots[i] = idx
	}
	if hasIdx {
		r.pos += cellCount * offBytes
	}
	if r.pos+totalSize > len(raw) {
		return nil, fmt.Errorf("bag of cells truncated")
	}
	if hasCRC {
		if len(raw) < r.pos+totalSize+4 {
			return nil, fmt.Errorf("bag of cells missing checksum")
		}
		want := binary.LittleEndian.Uint32(raw[r.pos+totalSize:])
		if crc32.Checksum(raw[:r.pos+totalSize], crc32.MakeTable(crc32.Castagnoli)) != want {
			return nil, fmt.Errorf("bag of cells checksum mismatch")
		}
	}

	cells := make([]*Cell, cellCount)
	refIdx := make([][]int, cellCount)
	for i := 0; i < cellCount; i++ {
		d1, err := r.readByte()
		if err != nil {
			return nil, err
		}
		d2, err := r.readByte()
		if err != nil {
			return nil, err
		}
		if d1&0x08 != 0 {
			return nil, fmt.Errorf("exotic cells are not supported")
		}
		nrefs := int(d1 & 0x07)
		if nrefs > maxCellRefs {
			return nil, fmt.Errorf("cell %d has %d references", i, nrefs)
		}
		nbytes := (int(d2) + 1) / 2
		data, err := r.readBytes(nbytes)
		if err != nil {
			return nil, err
		}
		bits := int(d2/2) * 8
		if d2%2 != 0 {
			// Strip the completion tag from the last partial byte.
			last := data[nbytes-1]
			pad := 0
			for last&1 == 0 && pad < 8 {
				last >>= 1
				pad++
			}
			bits = nbytes*8 - pad - 1
		}
		cells[i] = &Cell{bits: bits, data: data}
		refIdx[i] = make([]int, nrefs)
		for j := 0; j < nrefs; j++ {
			idx, err := r.readUint(refSize)
			if err != nil {
				return nil, err
			}
			refIdx[i][j] = idx
		}
	}

	for i, idxs := range refIdx {
		for _, idx := range idxs {
			if idx <= i || idx >= cellCount {
				return nil, fmt.Errorf("cell %d has invalid reference %d", i, idx)
			}
			cells[i].refs = append(cells[i].refs, cells[idx])
		}
	}

	if roots[0] >= cellCount {
		return nil, fmt.Errorf("root index out of range")
	}
	return cells[roots[0]], nil
}

// orderCells returns the unique cells reachable from root, topologically
// ordered so every reference points forward.
func orderCells(root *Cell) []*Cell {
	dist := map[*Cell]int{}
	var walk func(c *Cell, d int)
	walk = func(c *Cell, d int) {
		if prev, ok := dist[c]; ok && prev >= d {
			return
		}
		dist[c] = d
		for _, ref := range c.refs {
			walk(ref, d+1)
		}
	}
	walk(root, 0)

	cells := make([]*Cell, 0, len(dist))
	for c := range dist {
		cells = append(cells, c)
	}
	sort.SliceStable(cells, func(i, j int) bool { return dist[cells[i]] < dist[cells[j]] })
	return cells
}

type bocReader struct {
	raw []byte
	pos int
}

func (r *bocReader) readByte() (byte, error) {
	if r.pos >= len(r.raw) {
		return 0, fmt.Errorf("bag of cells truncated at byte %d", r.pos)
	}
	b := r.raw[r.pos]
	r.pos++
	return b, nil
}

func (r *bocReader) readBytes(n int) ([]byte, error) {
	if r.pos+n > len(r.raw) {
		return nil, fmt.Errorf("bag of cells truncated at byte %d", r.pos)
	}
	out := r.raw[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *bocReader) readUint(n int) (int, error) {
	v := 0
	for i := 0; i < n; i++ {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		v = v<<8 | int(b)
	}
	return v, nil
}
