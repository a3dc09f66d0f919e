package protocol

// BitWriter packs unsigned fields into a byte slice, most significant bit
// first. A partially filled final byte is zero padded.
type BitWriter struct {
	buf  []byte
	nbit int
}

// WriteBits appends the low n bits of v. n must be in [0, 64].
func (w *BitWriter) WriteBits(v uint64, n int) {
	for i := n - 1; i >= 0; i-- {
		if w.nbit%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		if v>>uint(i)&1 == 1 {
			w.buf[len(w.buf)-1] |= 0x80 >> uint(w.nbit%8)
		}
		w.nbit++
	}
}

// WriteBytes appends whole bytes. On a byte boundary this is a copy.
func (w *BitWriter) WriteBytes(b []byte) {
	if w.nbit%8 == 0 {
		w.buf = append(w.buf, b...)
		w.nbit += 8 * len(b)
		return
	}
	for _, c := range b {
		w.WriteBits(uint64(c), 8)
	}
}

// Len returns the number of bits written.
func (w *BitWriter) Len() int { return w.nbit }

// Bytes returns the packed buffer.
func (w *BitWriter) Bytes() []byte { return w.buf }

// BitReader reads fields written by BitWriter.
type BitReader struct {
	buf []byte
	pos int
}

func NewBitReader(b []byte) *BitReader { return &BitReader{buf: b} }

// Remaining returns the number of unread bits.
func (r *BitReader) Remaining() int { return len(r.buf)*8 - r.pos }

// ReadBits reads n bits as an unsigned value. It reports false if fewer
// than n bits remain.
func (r *BitReader) ReadBits(n int) (uint64, bool) {
	if n < 0 || n > 64 || r.Remaining() < n {
		return 0, false
	}
	var v uint64
	for i := 0; i < n; i++ {
		bit := r.buf[r.pos/8] >> uint(7-r.pos%8) & 1
		v = v<<1 | uint64(bit)
		r.pos++
	}
	return v, true
}

// ReadBytes reads n whole bytes into a new slice.
func (r *BitReader) ReadBytes(n int) ([]byte, bool) {
	if n < 0 || r.Remaining() < 8*n {
		return nil, false
	}
	out := make([]byte, n)
	if r.pos%8 == 0 {
		copy(out, r.buf[r.pos/8:])
		r.pos += 8 * n
		return out, true
	}
	for i := range out {
		v, _ := r.ReadBits(8)
		out[i] = byte(v)
	}
	return out, true
}
