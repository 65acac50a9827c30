package report

// bitWriter appends big-endian, most-significant-bit-first fields to a byte slice.
type bitWriter struct {
	buf   []byte
	nbits int
}

func (w *bitWriter) write(v uint64, width uint) {
	for i := int(width) - 1; i >= 0; i-- {
		if w.nbits%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		if (v>>uint(i))&1 == 1 {
			w.buf[w.nbits/8] |= 0x80 >> uint(w.nbits%8)
		}
		w.nbits++
	}
}

func (w *bitWriter) bytes() []byte {
	return w.buf
}

// bitReader is the inverse of bitWriter.
type bitReader struct {
	buf []byte
	pos int
}

func (r *bitReader) remaining() int {
	return len(r.buf)*8 - r.pos
}

func (r *bitReader) read(width uint) (uint64, bool) {
	if r.remaining() < int(width) {
		return 0, false
	}
	var v uint64
	for i := uint(0); i < width; i++ {
		bit := (r.buf[r.pos/8] >> (7 - uint(r.pos%8))) & 1
		v = v<<1 | uint64(bit)
		r.pos++
	}
	return v, true
}
