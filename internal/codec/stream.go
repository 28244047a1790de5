package codec

import "math"

// Writer дописывает значения в конец растущего буфера.
type Writer struct {
	buf []byte
}

// NewWriter создаёт Writer с заранее выделенной ёмкостью.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

func (w *Writer) grow(n int) int {
	off := len(w.buf)
	if cap(w.buf)-off < n {
		next := make([]byte, off, 2*cap(w.buf)+n)
		copy(next, w.buf)
		w.buf = next
	}
	w.buf = w.buf[:off+n]
	return off
}

func (w *Writer) WriteUint8(v uint8) {
	off := w.grow(1)
	w.buf[off] = v
}

func (w *Writer) WriteShort(v uint16) {
	PutShort(w.buf, w.grow(ShortSize), v)
}

func (w *Writer) WriteInt(v int32) {
	PutInt(w.buf, w.grow(IntSize), uint32(v))
}

func (w *Writer) WriteUint32(v uint32) {
	PutInt(w.buf, w.grow(IntSize), v)
}

func (w *Writer) WriteFloat(v float32) {
	PutFloat(w.buf, w.grow(FloatSize), v)
}

func (w *Writer) WriteBoolean(v bool) {
	PutBoolean(w.buf, w.grow(BooleanSize), v)
}

func (w *Writer) WriteBytes(p []byte) {
	off := w.grow(len(p))
	copy(w.buf[off:], p)
}

// WriteShortString пишет строку с 1-байтовым префиксом длины (имена игроков).
func (w *Writer) WriteShortString(s string) error {
	if len(s) > math.MaxUint8 {
		return ErrStringTooLong
	}
	w.WriteUint8(uint8(len(s)))
	w.WriteBytes([]byte(s))
	return nil
}

// WriteString пишет строку с 2-байтовым префиксом длины (консольный текст).
func (w *Writer) WriteString(s string) error {
	if len(s) > math.MaxUint16 {
		return ErrStringTooLong
	}
	w.WriteShort(uint16(len(s)))
	w.WriteBytes([]byte(s))
	return nil
}

// Reserve резервирует n байт и возвращает их смещение для последующего Put*.
func (w *Writer) Reserve(n int) int {
	return w.grow(n)
}

// Bytes возвращает записанные байты (без копирования).
func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) Len() int { return len(w.buf) }

// Reader читает значения с курсором. Любое чтение за концом буфера
// возвращает ErrTruncatedMessage и не сдвигает курсор.
type Reader struct {
	buf []byte
	off int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) ReadUint8() (uint8, error) {
	if r.off >= len(r.buf) {
		return 0, ErrTruncatedMessage
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *Reader) ReadShort() (uint16, error) {
	v, err := GetShort(r.buf, r.off)
	if err == nil {
		r.off += ShortSize
	}
	return v, err
}

func (r *Reader) ReadUint32() (uint32, error) {
	v, err := GetInt(r.buf, r.off)
	if err == nil {
		r.off += IntSize
	}
	return v, err
}

func (r *Reader) ReadInt() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *Reader) ReadFloat() (float32, error) {
	v, err := GetFloat(r.buf, r.off)
	if err == nil {
		r.off += FloatSize
	}
	return v, err
}

func (r *Reader) ReadBoolean() (bool, error) {
	v, err := GetBoolean(r.buf, r.off)
	if err == nil {
		r.off += BooleanSize
	}
	return v, err
}

// ReadFully возвращает копию следующих n байт.
func (r *Reader) ReadFully(n int) ([]byte, error) {
	out, err := ReadFully(r.buf, r.off, n)
	if err == nil {
		r.off += n
	}
	return out, err
}

// Slice возвращает следующие n байт без копирования.
func (r *Reader) Slice(n int) ([]byte, error) {
	if n < 0 || !inRange(r.buf, r.off, n) {
		return nil, ErrTruncatedMessage
	}
	out := r.buf[r.off : r.off+n : r.off+n]
	r.off += n
	return out, nil
}

func (r *Reader) ReadShortString() (string, error) {
	n, err := r.ReadUint8()
	if err != nil {
		return "", err
	}
	b, err := r.Slice(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadShort()
	if err != nil {
		return "", err
	}
	b, err := r.Slice(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Reader) Remaining() int { return len(r.buf) - r.off }

func (r *Reader) Offset() int { return r.off }
