package serialize

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/blockwall/netfilter/internal/hashutil"
)

// errTruncated is returned by every reader helper on a short read, folded
// into [ErrDeserialization] by the caller so partial/corrupt payloads never
// leak an io.EOF or io.ErrUnexpectedEOF past this package's boundary.
var errTruncated = errors.New("serialize: truncated stream")

type writer struct {
	w   io.Writer
	err error
}

func (w *writer) uint8(v uint8) {
	if w.err != nil {
		return
	}

	_, w.err = w.w.Write([]byte{v})
}

func (w *writer) bool(v bool) {
	if v {
		w.uint8(1)
	} else {
		w.uint8(0)
	}
}

func (w *writer) uint32(v uint32) {
	if w.err != nil {
		return
	}

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, w.err = w.w.Write(buf[:])
}

func (w *writer) uint64(v uint64) {
	if w.err != nil {
		return
	}

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, w.err = w.w.Write(buf[:])
}

func (w *writer) int32(v int32) { w.uint32(uint32(v)) }

func (w *writer) hash(h hashutil.Hash) { w.uint64(uint64(h)) }

func (w *writer) hashes(hs []hashutil.Hash) {
	w.uint32(uint32(len(hs)))
	for _, h := range hs {
		w.hash(h)
	}
}

func (w *writer) str(s string) {
	w.uint32(uint32(len(s)))
	if w.err != nil || s == "" {
		return
	}

	_, w.err = io.WriteString(w.w, s)
}

func (w *writer) strs(ss []string) {
	w.uint32(uint32(len(ss)))
	for _, s := range ss {
		w.str(s)
	}
}

func (w *writer) bytes(b []byte) {
	w.uint32(uint32(len(b)))
	if w.err != nil || len(b) == 0 {
		return
	}

	_, w.err = w.w.Write(b)
}

type reader struct {
	r   io.Reader
	err error
}

func (r *reader) uint8() uint8 {
	if r.err != nil {
		return 0
	}

	var buf [1]byte
	if _, err := io.ReadFull(r.r, buf[:]); err != nil {
		r.err = errTruncated

		return 0
	}

	return buf[0]
}

func (r *reader) bool() bool { return r.uint8() != 0 }

func (r *reader) uint32() uint32 {
	if r.err != nil {
		return 0
	}

	var buf [4]byte
	if _, err := io.ReadFull(r.r, buf[:]); err != nil {
		r.err = errTruncated

		return 0
	}

	return binary.LittleEndian.Uint32(buf[:])
}

func (r *reader) uint64() uint64 {
	if r.err != nil {
		return 0
	}

	var buf [8]byte
	if _, err := io.ReadFull(r.r, buf[:]); err != nil {
		r.err = errTruncated

		return 0
	}

	return binary.LittleEndian.Uint64(buf[:])
}

func (r *reader) int32() int32 { return int32(r.uint32()) }

func (r *reader) hash() hashutil.Hash { return hashutil.Hash(r.uint64()) }

func (r *reader) hashes() []hashutil.Hash {
	n := r.uint32()
	if r.err != nil || n == 0 {
		return nil
	}

	out := make([]hashutil.Hash, n)
	for i := range out {
		out[i] = r.hash()
	}

	return out
}

func (r *reader) str() string {
	n := r.uint32()
	if r.err != nil || n == 0 {
		return ""
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		r.err = errTruncated

		return ""
	}

	return string(buf)
}

func (r *reader) strs() []string {
	n := r.uint32()
	if r.err != nil || n == 0 {
		return nil
	}

	out := make([]string, n)
	for i := range out {
		out[i] = r.str()
	}

	return out
}

func (r *reader) bytes() []byte {
	n := r.uint32()
	if r.err != nil || n == 0 {
		return nil
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		r.err = errTruncated

		return nil
	}

	return buf
}

// atEOF reports whether the next read would immediately hit end of stream,
// used to tell "Part 2 is simply absent" (an older writer) apart from
// "Part 2 is truncated mid-field" (corruption).
func (r *reader) atEOF() bool {
	if r.err != nil {
		return true
	}

	var buf [1]byte
	n, err := io.ReadFull(r.r, buf[:])
	if n == 0 && err != nil {
		return true
	}

	if n == 1 {
		r.r = io.MultiReader(bytes.NewReader(buf[:]), r.r)
	}

	return false
}
