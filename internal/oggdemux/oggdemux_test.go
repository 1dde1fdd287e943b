package oggdemux

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

// writePage encodes one raw Ogg page from a single segment of data, matching
// the on-disk layout readOnePage expects.
func writePage(w *bytes.Buffer, serial, seq uint32, headerType byte, granule int64, data []byte) {
	w.WriteString("OggS")
	w.WriteByte(0) // version
	w.WriteByte(headerType)
	var granuleBuf [8]byte
	binary.LittleEndian.PutUint64(granuleBuf[:], uint64(granule))
	w.Write(granuleBuf[:])
	var serialBuf [4]byte
	binary.LittleEndian.PutUint32(serialBuf[:], serial)
	w.Write(serialBuf[:])
	var seqBuf [4]byte
	binary.LittleEndian.PutUint32(seqBuf[:], seq)
	w.Write(seqBuf[:])
	w.Write([]byte{0, 0, 0, 0}) // checksum, unchecked by the reader

	segs := segmentTableFor(len(data))
	w.WriteByte(byte(len(segs)))
	for _, s := range segs {
		w.WriteByte(s)
	}
	w.Write(data)
}

// segmentTableFor lays out a lacing table for a single packet of length n,
// terminating with a segment < 255 (or an explicit zero-length terminator
// when n is itself a multiple of 255) so the packet is not left incomplete.
func segmentTableFor(n int) []byte {
	var segs []byte
	for n >= 255 {
		segs = append(segs, 255)
		n -= 255
	}
	segs = append(segs, byte(n))
	return segs
}

func TestReaderReassemblesSinglePagePacket(t *testing.T) {
	var buf bytes.Buffer
	writePage(&buf, 42, 0, 0x02, 0, []byte("hello"))

	r := NewReader(&buf)
	page, err := r.NextPage()
	if err != nil {
		t.Fatalf("NextPage() error = %v", err)
	}
	if !page.IsFirst {
		t.Fatalf("IsFirst = false, want true")
	}
	if len(page.Packets) != 1 || string(page.Packets[0]) != "hello" {
		t.Fatalf("Packets = %v, want [hello]", page.Packets)
	}
}

func TestReaderSkipsOtherLogicalStreams(t *testing.T) {
	var buf bytes.Buffer
	writePage(&buf, 1, 0, 0x02, 0, []byte("first"))
	writePage(&buf, 2, 0, 0x02, 0, []byte("other"))
	writePage(&buf, 1, 1, 0, 10, []byte("second"))

	r := NewReader(&buf)
	p1, err := r.NextPage()
	if err != nil {
		t.Fatalf("NextPage() #1 error = %v", err)
	}
	if p1.Serial != 1 {
		t.Fatalf("locked serial = %d, want 1", p1.Serial)
	}

	p2, err := r.NextPage()
	if err != nil {
		t.Fatalf("NextPage() #2 error = %v", err)
	}
	if string(p2.Packets[0]) != "second" {
		t.Fatalf("Packets[0] = %q, want %q (page for serial 2 should be skipped)", p2.Packets[0], "second")
	}
}

func TestReaderReassemblesPacketSpanningPages(t *testing.T) {
	var buf bytes.Buffer

	// First page: a single 255-byte segment with no terminator, so the
	// packet carries over into the next page (Incomplete).
	part1 := bytes.Repeat([]byte{'a'}, 255)
	buf.WriteString("OggS")
	buf.WriteByte(0)
	buf.WriteByte(0x02)
	buf.Write(make([]byte, 8)) // granule
	var serialBuf [4]byte
	binary.LittleEndian.PutUint32(serialBuf[:], 7)
	buf.Write(serialBuf[:])
	buf.Write(make([]byte, 4)) // seq
	buf.Write(make([]byte, 4)) // checksum
	buf.WriteByte(1)
	buf.WriteByte(255)
	buf.Write(part1)

	part2 := []byte("tail")
	writePage(&buf, 7, 1, 0, 0, part2)

	r := NewReader(&buf)
	p1, err := r.NextPage()
	if err != nil {
		t.Fatalf("NextPage() #1 error = %v", err)
	}
	if len(p1.Packets) != 0 {
		t.Fatalf("Packets on incomplete first page = %v, want none yet", p1.Packets)
	}

	p2, err := r.NextPage()
	if err != nil {
		t.Fatalf("NextPage() #2 error = %v", err)
	}
	if len(p2.Packets) != 1 {
		t.Fatalf("len(Packets) = %d, want 1 reassembled packet", len(p2.Packets))
	}
	want := append(append([]byte{}, part1...), part2...)
	if !bytes.Equal(p2.Packets[0], want) {
		t.Fatalf("reassembled packet length = %d, want %d", len(p2.Packets[0]), len(want))
	}
}

func TestReaderRejectsBadCapturePattern(t *testing.T) {
	buf := bytes.NewBufferString("NotOgg!!!!!!!!!!!!!!!!!!!!!")
	r := NewReader(buf)
	_, err := r.NextPage()
	if err != ErrBadCapture {
		t.Fatalf("NextPage() error = %v, want ErrBadCapture", err)
	}
}

func TestReaderReturnsEOFAtEndOfStream(t *testing.T) {
	var buf bytes.Buffer
	writePage(&buf, 1, 0, 0x02, 0, []byte("only"))

	r := NewReader(&buf)
	if _, err := r.NextPage(); err != nil {
		t.Fatalf("NextPage() #1 error = %v", err)
	}
	if _, err := r.NextPage(); err != io.EOF {
		t.Fatalf("NextPage() #2 error = %v, want io.EOF", err)
	}
}
