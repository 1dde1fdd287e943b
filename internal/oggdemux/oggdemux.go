// Package oggdemux implements a minimal single-logical-stream Ogg page
// reader. It exists because the pack's Ogg libraries (oggvorbis, vorbis) are
// coupled to the Vorbis codec, and Opus files are plain Ogg containers with
// no Vorbis-specific framing; extracting raw Opus packets needs only the
// generic Ogg page/segment structure, which this package hand-parses the
// same way the player's MP3 path hand-parses ID3/Xing headers.
package oggdemux

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
)

var ErrBadCapture = errors.New("oggdemux: bad page capture pattern")

// Page is one parsed Ogg page header plus its assembled packet data.
type Page struct {
	GranulePos int64
	Serial     uint32
	PageSeq    uint32
	IsFirst    bool
	IsLast     bool
	Packets    [][]byte
	Incomplete bool // last packet continues into the next page
}

// Reader reads Ogg pages and reassembles packets that span pages, tracking
// a single logical bitstream (identified by the serial of the first page
// seen). Multiplexed streams with a different serial are skipped.
type Reader struct {
	r      *bufio.Reader
	serial uint32
	have   bool
	carry  []byte // partial packet carried over from a page marked Incomplete
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 65536)}
}

// NextPage reads and returns the next page belonging to the locked serial
// (the first page's serial), skipping pages from other logical streams.
func (d *Reader) NextPage() (*Page, error) {
	for {
		p, err := d.readOnePage()
		if err != nil {
			return nil, err
		}
		if !d.have {
			d.serial = p.Serial
			d.have = true
		}
		if p.Serial != d.serial {
			continue
		}
		if len(d.carry) > 0 && len(p.Packets) > 0 {
			p.Packets[0] = append(append([]byte{}, d.carry...), p.Packets[0]...)
			d.carry = nil
		}
		if p.Incomplete && len(p.Packets) > 0 {
			d.carry = p.Packets[len(p.Packets)-1]
			p.Packets = p.Packets[:len(p.Packets)-1]
		}
		return p, nil
	}
}

func (d *Reader) readOnePage() (*Page, error) {
	hdr := make([]byte, 27)
	if _, err := io.ReadFull(d.r, hdr); err != nil {
		return nil, err
	}
	if string(hdr[0:4]) != "OggS" {
		return nil, ErrBadCapture
	}

	headerType := hdr[5]
	granule := int64(binary.LittleEndian.Uint64(hdr[6:14]))
	serial := binary.LittleEndian.Uint32(hdr[14:18])
	seq := binary.LittleEndian.Uint32(hdr[18:22])
	segCount := int(hdr[26])

	segTable := make([]byte, segCount)
	if _, err := io.ReadFull(d.r, segTable); err != nil {
		return nil, err
	}

	var packets [][]byte
	var cur []byte
	incomplete := false
	for _, segLen := range segTable {
		buf := make([]byte, segLen)
		if segLen > 0 {
			if _, err := io.ReadFull(d.r, buf); err != nil {
				return nil, err
			}
		}
		cur = append(cur, buf...)
		if segLen < 255 {
			packets = append(packets, cur)
			cur = nil
			incomplete = false
		} else {
			incomplete = true
		}
	}
	if incomplete {
		packets = append(packets, cur)
	}

	return &Page{
		GranulePos: granule,
		Serial:     serial,
		PageSeq:    seq,
		IsFirst:    headerType&0x02 != 0,
		IsLast:     headerType&0x04 != 0,
		Packets:    packets,
		Incomplete: incomplete,
	}, nil
}
