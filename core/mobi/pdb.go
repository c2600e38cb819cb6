package mobi

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

const (
	pdbHeaderSize   = 78
	pdbRecordSize   = 8
	pdbTypeOffset   = 60
	pdbRecordsCount = 76
)

var (
	typeMOBI     = []byte("BOOKMOBI")
	typeTextRead = []byte("TEXtREAd")
)

// Probe reports whether r holds a Palm database of the MOBI or PalmDOC type.
func Probe(r io.ReaderAt, size int64) bool {
	if size < pdbHeaderSize {
		return false
	}
	var magic [8]byte
	if _, err := r.ReadAt(magic[:], pdbTypeOffset); err != nil {
		return false
	}
	return bytes.Equal(magic[:], typeMOBI) || bytes.Equal(magic[:], typeTextRead)
}

// pdb is a parsed Palm database: a name and a list of records.
type pdb struct {
	name    string
	kind    string
	records [][]byte
}

func parsePDB(data []byte) (*pdb, error) {
	if len(data) < pdbHeaderSize {
		return nil, fmt.Errorf("palm database header truncated")
	}
	n := int(binary.BigEndian.Uint16(data[pdbRecordsCount:]))
	if n == 0 {
		return nil, fmt.Errorf("palm database has no records")
	}
	if len(data) < pdbHeaderSize+n*pdbRecordSize {
		return nil, fmt.Errorf("palm database record list truncated")
	}

	offsets := make([]int, n+1)
	for i := 0; i < n; i++ {
		offsets[i] = int(binary.BigEndian.Uint32(data[pdbHeaderSize+i*pdbRecordSize:]))
	}
	offsets[n] = len(data)

	p := &pdb{
		name: strings.TrimSpace(strings.ReplaceAll(string(bytes.TrimRight(data[:32], "\x00")), "_", " ")),
		kind: string(data[pdbTypeOffset : pdbTypeOffset+8]),
	}
	for i := 0; i < n; i++ {
		start, end := offsets[i], offsets[i+1]
		if start > end || end > len(data) {
			return nil, fmt.Errorf("palm database record %d out of range", i)
		}
		p.records = append(p.records, data[start:end])
	}
	return p, nil
}

// header is the PalmDOC header in record 0, followed by the optional MOBI
// header and EXTH block.
type header struct {
	compression  uint16
	textLength   uint32
	textRecords  int
	encryption   uint16
	mobi         bool
	encoding     int
	title        string
	firstImage   int
	trailingBits uint16
	exth         map[uint32][][]byte
}

const (
	compressionNone    = 1
	compressionPalmDOC = 2
	compressionHuffCDC = 17480
)

func parseHeader(rec []byte) (*header, error) {
	if len(rec) < 16 {
		return nil, fmt.Errorf("record 0 truncated")
	}
	h := &header{
		compression: binary.BigEndian.Uint16(rec[0:]),
		textLength:  binary.BigEndian.Uint32(rec[4:]),
		textRecords: int(binary.BigEndian.Uint16(rec[8:])),
		encryption:  binary.BigEndian.Uint16(rec[12:]),
		encoding:    1252,
		firstImage:  -1,
	}
	if len(rec) < 24 || string(rec[16:20]) != "MOBI" {
		return h, nil
	}

	h.mobi = true
	length := int(binary.BigEndian.Uint32(rec[20:]))
	field := func(off int) (uint32, bool) {
		if off+4 > len(rec) || off+4 > 16+length {
			return 0, false
		}
		return binary.BigEndian.Uint32(rec[off:]), true
	}
	if v, ok := field(28); ok {
		h.encoding = int(v)
	}
	nameOff, ok1 := field(84)
	nameLen, ok2 := field(88)
	if ok1 && ok2 && int(nameOff)+int(nameLen) <= len(rec) {
		h.title = string(rec[nameOff : nameOff+nameLen])
	}
	if v, ok := field(108); ok && v != 0xFFFFFFFF {
		h.firstImage = int(v)
	}
	if length >= 0xE4 && 16+0xE4 <= len(rec) {
		h.trailingBits = binary.BigEndian.Uint16(rec[16+0xE2:])
	}
	if flags, ok := field(128); ok && flags&0x40 != 0 {
		h.exth = parseEXTH(rec[min(16+length, len(rec)):])
	}
	return h, nil
}

func parseEXTH(b []byte) map[uint32][][]byte {
	if len(b) < 12 || string(b[:4]) != "EXTH" {
		return nil
	}
	count := int(binary.BigEndian.Uint32(b[8:]))
	out := make(map[uint32][][]byte)
	pos := 12
	for i := 0; i < count && pos+8 <= len(b); i++ {
		kind := binary.BigEndian.Uint32(b[pos:])
		size := int(binary.BigEndian.Uint32(b[pos+4:]))
		if size < 8 || pos+size > len(b) {
			break
		}
		out[kind] = append(out[kind], b[pos+8:pos+size])
		pos += size
	}
	return out
}

// trimTrailing strips the trailing entries a MOBI text record may carry.
func trimTrailing(rec []byte, flags uint16) []byte {
	for bits := flags >> 1; bits != 0; bits >>= 1 {
		if bits&1 == 0 {
			continue
		}
		n := varLenFromEnd(rec)
		if n <= 0 || n > len(rec) {
			return rec
		}
		rec = rec[:len(rec)-n]
	}
	if flags&1 != 0 && len(rec) > 0 {
		n := int(rec[len(rec)-1]&3) + 1
		if n <= len(rec) {
			rec = rec[:len(rec)-n]
		}
	}
	return rec
}

// varLenFromEnd decodes the backward variable-width integer at the end of b.
func varLenFromEnd(b []byte) int {
	tail := b[max(0, len(b)-4):]
	v := 0
	for _, c := range tail {
		if c&0x80 != 0 {
			v = 0
		}
		v = v<<7 | int(c&0x7F)
	}
	return v
}
