package vectorindex

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

// File layout, little endian:
//
//	magic    [4]byte "LBVI"
//	version  uint16
//	kind     uint8   0 flat, 1 partitioned
//	reserved uint8
//	dim      uint32
//	count    uint64  live vectors
//	next     int64   next position to assign
//	pairing  [16]byte
//	records  count x (pos int64, dim x float32), ascending pos
//	nlist    uint32            (partitioned only)
//	centroid nlist x dim x float32 (partitioned only)
//	crc32    uint32  IEEE over everything before it
const (
	fileVersion = 1
	headerSize  = 4 + 2 + 1 + 1 + 4 + 8 + 8 + 16

	kindFlat        = 0
	kindPartitioned = 1
)

var fileMagic = [4]byte{'L', 'B', 'V', 'I'}

// Save writes the index to path. The file is written to a temporary
// sibling, synced and renamed into place.
func (ix *Index) Save(path string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp index file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := ix.writeTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("writing index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing index: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming index: %w", err)
	}
	return nil
}

// writeTo encodes the index (caller must hold read lock).
func (ix *Index) writeTo(w io.Writer) error {
	crc := crc32.NewIEEE()
	bw := bufio.NewWriter(io.MultiWriter(w, crc))

	kind := uint8(kindFlat)
	if ix.ivf != nil {
		kind = kindPartitioned
	}

	var header [headerSize]byte
	copy(header[0:4], fileMagic[:])
	binary.LittleEndian.PutUint16(header[4:6], fileVersion)
	header[6] = kind
	binary.LittleEndian.PutUint32(header[8:12], uint32(ix.dim))
	binary.LittleEndian.PutUint64(header[12:20], uint64(ix.count))
	binary.LittleEndian.PutUint64(header[20:28], uint64(ix.next))
	copy(header[28:44], ix.pairing[:])
	if _, err := bw.Write(header[:]); err != nil {
		return err
	}

	buf := make([]byte, 8+4*ix.dim)
	for s, pos := range ix.positions {
		if !ix.live[s] {
			continue
		}
		binary.LittleEndian.PutUint64(buf[0:8], uint64(pos))
		putFloats(buf[8:], ix.vector(s))
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}

	if ix.ivf != nil {
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(ix.ivf.centroids)))
		if _, err := bw.Write(n[:]); err != nil {
			return err
		}
		cbuf := make([]byte, 4*ix.dim)
		for _, c := range ix.ivf.centroids {
			putFloats(cbuf, c)
			if _, err := bw.Write(cbuf); err != nil {
				return err
			}
		}
	}

	if err := bw.Flush(); err != nil {
		return err
	}
	var sum [4]byte
	binary.LittleEndian.PutUint32(sum[:], crc.Sum32())
	_, err := w.Write(sum[:])
	return err
}

// Load reads an index written by Save. A missing file fails with an
// IndexError of kind Missing, an unreadable one with kind Corrupt.
func Load(path string, opts ...Option) (*Index, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &domain.IndexError{Kind: domain.IndexMissing, Path: path}
	}
	if err != nil {
		return nil, &domain.IndexError{Kind: domain.IndexCorrupt, Path: path, Err: err}
	}

	ix, err := decode(data, opts...)
	if err != nil {
		return nil, &domain.IndexError{Kind: domain.IndexCorrupt, Path: path, Err: err}
	}
	return ix, nil
}

func decode(data []byte, opts ...Option) (*Index, error) {
	if len(data) < headerSize+4 {
		return nil, errors.New("file too short")
	}
	body, trailer := data[:len(data)-4], data[len(data)-4:]
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(trailer) {
		return nil, errors.New("checksum mismatch")
	}
	if [4]byte(body[0:4]) != fileMagic {
		return nil, errors.New("bad magic")
	}
	if v := binary.LittleEndian.Uint16(body[4:6]); v != fileVersion {
		return nil, fmt.Errorf("unsupported version %d", v)
	}
	kind := body[6]
	if kind != kindFlat && kind != kindPartitioned {
		return nil, fmt.Errorf("unknown kind %d", kind)
	}
	dim := int(binary.LittleEndian.Uint32(body[8:12]))
	count := binary.LittleEndian.Uint64(body[12:20])
	next := int64(binary.LittleEndian.Uint64(body[20:28]))
	pairing, err := uuid.FromBytes(body[28:44])
	if err != nil {
		return nil, fmt.Errorf("pairing id: %w", err)
	}
	if dim < 1 {
		return nil, errors.New("zero dimension")
	}

	width := 4 * uint64(dim)
	record := 8 + width
	rest := body[headerSize:]
	if count > uint64(len(rest))/record {
		return nil, errors.New("truncated records")
	}

	ix, err := New(dim, append(opts, WithPairingID(pairing))...)
	if err != nil {
		return nil, err
	}
	ix.next = next

	prev := int64(-1)
	for i := uint64(0); i < count; i++ {
		rec := rest[i*record : (i+1)*record]
		pos := int64(binary.LittleEndian.Uint64(rec[0:8]))
		if pos <= prev || pos >= next {
			return nil, fmt.Errorf("record %d: position %d out of order", i, pos)
		}
		prev = pos
		ix.appendSlot(pos, getFloats(rec[8:], dim))
	}
	rest = rest[count*record:]

	if kind == kindPartitioned {
		if len(rest) < 4 {
			return nil, errors.New("truncated partitions")
		}
		nlist := uint64(binary.LittleEndian.Uint32(rest[0:4]))
		rest = rest[4:]
		size := uint64(len(rest))
		if nlist < 1 || size%width != 0 || size/width != nlist {
			return nil, errors.New("bad partition section")
		}
		p := &ivf{centroids: make([][]float32, nlist)}
		for c := range p.centroids {
			p.centroids[c] = getFloats(rest[c*4*dim:], dim)
		}
		p.reassign(ix)
		ix.ivf = p
		rest = nil
	}
	if len(rest) != 0 {
		return nil, errors.New("trailing bytes")
	}
	return ix, nil
}

func putFloats(dst []byte, v []float32) {
	for i, x := range v {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(x))
	}
}

func getFloats(src []byte, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return out
}
