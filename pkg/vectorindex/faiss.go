package vectorindex

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	metricL2   int32 = 1
	faissDummy int64 = 1 << 20
)

var (
	fourccFlatL2     = [4]byte{'I', 'x', 'F', '2'}
	fourccFlatLegacy = [4]byte{'I', 'x', 'F', 'l'}
	fourccFlatIP     = [4]byte{'I', 'x', 'F', 'I'}
)

var (
	// ErrUnsupportedFormat 表示文件不是 FAISS 扁平索引。
	ErrUnsupportedFormat = errors.New("unsupported faiss index format")
	// ErrUnsupportedMetric 表示索引不是 L2 度量。
	ErrUnsupportedMetric = errors.New("unsupported faiss metric")
)

// ReadFAISS 解析 faiss.write_index 写出的 IndexFlatL2。
func ReadFAISS(r io.Reader) (*Flat, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("reading fourcc: %w", err)
	}
	switch magic {
	case fourccFlatL2, fourccFlatLegacy:
	case fourccFlatIP:
		return nil, fmt.Errorf("%w: inner product", ErrUnsupportedMetric)
	default:
		return nil, fmt.Errorf("%w: fourcc %q", ErrUnsupportedFormat, string(magic[:]))
	}

	var hdr struct {
		D         int32
		NTotal    int64
		Dummy1    int64
		Dummy2    int64
		IsTrained uint8
		Metric    int32
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if hdr.Metric != metricL2 {
		return nil, fmt.Errorf("%w: metric type %d", ErrUnsupportedMetric, hdr.Metric)
	}
	if hdr.D <= 0 || hdr.NTotal < 0 {
		return nil, fmt.Errorf("%w: d=%d ntotal=%d", ErrUnsupportedFormat, hdr.D, hdr.NTotal)
	}

	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("reading vector count: %w", err)
	}
	if count != uint64(hdr.NTotal)*uint64(hdr.D) {
		return nil, fmt.Errorf("%w: %d floats for ntotal=%d d=%d", ErrUnsupportedFormat, count, hdr.NTotal, hdr.D)
	}

	vectors := make([]float32, count)
	if err := binary.Read(r, binary.LittleEndian, vectors); err != nil {
		return nil, fmt.Errorf("reading vectors: %w", err)
	}
	return &Flat{dim: int(hdr.D), vectors: vectors}, nil
}

// WriteFAISS 以 faiss.read_index 可读取的格式写出索引。
func WriteFAISS(w io.Writer, f *Flat) error {
	bw := bufio.NewWriter(w)
	fields := []interface{}{
		fourccFlatL2,
		int32(f.dim),
		int64(f.Len()),
		faissDummy,
		faissDummy,
		uint8(1),
		metricL2,
		uint64(len(f.vectors)),
		f.vectors,
	}
	for _, v := range fields {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("writing faiss index: %w", err)
		}
	}
	return bw.Flush()
}

// LoadFile 从磁盘读取索引文件。
func LoadFile(path string) (*Flat, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadFAISS(bufio.NewReader(file))
}

// SaveFile 先写临时文件再重命名，避免读者看到写了一半的索引。
func SaveFile(path string, f *Flat) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := WriteFAISS(tmp, f); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming index file: %w", err)
	}
	return nil
}
