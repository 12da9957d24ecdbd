package raster

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/geolumen/nightlights/internal/domain"
)

// Minimal GeoTIFF codec for the rasters this pipeline produces and consumes:
// single band, uncompressed, striped, float32 or byte samples, georeferenced
// through ModelPixelScale + ModelTiepoint in EPSG:4326.

var ErrNotGeoTIFF = errors.New("not a decodable GeoTIFF")

const (
	tagImageWidth       = 256
	tagImageLength      = 257
	tagBitsPerSample    = 258
	tagCompression      = 259
	tagPhotometric      = 262
	tagStripOffsets     = 273
	tagSamplesPerPixel  = 277
	tagRowsPerStrip     = 278
	tagStripByteCounts  = 279
	tagSampleFormat     = 339
	tagModelPixelScale  = 33550
	tagModelTiepoint    = 33922
	tagGeoKeyDirectory  = 34735
	tagGDALNoData       = 42113
	typeASCII           = 2
	typeShort           = 3
	typeLong            = 4
	typeDouble          = 12
	sampleFormatUint    = 1
	sampleFormatFloat   = 3
	compressionNone     = 1
	photometricMinBlack = 1
)

// EncodeGeoTIFF writes the raster as a float32 GeoTIFF.
func EncodeGeoTIFF(r *Raster, path string) error {
	return encodeGeoTIFF(r, path, false)
}

// EncodeGeoTIFFByte writes the 8-bit scaled representation of the raster,
// the precision gdal2tiles-style tiling expects.
func EncodeGeoTIFFByte(r *Raster, path string) error {
	return encodeGeoTIFF(r, path, true)
}

func encodeGeoTIFF(r *Raster, path string, asBytes bool) error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("encode geotiff: empty raster")
	}

	bytesPerSample := 4
	bits := uint16(32)
	format := uint16(sampleFormatFloat)
	if asBytes {
		bytesPerSample = 1
		bits = 8
		format = sampleFormatUint
	}

	const entryCount = 14
	// header(8) + count(2) + entries(12 each) + next offset(4)
	ifdEnd := uint32(8 + 2 + entryCount*12 + 4)
	scaleOffset := ifdEnd
	tiepointOffset := scaleOffset + 3*8
	geoKeysOffset := tiepointOffset + 6*8
	pixelOffset := geoKeysOffset + 16*2
	pixelBytes := uint32(r.Width * r.Height * bytesPerSample)

	order := binary.LittleEndian
	buf := make([]byte, 0, pixelOffset+pixelBytes)

	// Header.
	buf = append(buf, 'I', 'I')
	buf = order.AppendUint16(buf, 42)
	buf = order.AppendUint32(buf, 8)

	// IFD. Entries must be sorted by tag.
	buf = order.AppendUint16(buf, entryCount)
	appendEntry := func(tag, fieldType uint16, count, value uint32) {
		buf = order.AppendUint16(buf, tag)
		buf = order.AppendUint16(buf, fieldType)
		buf = order.AppendUint32(buf, count)
		buf = order.AppendUint32(buf, value)
	}
	appendEntry(tagImageWidth, typeLong, 1, uint32(r.Width))
	appendEntry(tagImageLength, typeLong, 1, uint32(r.Height))
	appendEntry(tagBitsPerSample, typeShort, 1, uint32(bits))
	appendEntry(tagCompression, typeShort, 1, compressionNone)
	appendEntry(tagPhotometric, typeShort, 1, photometricMinBlack)
	appendEntry(tagStripOffsets, typeLong, 1, pixelOffset)
	appendEntry(tagSamplesPerPixel, typeShort, 1, 1)
	appendEntry(tagRowsPerStrip, typeLong, 1, uint32(r.Height))
	appendEntry(tagStripByteCounts, typeLong, 1, pixelBytes)
	appendEntry(tagSampleFormat, typeShort, 1, uint32(format))
	appendEntry(tagModelPixelScale, typeDouble, 3, scaleOffset)
	appendEntry(tagModelTiepoint, typeDouble, 6, tiepointOffset)
	appendEntry(tagGeoKeyDirectory, typeShort, 16, geoKeysOffset)
	// "0" + NUL fits inline.
	buf = order.AppendUint16(buf, tagGDALNoData)
	buf = order.AppendUint16(buf, typeASCII)
	buf = order.AppendUint32(buf, 2)
	buf = append(buf, '0', 0, 0, 0)
	// No further IFDs.
	buf = order.AppendUint32(buf, 0)

	// ModelPixelScale: pixel size in degrees, Z unused.
	for _, v := range []float64{r.PixelWidth(), r.PixelHeight(), 0} {
		buf = order.AppendUint64(buf, math.Float64bits(v))
	}
	// ModelTiepoint: raster (0,0) pins to the northwest corner.
	for _, v := range []float64{0, 0, 0, r.Bounds.MinX, r.Bounds.MaxY, 0} {
		buf = order.AppendUint64(buf, math.Float64bits(v))
	}
	// GeoKeyDirectory: geographic model, pixel-is-area, EPSG:4326.
	for _, v := range []uint16{
		1, 1, 0, 3,
		1024, 0, 1, 2,
		1025, 0, 1, 1,
		2048, 0, 1, 4326,
	} {
		buf = order.AppendUint16(buf, v)
	}

	if asBytes {
		buf = append(buf, r.ScaleToBytes()...)
	} else {
		for _, value := range r.Pixels {
			buf = order.AppendUint32(buf, math.Float32bits(float32(value)))
		}
	}

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("encode geotiff: %w", err)
	}
	return nil
}

// DecodeGeoTIFF reads a GeoTIFF within the codec's subset. Undecodable input
// yields ErrNotGeoTIFF so callers can take the synthetic fallback path.
func DecodeGeoTIFF(path string) (*Raster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read raster %s: %w", path, err)
	}
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: file too short", ErrNotGeoTIFF)
	}

	var order binary.ByteOrder
	switch {
	case data[0] == 'I' && data[1] == 'I':
		order = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: bad byte-order mark", ErrNotGeoTIFF)
	}
	if order.Uint16(data[2:4]) != 42 {
		return nil, fmt.Errorf("%w: bad magic", ErrNotGeoTIFF)
	}

	ifdOffset := order.Uint32(data[4:8])
	entries, err := parseIFD(data, order, ifdOffset)
	if err != nil {
		return nil, err
	}

	width := int(entries.firstInt(order, tagImageWidth, 0))
	height := int(entries.firstInt(order, tagImageLength, 0))
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid dimensions %dx%d", ErrNotGeoTIFF, width, height)
	}
	if entries.firstInt(order, tagCompression, compressionNone) != compressionNone {
		return nil, fmt.Errorf("%w: compressed rasters unsupported", ErrNotGeoTIFF)
	}
	if entries.firstInt(order, tagSamplesPerPixel, 1) != 1 {
		return nil, fmt.Errorf("%w: multi-band rasters unsupported", ErrNotGeoTIFF)
	}

	bits := entries.firstInt(order, tagBitsPerSample, 1)
	format := entries.firstInt(order, tagSampleFormat, sampleFormatUint)

	scale, err := entries.doubles(data, order, tagModelPixelScale)
	if err != nil || len(scale) < 2 {
		return nil, fmt.Errorf("%w: missing pixel scale", ErrNotGeoTIFF)
	}
	tiepoint, err := entries.doubles(data, order, tagModelTiepoint)
	if err != nil || len(tiepoint) < 6 {
		return nil, fmt.Errorf("%w: missing tiepoint", ErrNotGeoTIFF)
	}

	bounds := domain.BoundingBox{
		MinX: tiepoint[3],
		MaxY: tiepoint[4],
		MaxX: tiepoint[3] + scale[0]*float64(width),
		MinY: tiepoint[4] - scale[1]*float64(height),
	}

	offsets, err := entries.ints(data, order, tagStripOffsets)
	if err != nil {
		return nil, fmt.Errorf("%w: missing strip offsets", ErrNotGeoTIFF)
	}
	counts, err := entries.ints(data, order, tagStripByteCounts)
	if err != nil || len(counts) != len(offsets) {
		return nil, fmt.Errorf("%w: missing strip byte counts", ErrNotGeoTIFF)
	}

	var samples []byte
	for i := range offsets {
		start, end := offsets[i], offsets[i]+counts[i]
		if end > uint64(len(data)) || start > end {
			return nil, fmt.Errorf("%w: strip outside file", ErrNotGeoTIFF)
		}
		samples = append(samples, data[start:end]...)
	}

	r := New(width, height, bounds)
	total := width * height
	switch {
	case bits == 32 && format == sampleFormatFloat:
		if len(samples) < total*4 {
			return nil, fmt.Errorf("%w: truncated pixel data", ErrNotGeoTIFF)
		}
		for i := 0; i < total; i++ {
			r.Pixels[i] = float64(math.Float32frombits(order.Uint32(samples[i*4:])))
		}
	case bits == 64 && format == sampleFormatFloat:
		if len(samples) < total*8 {
			return nil, fmt.Errorf("%w: truncated pixel data", ErrNotGeoTIFF)
		}
		for i := 0; i < total; i++ {
			r.Pixels[i] = math.Float64frombits(order.Uint64(samples[i*8:]))
		}
	case bits == 8 && format == sampleFormatUint:
		if len(samples) < total {
			return nil, fmt.Errorf("%w: truncated pixel data", ErrNotGeoTIFF)
		}
		for i := 0; i < total; i++ {
			r.Pixels[i] = float64(samples[i])
		}
	case bits == 16 && format == sampleFormatUint:
		if len(samples) < total*2 {
			return nil, fmt.Errorf("%w: truncated pixel data", ErrNotGeoTIFF)
		}
		for i := 0; i < total; i++ {
			r.Pixels[i] = float64(order.Uint16(samples[i*2:]))
		}
	default:
		return nil, fmt.Errorf("%w: unsupported sample layout (bits=%d format=%d)", ErrNotGeoTIFF, bits, format)
	}
	return r, nil
}

type ifdEntry struct {
	fieldType uint16
	count     uint32
	raw       [4]byte
}

type ifdEntries map[uint16]ifdEntry

func parseIFD(data []byte, order binary.ByteOrder, offset uint32) (ifdEntries, error) {
	if uint64(offset)+2 > uint64(len(data)) {
		return nil, fmt.Errorf("%w: IFD outside file", ErrNotGeoTIFF)
	}
	count := int(order.Uint16(data[offset : offset+2]))
	end := uint64(offset) + 2 + uint64(count)*12
	if end > uint64(len(data)) {
		return nil, fmt.Errorf("%w: IFD outside file", ErrNotGeoTIFF)
	}

	entries := make(ifdEntries, count)
	for i := 0; i < count; i++ {
		base := uint64(offset) + 2 + uint64(i)*12
		entry := ifdEntry{
			fieldType: order.Uint16(data[base+2 : base+4]),
			count:     order.Uint32(data[base+4 : base+8]),
		}
		copy(entry.raw[:], data[base+8:base+12])
		entries[order.Uint16(data[base:base+2])] = entry
	}
	return entries, nil
}

func typeSize(fieldType uint16) int {
	switch fieldType {
	case typeASCII:
		return 1
	case typeShort:
		return 2
	case typeLong:
		return 4
	case typeDouble:
		return 8
	default:
		return 0
	}
}

// values returns the raw value bytes, following the offset indirection when
// the payload does not fit inline.
func (e ifdEntries) values(data []byte, order binary.ByteOrder, tag uint16) ([]byte, ifdEntry, error) {
	entry, ok := e[tag]
	if !ok {
		return nil, entry, fmt.Errorf("%w: missing tag %d", ErrNotGeoTIFF, tag)
	}
	size := typeSize(entry.fieldType)
	if size == 0 {
		return nil, entry, fmt.Errorf("%w: unsupported field type %d", ErrNotGeoTIFF, entry.fieldType)
	}
	total := uint64(size) * uint64(entry.count)
	if total <= 4 {
		return entry.raw[:total], entry, nil
	}
	start := uint64(order.Uint32(entry.raw[:]))
	if start+total > uint64(len(data)) {
		return nil, entry, fmt.Errorf("%w: tag %d outside file", ErrNotGeoTIFF, tag)
	}
	return data[start : start+total], entry, nil
}

func (e ifdEntries) ints(data []byte, order binary.ByteOrder, tag uint16) ([]uint64, error) {
	raw, entry, err := e.values(data, order, tag)
	if err != nil {
		return nil, err
	}
	values := make([]uint64, entry.count)
	for i := range values {
		switch entry.fieldType {
		case typeShort:
			values[i] = uint64(order.Uint16(raw[i*2:]))
		case typeLong:
			values[i] = uint64(order.Uint32(raw[i*4:]))
		default:
			return nil, fmt.Errorf("%w: tag %d is not integral", ErrNotGeoTIFF, tag)
		}
	}
	return values, nil
}

func (e ifdEntries) doubles(data []byte, order binary.ByteOrder, tag uint16) ([]float64, error) {
	raw, entry, err := e.values(data, order, tag)
	if err != nil {
		return nil, err
	}
	if entry.fieldType != typeDouble {
		return nil, fmt.Errorf("%w: tag %d is not double", ErrNotGeoTIFF, tag)
	}
	values := make([]float64, entry.count)
	for i := range values {
		values[i] = math.Float64frombits(order.Uint64(raw[i*8:]))
	}
	return values, nil
}

func (e ifdEntries) firstInt(order binary.ByteOrder, tag uint16, fallback uint64) uint64 {
	entry, ok := e[tag]
	if !ok {
		return fallback
	}
	// Inline single values only; enough for the header tags this codec reads.
	switch entry.fieldType {
	case typeShort:
		return uint64(order.Uint16(entry.raw[:2]))
	case typeLong:
		return uint64(order.Uint32(entry.raw[:4]))
	default:
		return fallback
	}
}
