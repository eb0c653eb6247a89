package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/pcmstream/flac/internal/bits"
	"github.com/pcmstream/flac/internal/hashutil/crc16"
	"github.com/pcmstream/flac/internal/hashutil/crc8"
)

// bitWriter packs individual bits, most-significant first, into a byte
// slice. It mirrors the encoder side of bits.Reader closely enough to build
// synthetic frames by hand.
type bitWriter struct {
	bytes []byte
	cur   byte
	nbits uint
}

func (w *bitWriter) WriteBits(v uint64, n uint) {
	for i := int(n) - 1; i >= 0; i-- {
		bit := byte((v >> uint(i)) & 1)
		w.cur = w.cur<<1 | bit
		w.nbits++
		if w.nbits == 8 {
			w.bytes = append(w.bytes, w.cur)
			w.cur = 0
			w.nbits = 0
		}
	}
}

func (w *bitWriter) AlignByte() {
	if w.nbits > 0 {
		w.cur <<= 8 - w.nbits
		w.bytes = append(w.bytes, w.cur)
		w.cur = 0
		w.nbits = 0
	}
}

// constantMonoFrame builds a single fixed-block-size, mono, CONSTANT-subframe
// frame carrying one repeated 8-bit sample value.
func constantMonoFrame(t *testing.T, sample int8) []byte {
	t.Helper()
	hw := new(bitWriter)
	hw.WriteBits(0x3FFE, 14) // sync
	hw.WriteBits(0, 1)       // reserved
	hw.WriteBits(0, 1)       // blocking strategy: fixed
	hw.WriteBits(0x1, 4)     // block size code -> 192
	hw.WriteBits(0x9, 4)     // sample rate code -> 44100
	hw.WriteBits(0x0, 4)     // channels: mono
	hw.WriteBits(0x1, 3)     // bits-per-sample code -> 8
	hw.WriteBits(0, 1)       // reserved
	hw.WriteBits(0x00, 8)    // UTF-8 coded frame number: 0
	hw.AlignByte()
	header := hw.bytes
	crc8Byte := crc8.ChecksumATM(header)

	sw := new(bitWriter)
	sw.WriteBits(0, 1) // subframe zero padding
	sw.WriteBits(0, 6) // prediction method: constant
	sw.WriteBits(0, 1) // wasted-bits flag
	sw.WriteBits(uint64(uint8(sample)), 8)
	sw.AlignByte()
	sub := sw.bytes

	covered := append(append(append([]byte{}, header...), crc8Byte), sub...)
	footer := crc16.ChecksumIBM(covered)
	return append(covered, byte(footer>>8), byte(footer))
}

func TestParseConstantMonoFrame(t *testing.T) {
	data := constantMonoFrame(t, 42)
	fr, err := Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if fr.BlockSize != 192 {
		t.Errorf("BlockSize: got %d, want 192", fr.BlockSize)
	}
	if fr.SampleRate != 44100 {
		t.Errorf("SampleRate: got %d, want 44100", fr.SampleRate)
	}
	if fr.Channels != ChannelsMono {
		t.Errorf("Channels: got %v, want ChannelsMono", fr.Channels)
	}
	if fr.BitsPerSample != 8 {
		t.Errorf("BitsPerSample: got %d, want 8", fr.BitsPerSample)
	}
	if !fr.HasFixedBlockSize {
		t.Error("expected fixed block size")
	}
	if got := fr.SampleNumber(); got != 0 {
		t.Errorf("SampleNumber: got %d, want 0", got)
	}
	if len(fr.Subframes) != 1 || len(fr.Subframes[0].Samples) != 192 {
		t.Fatalf("unexpected subframe shape: %+v", fr.Subframes)
	}
	for i, s := range fr.Subframes[0].Samples {
		if s != 42 {
			t.Fatalf("sample %d: got %d, want 42", i, s)
		}
	}
}

func TestParseInvalidSync(t *testing.T) {
	data := []byte{0x00, 0x00, 0x00, 0x00}
	if _, err := Parse(bytes.NewReader(data)); err != ErrInvalidSync {
		t.Fatalf("got %v, want ErrInvalidSync", err)
	}
}

func TestParseCRC8Mismatch(t *testing.T) {
	data := constantMonoFrame(t, 1)
	data[4] ^= 0x01 // corrupt the frame number byte, covered by the CRC-8 footer
	_, err := Parse(bytes.NewReader(data))
	if err == nil {
		t.Fatal("expected CRC-8 mismatch error")
	}
}

func TestParseCRC16Mismatch(t *testing.T) {
	data := constantMonoFrame(t, 1)
	data[len(data)-1] ^= 0xFF
	_, err := Parse(bytes.NewReader(data))
	if err == nil {
		t.Fatal("expected CRC-16 mismatch error")
	}
}

// fixedOrder0Frame builds a fixed-block-size, mono, FIXED-order-0 subframe
// whose four residuals are Rice coded with parameter 0.
func fixedOrder0Frame(t *testing.T) []byte {
	t.Helper()
	hw := new(bitWriter)
	hw.WriteBits(0x3FFE, 14)
	hw.WriteBits(0, 1)
	hw.WriteBits(0, 1)
	hw.WriteBits(0x6, 4) // block size code -> 8-bit extension follows
	hw.WriteBits(0x9, 4) // sample rate code -> 44100
	hw.WriteBits(0x0, 4) // mono
	hw.WriteBits(0x1, 3) // 8 bps
	hw.WriteBits(0, 1)
	hw.WriteBits(0x00, 8) // frame number 0
	hw.WriteBits(3, 8)    // block size extension: 3+1 = 4
	hw.AlignByte()
	header := hw.bytes
	crc8Byte := crc8.ChecksumATM(header)

	sw := new(bitWriter)
	sw.WriteBits(0, 1)   // subframe zero padding
	sw.WriteBits(8, 6)   // 001000: fixed, order 0
	sw.WriteBits(0, 1)   // wasted-bits flag
	sw.WriteBits(0x0, 2) // residual coding method: rice, 4-bit parameter
	sw.WriteBits(0x0, 4) // partition order: 0 (one partition)
	sw.WriteBits(0x0, 4) // rice parameter: 0
	// four residuals, zigzag values -1, -1, 0, 0, unary coded with k=0.
	sw.WriteBits(0x1, 2) // "01": q=1
	sw.WriteBits(0x1, 2) // "01": q=1
	sw.WriteBits(0x1, 1) // "1": q=0
	sw.WriteBits(0x1, 1) // "1": q=0
	sw.AlignByte()
	sub := sw.bytes

	covered := append(append(append([]byte{}, header...), crc8Byte), sub...)
	footer := crc16.ChecksumIBM(covered)
	return append(covered, byte(footer>>8), byte(footer))
}

func TestParseFixedOrder0Residuals(t *testing.T) {
	data := fixedOrder0Frame(t)
	fr, err := Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if fr.BlockSize != 4 {
		t.Fatalf("BlockSize: got %d, want 4", fr.BlockSize)
	}
	want := []int64{-1, -1, 0, 0}
	got := fr.Subframes[0].Samples
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestChannelsCount(t *testing.T) {
	tests := []struct {
		channels Channels
		want     int
	}{
		{ChannelsMono, 1},
		{ChannelsLR, 2},
		{ChannelsLRC, 3},
		{ChannelsLRLsRs, 4},
		{ChannelsLRCLsRs, 5},
		{ChannelsLRCLfeLsRs, 6},
		{ChannelsLRCLfeCsSlSr, 7},
		{ChannelsLRCLfeLsRsSlSr, 8},
		{ChannelsLeftSide, 2},
		{ChannelsSideRight, 2},
		{ChannelsMidSide, 2},
	}
	for _, tt := range tests {
		if got := tt.channels.Count(); got != tt.want {
			t.Errorf("%v.Count() = %d, want %d", tt.channels, got, tt.want)
		}
	}
}

func TestCorrelateLeftSide(t *testing.T) {
	frame := &Frame{
		Header: Header{Channels: ChannelsLeftSide},
		Subframes: []*Subframe{
			{Samples: []int64{10, 20, 30}},
			{Samples: []int64{2, 5, 1}}, // side = left - right
		},
	}
	frame.correlate()
	right := frame.Subframes[1].Samples
	want := []int64{8, 15, 29}
	for i := range want {
		if right[i] != want[i] {
			t.Errorf("right[%d] = %d, want %d", i, right[i], want[i])
		}
	}
}

func TestCorrelateSideRight(t *testing.T) {
	frame := &Frame{
		Header: Header{Channels: ChannelsSideRight},
		Subframes: []*Subframe{
			{Samples: []int64{8, 15, 29}}, // side
			{Samples: []int64{2, 5, 1}},   // right
		},
	}
	frame.correlate()
	left := frame.Subframes[0].Samples
	want := []int64{10, 20, 30}
	for i := range want {
		if left[i] != want[i] {
			t.Errorf("left[%d] = %d, want %d", i, left[i], want[i])
		}
	}
}

func TestCorrelateMidSide(t *testing.T) {
	// left=10, right=4 -> mid=(10+4)/2=7, side=10-4=6
	frame := &Frame{
		Header: Header{Channels: ChannelsMidSide},
		Subframes: []*Subframe{
			{Samples: []int64{7}}, // mid
			{Samples: []int64{6}}, // side
		},
	}
	frame.correlate()
	left := frame.Subframes[0].Samples[0]
	right := frame.Subframes[1].Samples[0]
	if left != 10 || right != 4 {
		t.Errorf("got left=%d right=%d, want left=10 right=4", left, right)
	}
}

func TestSampleNumberVariableBlockSize(t *testing.T) {
	frame := &Frame{Header: Header{HasFixedBlockSize: false, Num: 12345}}
	if got := frame.SampleNumber(); got != 12345 {
		t.Errorf("got %d, want 12345", got)
	}
}

func TestSampleNumberFixedBlockSize(t *testing.T) {
	frame := &Frame{Header: Header{HasFixedBlockSize: true, Num: 3, BlockSize: 4096}}
	if got := frame.SampleNumber(); got != 3*4096 {
		t.Errorf("got %d, want %d", got, 3*4096)
	}
}

// fixedOrder2Frame builds a fixed-block-size, mono, FIXED-order-2 subframe
// whose warm-up samples (0, 1) and all-zero residuals decode to the
// arithmetic progression 0, 1, 2, 3: the order-2 fixed predictor
// (2*x[n-1] - x[n-2]) reproduces a constant first difference exactly.
func fixedOrder2Frame(t *testing.T) []byte {
	t.Helper()
	hw := new(bitWriter)
	hw.WriteBits(0x3FFE, 14)
	hw.WriteBits(0, 1)
	hw.WriteBits(0, 1)
	hw.WriteBits(0x6, 4) // block size code -> 8-bit extension follows
	hw.WriteBits(0x9, 4) // sample rate code -> 44100
	hw.WriteBits(0x0, 4) // mono
	hw.WriteBits(0x1, 3) // 8 bps
	hw.WriteBits(0, 1)
	hw.WriteBits(0x00, 8) // frame number 0
	hw.WriteBits(3, 8)    // block size extension: 3+1 = 4
	hw.AlignByte()
	header := hw.bytes
	crc8Byte := crc8.ChecksumATM(header)

	sw := new(bitWriter)
	sw.WriteBits(0, 1)       // subframe zero padding
	sw.WriteBits(0b001010, 6) // fixed, order 2
	sw.WriteBits(0, 1)       // wasted-bits flag
	sw.WriteBits(0, 8)       // warm-up sample 0
	sw.WriteBits(1, 8)       // warm-up sample 1
	sw.WriteBits(0x0, 2)     // residual coding method: rice, 4-bit parameter
	sw.WriteBits(0x0, 4)     // partition order: 0 (one partition)
	sw.WriteBits(0x0, 4)     // rice parameter: 0
	sw.WriteBits(0x1, 1)     // residual for sample 2: zigzag(0), q=0 -> "1"
	sw.WriteBits(0x1, 1)     // residual for sample 3: zigzag(0), q=0 -> "1"
	sw.AlignByte()
	sub := sw.bytes

	covered := append(append(append([]byte{}, header...), crc8Byte), sub...)
	footer := crc16.ChecksumIBM(covered)
	return append(covered, byte(footer>>8), byte(footer))
}

func TestParseFixedOrder2ArithmeticProgression(t *testing.T) {
	data := fixedOrder2Frame(t)
	fr, err := Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []int64{0, 1, 2, 3}
	got := fr.Subframes[0].Samples
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

// firOrder1Frame builds a mono, FIR-order-1 subframe using the literal
// warm-up/shift/coefficient values (warm-up 1000, shift 10, coeff 1024) that
// hold the predictor multiplier at exactly 1: with all-zero residuals the
// decoded signal is the constant 1000 repeated.
func firOrder1Frame(t *testing.T) []byte {
	t.Helper()
	hw := new(bitWriter)
	hw.WriteBits(0x3FFE, 14)
	hw.WriteBits(0, 1)
	hw.WriteBits(0, 1)
	hw.WriteBits(0x6, 4) // block size code -> 8-bit extension follows
	hw.WriteBits(0x9, 4) // sample rate code -> 44100
	hw.WriteBits(0x0, 4) // mono
	hw.WriteBits(0x2, 3) // 12 bps
	hw.WriteBits(0, 1)
	hw.WriteBits(0x00, 8) // frame number 0
	hw.WriteBits(3, 8)    // block size extension: 3+1 = 4
	hw.AlignByte()
	header := hw.bytes
	crc8Byte := crc8.ChecksumATM(header)

	sw := new(bitWriter)
	sw.WriteBits(0, 1)        // subframe zero padding
	sw.WriteBits(0b100000, 6) // FIR, order 1
	sw.WriteBits(0, 1)        // wasted-bits flag
	sw.WriteBits(1000, 12)    // warm-up sample: 1000
	sw.WriteBits(11, 4)       // coefficient precision - 1: 11 -> 12-bit coeffs
	sw.WriteBits(10, 5)       // predictor right-shift amount: 10
	sw.WriteBits(1024, 12)    // coefficient: 1024
	sw.WriteBits(0x0, 2)      // residual coding method: rice, 4-bit parameter
	sw.WriteBits(0x0, 4)      // partition order: 0
	sw.WriteBits(0x0, 4)      // rice parameter: 0
	sw.WriteBits(0x1, 1)      // residual 1: zigzag(0) -> "1"
	sw.WriteBits(0x1, 1)      // residual 2: zigzag(0) -> "1"
	sw.WriteBits(0x1, 1)      // residual 3: zigzag(0) -> "1"
	sw.AlignByte()
	sub := sw.bytes

	covered := append(append(append([]byte{}, header...), crc8Byte), sub...)
	footer := crc16.ChecksumIBM(covered)
	return append(covered, byte(footer>>8), byte(footer))
}

func TestParseFIRPrediction(t *testing.T) {
	data := firOrder1Frame(t)
	fr, err := Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []int64{1000, 1000, 1000, 1000}
	got := fr.Subframes[0].Samples
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestPredictFIRClampsNegativeShift(t *testing.T) {
	subframe := &Subframe{
		SubHeader: SubHeader{Order: 1},
		NSamples:  3,
		Samples:   []int64{5, 0, 0},
	}
	// A negative stored shift must be clamped to 0, not rejected: a
	// predictor with coeff=1 and shift=0 simply repeats the warm-up sample.
	if err := subframe.predict([]int64{1}, -3); err != nil {
		t.Fatalf("predict: %v", err)
	}
	want := []int64{5, 5, 5}
	for i, s := range subframe.Samples {
		if s != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, s, want[i])
		}
	}
}

// TestDecodeRiceResidualRoundTrip decodes the residual block [0, -1, 1, -2,
// 2], Rice-coded with partition order 0 and parameter k=4, whose zigzag
// codes are exactly [0, 1, 2, 3, 4].
func TestDecodeRiceResidualRoundTrip(t *testing.T) {
	sw := new(bitWriter)
	sw.WriteBits(0x0, 2) // residual coding method: rice, 4-bit parameter
	sw.WriteBits(0x0, 4) // partition order: 0
	sw.WriteBits(4, 4)   // rice parameter k=4
	codes := []uint64{0, 1, 2, 3, 4}
	for _, c := range codes {
		sw.WriteBits(1, 1) // unary quotient 0
		sw.WriteBits(c, 4) // low k=4 bits
	}
	sw.AlignByte()

	subframe := &Subframe{SubHeader: SubHeader{Order: 0}, NSamples: 5}
	br := bits.NewReader(bytes.NewReader(sw.bytes))
	if err := subframe.decodeResidual(br); err != nil {
		t.Fatalf("decodeResidual: %v", err)
	}
	want := []int64{0, -1, 1, -2, 2}
	if len(subframe.Samples) != len(want) {
		t.Fatalf("got %v, want %v", subframe.Samples, want)
	}
	for i := range want {
		if subframe.Samples[i] != want[i] {
			t.Errorf("residual %d: got %d, want %d", i, subframe.Samples[i], want[i])
		}
	}
}

// TestWastedBitsBoundaryValid exercises wasted_bits = bit_depth - 1, the
// minimal-precision case that must still decode successfully.
func TestWastedBitsBoundaryValid(t *testing.T) {
	sw := new(bitWriter)
	sw.WriteBits(0, 1) // subframe zero padding
	sw.WriteBits(0, 6) // constant
	sw.WriteBits(1, 1) // wasted-bits flag
	sw.WriteBits(0, 6) // six leading zeros
	sw.WriteBits(1, 1) // terminating one -> q=6, wasted = 7
	sw.WriteBits(1, 1) // constant sample, 1 bit of precision: -1
	sw.AlignByte()

	fr := &Frame{Header: Header{BlockSize: 1}}
	br := bits.NewReader(bytes.NewReader(sw.bytes))
	subframe, err := fr.parseSubframe(br, 8)
	if err != nil {
		t.Fatalf("parseSubframe: %v", err)
	}
	if subframe.Wasted != 7 {
		t.Fatalf("Wasted: got %d, want 7", subframe.Wasted)
	}
	want := []int64{-128} // -1 at 1 bit of precision, widened by 7 wasted bits
	if len(subframe.Samples) != len(want) || subframe.Samples[0] != want[0] {
		t.Fatalf("Samples: got %v, want %v", subframe.Samples, want)
	}
}

// TestWastedBitsEqualsDepthIsFatal exercises wasted_bits == bit_depth, which
// leaves no precision to decode a sample with and must fail with
// ErrArithmeticOverflow rather than silently decoding zeros.
func TestWastedBitsEqualsDepthIsFatal(t *testing.T) {
	sw := new(bitWriter)
	sw.WriteBits(0, 1) // subframe zero padding
	sw.WriteBits(0, 6) // constant
	sw.WriteBits(1, 1) // wasted-bits flag
	sw.WriteBits(0, 7) // seven leading zeros
	sw.WriteBits(1, 1) // terminating one -> q=7, wasted = 8
	sw.AlignByte()

	fr := &Frame{Header: Header{BlockSize: 1}}
	br := bits.NewReader(bytes.NewReader(sw.bytes))
	_, err := fr.parseSubframe(br, 8)
	if !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("got %v, want ErrArithmeticOverflow", err)
	}
}
