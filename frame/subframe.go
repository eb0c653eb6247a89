package frame

import (
	"github.com/pkg/errors"

	"github.com/pcmstream/flac/internal/bits"
)

// A Subframe contains the encoded audio samples of one channel of an audio
// block.
type Subframe struct {
	// Subframe header.
	SubHeader
	// Decoded audio samples, widened to int64 so fixed and LPC prediction
	// can accumulate without overflowing the 4-32 bit sample range FLAC
	// allows.
	Samples []int64
	// Number of audio samples in the subframe.
	NSamples int
}

// parseSubframe reads and parses the header and audio samples of a
// subframe.
func (frame *Frame) parseSubframe(br *bits.Reader, bps uint) (*Subframe, error) {
	subframe := new(Subframe)
	if err := subframe.parseHeader(br); err != nil {
		return subframe, err
	}
	if subframe.Wasted >= bps {
		return subframe, errors.WithStack(ErrArithmeticOverflow)
	}
	bps -= subframe.Wasted

	subframe.NSamples = int(frame.BlockSize)
	subframe.Samples = make([]int64, 0, subframe.NSamples)

	var err error
	switch subframe.Pred {
	case PredConstant:
		err = subframe.decodeConstant(br, bps)
	case PredVerbatim:
		err = subframe.decodeVerbatim(br, bps)
	case PredFixed:
		err = subframe.decodeFixed(br, bps)
	case PredFIR:
		err = subframe.decodeFIR(br, bps)
	}
	if err != nil {
		return subframe, err
	}

	if subframe.Wasted > 0 {
		for i, sample := range subframe.Samples {
			subframe.Samples[i] = sample << subframe.Wasted
		}
	}
	return subframe, nil
}

// A SubHeader specifies the prediction method and order of a subframe.
type SubHeader struct {
	// Prediction method used to encode the subframe's samples.
	Pred Pred
	// Prediction order, used by fixed and FIR prediction.
	Order int
	// Wasted bits-per-sample shared by every sample in the subframe.
	Wasted uint
}

// parseHeader reads and parses the header of a subframe.
func (subframe *Subframe) parseHeader(br *bits.Reader) error {
	// 1 bit: zero padding.
	x, err := br.Read(1)
	if err != nil {
		return unexpected(err)
	}
	if x != 0 {
		return errors.New("frame: non-zero padding in subframe header")
	}

	// 6 bits: prediction method and order.
	//
	//	000000: constant.
	//	000001: verbatim.
	//	00001x, 0001xx: reserved.
	//	001xxx: fixed, order = xxx (<= 4), else reserved.
	//	01xxxx: reserved.
	//	1xxxxx: FIR, order = xxxxx + 1.
	x, err = br.Read(6)
	if err != nil {
		return unexpected(err)
	}
	switch {
	case x < 1:
		subframe.Pred = PredConstant
	case x < 2:
		subframe.Pred = PredVerbatim
	case x < 8:
		return errors.Errorf("frame: reserved prediction method bit pattern (%06b)", x)
	case x < 16:
		order := int(x & 0x07)
		if order > 4 {
			return errors.Errorf("frame: reserved prediction method bit pattern (%06b)", x)
		}
		subframe.Pred = PredFixed
		subframe.Order = order
	case x < 32:
		return errors.Errorf("frame: reserved prediction method bit pattern (%06b)", x)
	default:
		subframe.Pred = PredFIR
		subframe.Order = int(x&0x1F) + 1
	}

	// 1 bit: wasted-bits flag.
	x, err = br.Read(1)
	if err != nil {
		return unexpected(err)
	}
	if x != 0 {
		// k wasted bits, unary coded as k-1 leading zeros then a one.
		x, err = br.ReadUnary()
		if err != nil {
			return unexpected(err)
		}
		subframe.Wasted = uint(x) + 1
	}
	return nil
}

// Pred specifies the prediction method used to encode a subframe's samples.
type Pred uint8

// Prediction methods.
const (
	// PredConstant: every sample has the same value, stored once.
	PredConstant Pred = iota
	// PredVerbatim: samples are stored unencoded.
	PredVerbatim
	// PredFixed: samples are linear-prediction coded against one of five
	// fixed polynomials (order 0-4).
	PredFixed
	// PredFIR: samples are linear-prediction coded against coefficients
	// carried in the subframe (order 1-32).
	PredFIR
)

// decodeConstant reads the single unencoded sample shared by every position
// in the subframe.
func (subframe *Subframe) decodeConstant(br *bits.Reader, bps uint) error {
	x, err := br.ReadSigned(bps)
	if err != nil {
		return unexpected(err)
	}
	for i := 0; i < subframe.NSamples; i++ {
		subframe.Samples = append(subframe.Samples, x)
	}
	return nil
}

// decodeVerbatim reads the unencoded samples of the subframe.
func (subframe *Subframe) decodeVerbatim(br *bits.Reader, bps uint) error {
	for i := 0; i < subframe.NSamples; i++ {
		x, err := br.ReadSigned(bps)
		if err != nil {
			return unexpected(err)
		}
		subframe.Samples = append(subframe.Samples, x)
	}
	return nil
}

// fixedCoeffs maps prediction order to the coefficients of FLAC's five
// predefined fixed-prediction polynomials.
//
//	x_0[n] = 0
//	x_1[n] = x[n-1]
//	x_2[n] = 2*x[n-1] - x[n-2]
//	x_3[n] = 3*x[n-1] - 3*x[n-2] + x[n-3]
//	x_4[n] = 4*x[n-1] - 6*x[n-2] + 4*x[n-3] - x[n-4]
var fixedCoeffs = [...][]int64{
	1: {1},
	2: {2, -1},
	3: {3, -3, 1},
	4: {4, -6, 4, -1},
}

// decodeFixed decodes a fixed-prediction subframe.
func (subframe *Subframe) decodeFixed(br *bits.Reader, bps uint) error {
	for i := 0; i < subframe.Order; i++ {
		x, err := br.ReadSigned(bps)
		if err != nil {
			return unexpected(err)
		}
		subframe.Samples = append(subframe.Samples, x)
	}
	if err := subframe.decodeResidual(br); err != nil {
		return err
	}
	return subframe.predict(fixedCoeffs[subframe.Order], 0)
}

// decodeFIR decodes an FIR (general linear prediction) subframe, whose
// coefficients are stored inline rather than drawn from a fixed table.
func (subframe *Subframe) decodeFIR(br *bits.Reader, bps uint) error {
	for i := 0; i < subframe.Order; i++ {
		x, err := br.ReadSigned(bps)
		if err != nil {
			return unexpected(err)
		}
		subframe.Samples = append(subframe.Samples, x)
	}

	// 4 bits: (coefficient precision in bits) - 1.
	x, err := br.Read(4)
	if err != nil {
		return unexpected(err)
	}
	if x == 0xF {
		return errors.New("frame: invalid coefficient precision bit pattern (1111)")
	}
	prec := uint(x) + 1

	// 5 bits: predictor coefficient right-shift amount.
	shift, err := br.ReadSigned(5)
	if err != nil {
		return unexpected(err)
	}

	coeffs := make([]int64, subframe.Order)
	for i := range coeffs {
		c, err := br.ReadSigned(prec)
		if err != nil {
			return unexpected(err)
		}
		coeffs[i] = c
	}

	if err := subframe.decodeResidual(br); err != nil {
		return err
	}
	return subframe.predict(coeffs, shift)
}

// decodeResidual decodes the partitioned, Rice-coded prediction residuals of
// the subframe.
func (subframe *Subframe) decodeResidual(br *bits.Reader) error {
	// 2 bits: residual coding method.
	//
	//	00: Rice coding, 4-bit parameter.
	//	01: Rice coding, 5-bit parameter.
	//	1x: reserved.
	x, err := br.Read(2)
	if err != nil {
		return unexpected(err)
	}
	switch x {
	case 0x0:
		return subframe.decodeRicePartitions(br, 4)
	case 0x1:
		return subframe.decodeRicePartitions(br, 5)
	default:
		return errors.Errorf("frame: reserved residual coding method bit pattern (%02b)", x)
	}
}

// decodeRicePartitions decodes every Rice partition of the residual, where
// paramSize is the bit width of each partition's Rice parameter (4 or 5).
func (subframe *Subframe) decodeRicePartitions(br *bits.Reader, paramSize uint) error {
	// 4 bits: partition order; 2^order partitions follow.
	x, err := br.Read(4)
	if err != nil {
		return unexpected(err)
	}
	partOrder := x
	nparts := 1 << partOrder

	escape := uint64(1)<<paramSize - 1
	for i := 0; i < nparts; i++ {
		param, err := br.Read(paramSize)
		if err != nil {
			return unexpected(err)
		}

		// Only the first partition is shortened by the predictor order;
		// every later partition holds a full (NSamples/nparts) residuals.
		var nsamples int
		switch {
		case partOrder == 0:
			nsamples = subframe.NSamples - subframe.Order
		case i == 0:
			nsamples = subframe.NSamples/nparts - subframe.Order
		default:
			nsamples = subframe.NSamples / nparts
		}

		if param == escape {
			// Escape code: the partition holds nsamples unencoded values,
			// each n bits wide.
			n, err := br.Read(5)
			if err != nil {
				return unexpected(err)
			}
			for j := 0; j < nsamples; j++ {
				sample, err := br.ReadSigned(uint(n))
				if err != nil {
					return unexpected(err)
				}
				subframe.Samples = append(subframe.Samples, sample)
			}
			continue
		}

		for j := 0; j < nsamples; j++ {
			if err := subframe.decodeRiceResidual(br, uint(param)); err != nil {
				return err
			}
		}
	}
	return nil
}

// decodeRiceResidual decodes a single Rice-coded residual with parameter k.
func (subframe *Subframe) decodeRiceResidual(br *bits.Reader, k uint) error {
	high, err := br.ReadUnary()
	if err != nil {
		return unexpected(err)
	}
	low, err := br.Read(k)
	if err != nil {
		return unexpected(err)
	}
	residual := bits.ZigZag(high<<k | low)
	subframe.Samples = append(subframe.Samples, residual)
	return nil
}

// predict reconstructs the subframe's audio samples in place: Samples
// currently holds the warm-up samples followed by residuals; after predict
// it holds the full decoded signal.
func (subframe *Subframe) predict(coeffs []int64, shift int64) error {
	if len(coeffs) != subframe.Order {
		return errors.Errorf("frame: prediction order (%d) does not match coefficient count (%d)", subframe.Order, len(coeffs))
	}
	if shift < 0 {
		// Real-world encoders occasionally store a negative shift; decoders
		// are expected to clamp it to 0 rather than reject the stream.
		shift = 0
	}
	if subframe.NSamples != len(subframe.Samples) {
		return errors.Errorf("frame: subframe sample count mismatch; expected %d, got %d", subframe.NSamples, len(subframe.Samples))
	}
	for i := subframe.Order; i < subframe.NSamples; i++ {
		var sum int64
		for j, c := range coeffs {
			sum += c * subframe.Samples[i-j-1]
		}
		subframe.Samples[i] += sum >> uint(shift)
	}
	return nil
}
