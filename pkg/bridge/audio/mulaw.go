// Package audio converts between the telephony-native 8-bit mu-law encoding
// and the 16-bit little-endian linear PCM the voice-AI socket speaks. Both
// sides run at the same sample rate; there is no resampling here, only
// G.711 companding.
package audio

import "fmt"

const (
	muLawBias = 0x84
	muLawClip = 32635
)

// TranscodeError reports a frame whose byte length is inconsistent with the
// expected sample width. Callers drop the offending frame and keep relaying.
type TranscodeError struct {
	Op     string
	Length int
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("audio: %s: invalid frame length %d", e.Op, e.Length)
}

// decodeTable maps each mu-law code point to its linear sample value.
var decodeTable [256]int16

func init() {
	for i := 0; i < 256; i++ {
		u := ^byte(i)
		exponent := (u >> 4) & 0x07
		mantissa := u & 0x0F
		sample := ((int32(mantissa)<<3 + muLawBias) << exponent) - muLawBias
		if u&0x80 != 0 {
			sample = -sample
		}
		decodeTable[i] = int16(sample)
	}
}

// ToLinearPCM expands 8-bit mu-law samples into 16-bit signed little-endian
// linear PCM. Output is always exactly twice the input length.
func ToLinearPCM(mulaw []byte) ([]byte, error) {
	pcm := make([]byte, len(mulaw)*2)
	for i, b := range mulaw {
		s := decodeTable[b]
		pcm[2*i] = byte(s)
		pcm[2*i+1] = byte(s >> 8)
	}
	return pcm, nil
}

// ToMuLaw compresses 16-bit signed little-endian linear PCM into 8-bit
// mu-law. An odd-length buffer cannot hold whole samples and is rejected.
func ToMuLaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, &TranscodeError{Op: "to mu-law", Length: len(pcm)}
	}
	mulaw := make([]byte, len(pcm)/2)
	for i := 0; i < len(mulaw); i++ {
		s := int32(int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8))
		mulaw[i] = encodeSample(s)
	}
	return mulaw, nil
}

func encodeSample(s int32) byte {
	var sign byte
	if s < 0 {
		sign = 0x80
		s = -s
	}
	if s > muLawClip {
		s = muLawClip
	}
	s += muLawBias

	exponent := byte(7)
	for mask := int32(0x4000); s&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte(s>>(exponent+3)) & 0x0F
	return ^(sign | exponent<<4 | mantissa)
}
