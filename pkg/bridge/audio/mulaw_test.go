package audio

import (
	"bytes"
	"errors"
	"testing"
)

func TestRoundTrip_AllCodes(t *testing.T) {
	in := make([]byte, 256)
	for i := range in {
		in[i] = byte(i)
	}

	pcm, err := ToLinearPCM(in)
	if err != nil {
		t.Fatalf("ToLinearPCM() error = %v", err)
	}
	out, err := ToMuLaw(pcm)
	if err != nil {
		t.Fatalf("ToMuLaw() error = %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len(out)=%d, want %d", len(out), len(in))
	}
	for i := range in {
		want := in[i]
		if want == 0x7f {
			// 0x7f is negative zero: it decodes to the same linear sample
			// as 0xff and re-encodes as the positive zero code.
			want = 0xff
		}
		if out[i] != want {
			t.Fatalf("code %#02x round-tripped to %#02x, want %#02x", in[i], out[i], want)
		}
	}
}

func TestToLinearPCM_FrameSizes(t *testing.T) {
	pcm, err := ToLinearPCM(make([]byte, 160))
	if err != nil {
		t.Fatalf("ToLinearPCM() error = %v", err)
	}
	if len(pcm) != 320 {
		t.Fatalf("len(pcm)=%d, want 320", len(pcm))
	}

	pcm, err = ToLinearPCM(nil)
	if err != nil {
		t.Fatalf("ToLinearPCM(nil) error = %v", err)
	}
	if len(pcm) != 0 {
		t.Fatalf("len(pcm)=%d, want 0", len(pcm))
	}
}

func TestToLinearPCM_SilenceDecodesToZero(t *testing.T) {
	pcm, err := ToLinearPCM([]byte{0xff, 0xff})
	if err != nil {
		t.Fatalf("ToLinearPCM() error = %v", err)
	}
	if !bytes.Equal(pcm, []byte{0, 0, 0, 0}) {
		t.Fatalf("pcm=%v, want all zero", pcm)
	}
}

func TestToMuLaw_OddLengthRejected(t *testing.T) {
	_, err := ToMuLaw(make([]byte, 321))
	if err == nil {
		t.Fatal("expected error for odd-length pcm buffer")
	}
	var terr *TranscodeError
	if !errors.As(err, &terr) {
		t.Fatalf("err type = %T, want *TranscodeError", err)
	}
	if terr.Length != 321 {
		t.Fatalf("Length=%d, want 321", terr.Length)
	}
}

func TestToMuLaw_ClampsOutOfRangeSamples(t *testing.T) {
	// Most negative 16-bit sample; magnitude exceeds the mu-law clip level.
	got, err := ToMuLaw([]byte{0x00, 0x80})
	if err != nil {
		t.Fatalf("ToMuLaw() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(got)=%d, want 1", len(got))
	}
	// Largest negative magnitude encodes as the negative full-scale code.
	if got[0] != 0x00 {
		t.Fatalf("got=%#02x, want 0x00", got[0])
	}
}
