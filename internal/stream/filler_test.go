package stream

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/jscyril/golang_midi_player/api"
	"github.com/jscyril/golang_midi_player/internal/gain"
)

// fakeSource writes a fixed payload, repeated as needed, or reports no data.
type fakeSource struct {
	format  api.StreamFormat
	payload []byte
	ok      bool
	calls   int
	lastLen int
}

func (s *fakeSource) StreamInfo() api.StreamFormat { return s.format }

func (s *fakeSource) FillStream(buf []byte) bool {
	s.calls++
	s.lastLen = len(buf)
	if !s.ok {
		// Leave garbage behind so callers must clear it
		for i := range buf {
			buf[i] = 0xAB
		}
		return false
	}
	for i := range buf {
		buf[i] = s.payload[i%len(s.payload)]
	}
	return true
}

func floatBytes(samples ...float32) []byte {
	b := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(s))
	}
	return b
}

func int16Bytes(samples ...int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

func readFloat(buf []byte, i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
}

func TestFillFloatPassthrough(t *testing.T) {
	payload := floatBytes(0.5, -0.25, 1, -1)
	src := &fakeSource{format: api.StreamFormat{Channels: 2}, payload: payload, ok: true}

	f := NewFiller(gain.NewState())
	f.Attach(src, true)

	buf := make([]byte, len(payload))
	if !f.Fill(buf) {
		t.Fatal("Fill() = false, want true")
	}
	for i, want := range []float32{0.5, -0.25, 1, -1} {
		if got := readFloat(buf, i); got != want {
			t.Errorf("sample %d = %v, want %v", i, got, want)
		}
	}
}

func TestFillFloatAppliesReplayGain(t *testing.T) {
	g := gain.NewState()
	g.SetReplayGain(0.5)

	src := &fakeSource{payload: floatBytes(0.8, -0.4), ok: true}
	f := NewFiller(g)
	f.Attach(src, true)

	buf := make([]byte, 8)
	f.Fill(buf)
	if got := readFloat(buf, 0); math.Abs(float64(got)-0.4) > 1e-6 {
		t.Errorf("sample 0 = %v, want 0.4", got)
	}
	if got := readFloat(buf, 1); math.Abs(float64(got)+0.2) > 1e-6 {
		t.Errorf("sample 1 = %v, want -0.2", got)
	}
}

func TestFillFixedConvertsToFloat(t *testing.T) {
	tests := []struct {
		name   string
		sample int16
		want   float64
	}{
		{"max", 32767, 0.99997},
		{"min", -32768, -1},
		{"zero", 0, 0},
		{"half", 16384, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{payload: int16Bytes(tt.sample), ok: true}
			f := NewFiller(gain.NewState())
			f.Attach(src, false)

			buf := make([]byte, 16)
			if !f.Fill(buf) {
				t.Fatal("Fill() = false, want true")
			}
			if src.lastLen != len(buf)/2 {
				t.Errorf("source asked for %d bytes, want %d", src.lastLen, len(buf)/2)
			}
			for i := 0; i < 4; i++ {
				if got := readFloat(buf, i); math.Abs(float64(got)-tt.want) > 1e-4 {
					t.Errorf("sample %d = %v, want %v", i, got, tt.want)
				}
			}
		})
	}
}

func TestFillFixedReusesScratch(t *testing.T) {
	src := &fakeSource{payload: int16Bytes(100), ok: true}
	f := NewFiller(gain.NewState())
	f.Attach(src, false)

	f.Fill(make([]byte, 64))
	first := &f.convert[0]
	f.Fill(make([]byte, 32))
	if &f.convert[0] != first {
		t.Error("scratch buffer was reallocated for a smaller request")
	}
}

func TestFillFixedClearsPartialSample(t *testing.T) {
	src := &fakeSource{payload: int16Bytes(16384), ok: true}
	f := NewFiller(gain.NewState())
	f.Attach(src, false)

	buf := make([]byte, 11)
	for i := range buf {
		buf[i] = 0xAB
	}
	if !f.Fill(buf) {
		t.Fatal("Fill() = false, want true")
	}
	for i := 0; i < 2; i++ {
		if got := readFloat(buf, i); got != 0.5 {
			t.Errorf("sample %d = %v, want 0.5", i, got)
		}
	}
	for i := 8; i < len(buf); i++ {
		if buf[i] != 0 {
			t.Errorf("trailing byte %d = %#x, want 0", i, buf[i])
		}
	}
}

func TestFillZeroesWhenNotWritten(t *testing.T) {
	for _, size := range []int{0, 4, 7, 4096} {
		for _, isFloat := range []bool{true, false} {
			src := &fakeSource{ok: false}
			f := NewFiller(gain.NewState())
			f.Attach(src, isFloat)

			buf := make([]byte, size)
			for i := range buf {
				buf[i] = 0xFF
			}
			if f.Fill(buf) {
				t.Fatalf("size %d float=%v: Fill() = true, want false", size, isFloat)
			}
			for i, b := range buf {
				if b != 0 {
					t.Fatalf("size %d float=%v: byte %d = %#x, want 0", size, isFloat, i, b)
				}
			}
		}
	}
}

func TestFillWithoutSource(t *testing.T) {
	f := NewFiller(gain.NewState())
	buf := []byte{1, 2, 3, 4}
	if f.Fill(buf) {
		t.Fatal("Fill() without a source = true, want false")
	}
	for i, b := range buf {
		if b != 0 {
			t.Errorf("byte %d = %d, want 0", i, b)
		}
	}
}

func TestDetachStopsFilling(t *testing.T) {
	src := &fakeSource{payload: floatBytes(0.5), ok: true}
	f := NewFiller(gain.NewState())
	f.Attach(src, true)
	f.Detach()

	if f.Fill(make([]byte, 8)) {
		t.Fatal("Fill() after Detach = true, want false")
	}
	if src.calls != 0 {
		t.Errorf("source called %d times after Detach", src.calls)
	}
}
