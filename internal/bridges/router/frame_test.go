package router

import (
	"bytes"
	"errors"
	"testing"
)

func TestSplitJoinMSBLSBRoundTrip(t *testing.T) {
	for v := 0; v <= MaxAddress; v++ {
		msb, lsb := SplitMSBLSB(v)
		if msb > 0x7F || lsb > 0x7F {
			t.Fatalf("SplitMSBLSB(%d) = %#x, %#x; groups exceed 7 bits", v, msb, lsb)
		}
		if got := JoinMSBLSB(msb, lsb); got != v {
			t.Fatalf("JoinMSBLSB(SplitMSBLSB(%d)) = %d", v, got)
		}
	}
}

func TestSplitMSBLSB(t *testing.T) {
	tests := []struct {
		v   int
		msb byte
		lsb byte
	}{
		{0, 0x00, 0x00},
		{5, 0x00, 0x05},
		{127, 0x00, 0x7F},
		{128, 0x01, 0x00},
		{300, 0x02, 0x2C},
		{16383, 0x7F, 0x7F},
	}

	for _, tt := range tests {
		msb, lsb := SplitMSBLSB(tt.v)
		if msb != tt.msb || lsb != tt.lsb {
			t.Errorf("SplitMSBLSB(%d) = %#02x,%#02x, want %#02x,%#02x", tt.v, msb, lsb, tt.msb, tt.lsb)
		}
	}
}

func TestChecksum(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    byte
	}{
		{"empty", nil, 0x00},
		{"single", []byte{0x42}, 0x42},
		{"route 3 to 5", []byte{0x02, 0x00, 0x00, 0x00, 0x05, 0x00, 0x03}, 0x04},
		{"self cancelling", []byte{0xAA, 0xAA}, 0x00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.payload); got != tt.want {
				t.Errorf("Checksum(% X) = %#02x, want %#02x", tt.payload, got, tt.want)
			}
		})
	}
}

func TestBuildRouteFrame(t *testing.T) {
	payload, err := EncodeRoutePayload(RouteParams{
		Opcode:      OpcodeRoute,
		Source:      3,
		Destination: 5,
	})
	if err != nil {
		t.Fatalf("EncodeRoutePayload() error: %v", err)
	}

	want := []byte{0x10, 0x02, 0x00, 0x00, 0x00, 0x05, 0x00, 0x03, 0x04, 0x10, 0x03}
	if got := BuildFrame(payload); !bytes.Equal(got, want) {
		t.Errorf("BuildFrame() = % X, want % X", got, want)
	}
}

func TestFrameChecksumCoversPayloadOnly(t *testing.T) {
	params := []RouteParams{
		{Opcode: OpcodeRoute, Source: 0, Destination: 0},
		{Opcode: OpcodeRoute, Matrix: 1, Level: 2, Source: 200, Destination: 16383},
		{Opcode: OpcodeRoute, Source: 16383, Destination: 128},
	}

	for _, p := range params {
		payload, err := EncodeRoutePayload(p)
		if err != nil {
			t.Fatalf("EncodeRoutePayload(%+v) error: %v", p, err)
		}
		frame := BuildFrame(payload)

		var want byte
		for _, b := range frame[1 : len(frame)-3] {
			want ^= b
		}
		if got := frame[len(frame)-3]; got != want {
			t.Errorf("%+v: checksum = %#02x, want %#02x", p, got, want)
		}
	}
}

func TestEncodeRoutePayloadRange(t *testing.T) {
	tests := []struct {
		name string
		src  int
		dst  int
	}{
		{"negative source", -1, 0},
		{"source too large", MaxAddress + 1, 0},
		{"negative destination", 0, -1},
		{"destination too large", 0, MaxAddress + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeRoutePayload(RouteParams{Source: tt.src, Destination: tt.dst})
			if !errors.Is(err, ErrAddressRange) {
				t.Errorf("EncodeRoutePayload() = %v, want ErrAddressRange", err)
			}
		})
	}
}

func TestRoutePayloadRoundTrip(t *testing.T) {
	in := RouteParams{Opcode: OpcodeRoute, Matrix: 3, Level: 1, Source: 1234, Destination: 4321}
	payload, err := EncodeRoutePayload(in)
	if err != nil {
		t.Fatalf("EncodeRoutePayload() error: %v", err)
	}

	out, err := DecodeRoutePayload(payload)
	if err != nil {
		t.Fatalf("DecodeRoutePayload() error: %v", err)
	}
	if out != in {
		t.Errorf("DecodeRoutePayload() = %+v, want %+v", out, in)
	}

	if _, err := DecodeRoutePayload(payload[:5]); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("DecodeRoutePayload(short) = %v, want ErrInvalidFrame", err)
	}
}

func TestDecodeFrame(t *testing.T) {
	good := BuildFrame([]byte{0x01, 0x02, 0x03})

	t.Run("valid", func(t *testing.T) {
		payload, ok, err := DecodeFrame(good)
		if err != nil {
			t.Fatalf("DecodeFrame() error: %v", err)
		}
		if !ok {
			t.Error("checksumOK = false, want true")
		}
		if !bytes.Equal(payload, []byte{0x01, 0x02, 0x03}) {
			t.Errorf("payload = % X, want 01 02 03", payload)
		}
	})

	t.Run("bad checksum", func(t *testing.T) {
		bad := append([]byte{}, good...)
		bad[len(bad)-3] ^= 0xFF
		_, ok, err := DecodeFrame(bad)
		if err != nil {
			t.Fatalf("DecodeFrame() error: %v", err)
		}
		if ok {
			t.Error("checksumOK = true, want false")
		}
	})

	t.Run("too short", func(t *testing.T) {
		if _, _, err := DecodeFrame([]byte{SOM, EOM, EOM2}); !errors.Is(err, ErrInvalidFrame) {
			t.Errorf("DecodeFrame() = %v, want ErrInvalidFrame", err)
		}
	})

	t.Run("missing markers", func(t *testing.T) {
		if _, _, err := DecodeFrame([]byte{0x00, 0x01, 0x01, EOM, EOM2}); !errors.Is(err, ErrInvalidFrame) {
			t.Errorf("DecodeFrame() = %v, want ErrInvalidFrame", err)
		}
	})
}

func TestFrameFramerSplit(t *testing.T) {
	a := BuildFrame([]byte{0x02, 0x00, 0x00, 0x00, 0x05, 0x00, 0x03})
	b := BuildFrame([]byte{0x7F})

	tests := []struct {
		name       string
		in         []byte
		wantFrames [][]byte
		wantRest   []byte
	}{
		{"one frame", a, [][]byte{a}, nil},
		{"two frames", append(append([]byte{}, a...), b...), [][]byte{a, b}, nil},
		{"leading noise discarded", append([]byte{0xFF, 0x00}, a...), [][]byte{a}, nil},
		{"partial frame retained", a[:5], nil, a[:5]},
		{"EOM without EOM2 retained", a[:len(a)-1], nil, a[:len(a)-1]},
		{"noise only", []byte{0x01, 0x02}, nil, nil},
		{"frame then partial", append(append([]byte{}, a...), b[:2]...), [][]byte{a}, b[:2]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames, rest := FrameFramer{}.Split(tt.in)
			if len(frames) != len(tt.wantFrames) {
				t.Fatalf("Split() got %d frames, want %d", len(frames), len(tt.wantFrames))
			}
			for i := range frames {
				if !bytes.Equal(frames[i], tt.wantFrames[i]) {
					t.Errorf("frame[%d] = % X, want % X", i, frames[i], tt.wantFrames[i])
				}
			}
			if !bytes.Equal(rest, tt.wantRest) {
				t.Errorf("rest = % X, want % X", rest, tt.wantRest)
			}
		})
	}
}

func TestFrameFramerSplitFragmentationIdempotent(t *testing.T) {
	payload, _ := EncodeRoutePayload(RouteParams{Opcode: OpcodeRoute, Source: 300, Destination: 9000})
	frame := BuildFrame(payload)

	for size := 1; size <= len(frame); size++ {
		var buf []byte
		var got [][]byte
		for i := 0; i < len(frame); i += size {
			end := min(i+size, len(frame))
			buf = append(buf, frame[i:end]...)
			frames, rest := FrameFramer{}.Split(buf)
			got = append(got, frames...)
			buf = append([]byte{}, rest...)
		}

		if len(got) != 1 {
			t.Fatalf("chunk size %d: %d frames emitted, want 1", size, len(got))
		}
		if !bytes.Equal(got[0], frame) {
			t.Errorf("chunk size %d: frame = % X, want % X", size, got[0], frame)
		}
	}
}
