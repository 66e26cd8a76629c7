package motor

import (
	"bytes"
	"errors"
	"testing"
)

func TestBuildStandardParse(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	for _, id := range []uint16{0, 0x7F, 0x17F, MaxStandardID} {
		raw, err := BuildStandard(id, data)
		if err != nil {
			t.Fatalf("BuildStandard(0x%X): %v", id, err)
		}
		if raw[0] != 0x08 {
			t.Errorf("info byte = 0x%02X, want 0x08", raw[0])
		}
		if raw[1] != 0 || raw[2] != 0 {
			t.Errorf("id 0x%X: high identifier bytes not zero: % X", id, raw[1:5])
		}

		f, err := ParseFrame(raw[:])
		if err != nil {
			t.Fatalf("ParseFrame: %v", err)
		}
		if f.Info != 0x08 || f.ID != uint32(id) || !bytes.Equal(f.Data[:], data) {
			t.Errorf("round trip mismatch: %+v", f)
		}
		if !f.IsStandard() || f.IsExtended() {
			t.Errorf("id 0x%X: wrong classification", id)
		}
	}
}

func TestBuildExtendedParse(t *testing.T) {
	data := []byte{0xA, 0xB, 0xC, 0xD, 0xE, 0xF, 0x10, 0x11}
	for _, id := range []uint32{0, 0x12FD007F, MaxExtendedID} {
		raw, err := BuildExtended(id, data)
		if err != nil {
			t.Fatalf("BuildExtended(0x%X): %v", id, err)
		}
		f, err := ParseFrame(raw[:])
		if err != nil {
			t.Fatalf("ParseFrame: %v", err)
		}
		if f.Info != 0x88 || f.ID != id || !bytes.Equal(f.Data[:], data) {
			t.Errorf("round trip mismatch: %+v", f)
		}
		if !f.IsExtended() || f.IsStandard() {
			t.Errorf("id 0x%X: wrong classification", id)
		}
		if f.Len() != DataLen {
			t.Errorf("len = %d, want %d", f.Len(), DataLen)
		}
	}
}

func TestPositionCommandFrame(t *testing.T) {
	data := CmdPosition(5, 5)
	raw, err := BuildStandard(MakeStandardID(ModePosition, 127), data[:])
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x08, 0x00, 0x00, 0x01, 0x7F, 0x00, 0x00, 0xA0, 0x40, 0x00, 0x00, 0xA0, 0x40}
	if !bytes.Equal(raw[:], want) {
		t.Fatalf("got % X, want % X", raw, want)
	}
}

func TestBuildRejectsBadInput(t *testing.T) {
	testCases := []struct {
		name string
		fn   func() error
		want error
	}{
		{"standard id too big", func() error {
			_, err := BuildStandard(MaxStandardID+1, make([]byte, 8))
			return err
		}, ErrInvalidID},
		{"extended id too big", func() error {
			_, err := BuildExtended(MaxExtendedID+1, make([]byte, 8))
			return err
		}, ErrInvalidID},
		{"short data", func() error {
			_, err := BuildStandard(1, make([]byte, 7))
			return err
		}, ErrInvalidLength},
		{"long data", func() error {
			_, err := BuildExtended(1, make([]byte, 9))
			return err
		}, ErrInvalidLength},
		{"short frame", func() error {
			_, err := ParseFrame(make([]byte, 12))
			return err
		}, ErrInvalidLength},
	}

	for _, tc := range testCases {
		if err := tc.fn(); !errors.Is(err, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestSplitDatagram(t *testing.T) {
	a, _ := BuildStandard(1, make([]byte, 8))
	b, _ := BuildExtended(2, make([]byte, 8))
	datagram := append(append(a[:], b[:]...), 0xDE, 0xAD)

	frames, rest := SplitDatagram(datagram)
	if len(frames) != 2 || rest != 2 {
		t.Fatalf("got %d frames rest %d, want 2 frames rest 2", len(frames), rest)
	}
	if frames[0].ID != 1 || frames[1].ID != 2 || !frames[1].IsExtended() {
		t.Errorf("unexpected frames %v", frames)
	}

	if frames, rest := SplitDatagram(datagram[:5]); len(frames) != 0 || rest != 5 {
		t.Errorf("short datagram: got %d frames rest %d", len(frames), rest)
	}
}

func TestIdentifierRoundTrip(t *testing.T) {
	for _, typ := range []uint8{0, 2, 0x12, 0x1F} {
		for _, aux := range []uint16{0, 0xFD00, 0x05FD, 0xFFFF} {
			for _, target := range []uint8{0, 1, 127, 255} {
				id := MakeExtendedID(typ, aux, target)
				if id > MaxExtendedID {
					t.Fatalf("id 0x%X exceeds 29 bits", id)
				}
				gt, ga, gtarget := ParseExtendedID(id)
				if gt != typ || ga != aux || gtarget != target {
					t.Fatalf("round trip (%d,%04X,%d) -> (%d,%04X,%d)", typ, aux, target, gt, ga, gtarget)
				}
			}
		}
	}

	for mode := uint8(0); mode < 8; mode++ {
		id := MakeStandardID(mode, 0xAB)
		if id > MaxStandardID {
			t.Fatalf("id 0x%X exceeds 11 bits", id)
		}
		gm, ga := ParseStandardID(uint32(id))
		if gm != mode || ga != 0xAB {
			t.Fatalf("standard round trip mode %d -> (%d, %X)", mode, gm, ga)
		}
	}
}
