package wire

import (
	"bytes"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	f := Frame{
		Kind:      KindArchive,
		ClientID:  7,
		RequestID: 42,
		Control:   DataMessage,
		Payload:   []byte(`{"hello":"world"}`),
	}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, f); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if got.Kind != f.Kind || got.ClientID != f.ClientID || got.RequestID != f.RequestID || got.Control != f.Control {
		t.Errorf("ReadFrame() = %+v, want %+v", got, f)
	}
	if !bytes.Equal(got.Payload, f.Payload) {
		t.Errorf("ReadFrame().Payload = %q, want %q", got.Payload, f.Payload)
	}
}

func TestWriteReadFrameEmptyPayload(t *testing.T) {
	f := Frame{Kind: KindExit, ClientID: 1, Control: ControlMessage}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, f); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if len(got.Payload) != 0 {
		t.Errorf("ReadFrame().Payload = %q, want empty", got.Payload)
	}
}

func TestReadFrameRejectsBadStartMarker(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, Frame{Kind: KindList}); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}
	corrupted := buf.Bytes()
	corrupted[0] ^= 0xFF
	if _, err := ReadFrame(bytes.NewReader(corrupted)); err == nil {
		t.Error("ReadFrame() with a corrupted start marker error = nil, want error")
	}
}

func TestReadFrameRejectsBadEndMarker(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, Frame{Kind: KindList, Payload: []byte("x")}); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}
	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] ^= 0xFF
	if _, err := ReadFrame(bytes.NewReader(corrupted)); err == nil {
		t.Error("ReadFrame() with a corrupted end marker error = nil, want error")
	}
}

func TestReadFrameRejectsUnsupportedVersion(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, Frame{Kind: KindList}); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}
	corrupted := buf.Bytes()
	corrupted[4] = 0x7F
	if _, err := ReadFrame(bytes.NewReader(corrupted)); err == nil {
		t.Error("ReadFrame() with an unsupported version error = nil, want error")
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	in := ArchivePayload{CombinedKey: map[string]string{"class": "od"}, Payload: []byte("data")}
	var out ArchivePayload
	if err := Unmarshal(Marshal(in), &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if out.CombinedKey["class"] != "od" || string(out.Payload) != "data" {
		t.Errorf("Unmarshal(Marshal(%+v)) = %+v", in, out)
	}
}
