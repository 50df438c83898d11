package wire

import (
	"testing"

	"github.com/avogabo/bbfs/internal/filetable"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	spans := []ExtentSpan{
		{GFID: filetable.GFID(1), Offset: 0, Length: 512},
		{GFID: filetable.GFID(2), Offset: 1024, Length: 4096},
	}
	buf := EncodeExtents(spans)
	got, err := DecodeExtents(buf)
	if err != nil {
		t.Fatalf("DecodeExtents: %v", err)
	}
	if len(got) != len(spans) {
		t.Fatalf("expected %d extents, got %d", len(spans), len(got))
	}
	for i := range spans {
		if got[i] != spans[i] {
			t.Fatalf("extent %d mismatch: got %+v want %+v", i, got[i], spans[i])
		}
	}
}

func TestDecodeRejectsTruncatedBuffer(t *testing.T) {
	buf := EncodeExtents([]ExtentSpan{{GFID: 1, Offset: 0, Length: 1}})
	if _, err := DecodeExtents(buf[:len(buf)-4]); err == nil {
		t.Fatal("expected error decoding a truncated extent vector")
	}
}

func TestDecodeRejectsEmptyBuffer(t *testing.T) {
	if _, err := DecodeExtents(nil); err == nil {
		t.Fatal("expected error decoding an empty buffer")
	}
}
