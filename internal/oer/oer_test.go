package oer

import (
	"bytes"
	"errors"
	"testing"
)

func TestLengthPrefixShortAndLongForm(t *testing.T) {
	t.Parallel()

	w := NewWriter(0)
	w.WriteLengthPrefix(5)
	w.WriteLengthPrefix(300)
	want := []byte{0x05, 0x82, 0x01, 0x2c}
	if !bytes.Equal(w.Bytes(), want) {
		t.Fatalf("got %x, want %x", w.Bytes(), want)
	}

	r := NewReader(w.Bytes())
	for _, expected := range []int{5, 300} {
		n, err := r.ReadLengthPrefix()
		if err != nil {
			t.Fatal(err)
		}
		if n != expected {
			t.Fatalf("got %d, want %d", n, expected)
		}
	}
}

func TestVarUIntUsesMinimalOctets(t *testing.T) {
	t.Parallel()

	w := NewWriter(0)
	w.WriteVarUInt(0)
	w.WriteVarUInt(256)
	want := []byte{0x01, 0x00, 0x02, 0x01, 0x00}
	if !bytes.Equal(w.Bytes(), want) {
		t.Fatalf("got %x, want %x", w.Bytes(), want)
	}
}

func TestReaderRejectsTruncatedOctetString(t *testing.T) {
	t.Parallel()

	r := NewReader([]byte{0x04, 'a', 'b'})
	if _, err := r.ReadVarOctetString(); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestReaderRejectsNonCanonicalLength(t *testing.T) {
	t.Parallel()

	r := NewReader([]byte{0x81, 0x05, 1, 2, 3, 4, 5})
	if _, err := r.ReadLengthPrefix(); err == nil {
		t.Fatal("expected non-canonical long form to be rejected")
	}
}

func TestLargeVarOctetStringRoundTrip(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte{0xab}, 70000)
	w := NewWriter(len(payload) + 4)
	w.WriteVarOctetString(payload)

	got, err := NewReader(w.Bytes()).ReadVarOctetString()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("payload mismatch")
	}
}
