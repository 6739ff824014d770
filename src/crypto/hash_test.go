package crypto

import (
	"bytes"
	"testing"
)

func TestDigestMatchesSHA256(t *testing.T) {
	data := []byte("round 9, authority A")
	d := Digest(data)
	if !bytes.Equal(d[:], SHA256(data)) {
		t.Fatalf("Digest and SHA256 disagree")
	}
	if len(d) != DigestLength {
		t.Fatalf("digest length should be %d, not %d", DigestLength, len(d))
	}
}

func TestSimpleHashFromTwoHashesOrder(t *testing.T) {
	a, b := SHA256([]byte("a")), SHA256([]byte("b"))
	if bytes.Equal(SimpleHashFromTwoHashes(a, b), SimpleHashFromTwoHashes(b, a)) {
		t.Fatalf("hash of (a,b) should differ from hash of (b,a)")
	}
}
