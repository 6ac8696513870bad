package checksum

import "testing"

func TestSum(t *testing.T) {
	// sha256("abc")
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := Sum([]byte("abc")); got != want {
		t.Errorf("Sum = %s", got)
	}
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	if r.Matches("accounts.dat", []byte("a")) {
		t.Error("unknown path matched")
	}
	r.Remember("accounts.dat", []byte("a"))
	if !r.Matches("accounts.dat", []byte("a")) {
		t.Error("remembered content did not match")
	}
	if r.Matches("accounts.dat", []byte("b")) {
		t.Error("different content matched")
	}
	r.Forget("accounts.dat")
	if r.Matches("accounts.dat", []byte("a")) {
		t.Error("forgotten path matched")
	}
}
