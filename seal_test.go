package secmem

import "testing"

func TestSealRejectsBufferFromPlainAllocator(t *testing.T) {
	buf, err := NewBufferWithAllocator[byte](NewPrivateAllocator(4), 16)
	if err != nil {
		t.Fatalf("NewBufferWithAllocator: %v", err)
	}
	defer buf.Close()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected Seal of a non-key-allocated buffer to abort")
		}
		if _, ok := r.(*UsageError); !ok {
			t.Fatalf("recovered value is %T, want *UsageError", r)
		}
	}()
	_, _ = Seal(buf)
}

func TestNewKeyRandomProducesNonZeroBytesEventually(t *testing.T) {
	keyAlloc := NewPrivateKeyAllocator()
	k, err := NewKeyRandomWithAllocator[byte](keyAlloc, 64)
	if err != nil {
		t.Fatalf("NewKeyRandomWithAllocator: %v", err)
	}
	defer k.Close()

	allZero := true
	err = k.ReadWith(func(view []byte) error {
		for _, b := range view {
			if b != 0 {
				allZero = false
				break
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ReadWith: %v", err)
	}
	// 64 random bytes are zero with probability 2^-512; treat any failure
	// here as a broken RNG source, not bad luck.
	if allZero {
		t.Fatal("expected at least one non-zero byte from OS randomness")
	}
}
