package num64

import "testing"

func TestRoundTrips(t *testing.T) {
	if FromUint64(42).Uint64() != 42 {
		t.Fatal("uint64 round trip failed")
	}
	if FromInt64(-7).Int64() != -7 {
		t.Fatal("int64 round trip failed")
	}
	if FromFloat64(3.5).Float64() != 3.5 {
		t.Fatal("float64 round trip failed")
	}
}

func TestWrongAccessorPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic reading a Uint64 as Int64")
		}
	}()
	FromUint64(1).Int64()
}
