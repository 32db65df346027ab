package reports

import "testing"

func TestThousands(t *testing.T) {
	tests := map[int64]string{
		0:        "0",
		999:      "999",
		1000:     "1,000",
		150000:   "150,000",
		2500000:  "2,500,000",
		-1234567: "-1,234,567",
	}
	for n, want := range tests {
		if got := thousands(n); got != want {
			t.Errorf("thousands(%d) = %q, want %q", n, got, want)
		}
	}
}
