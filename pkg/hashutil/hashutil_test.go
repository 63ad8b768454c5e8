package hashutil

import "testing"

func TestIsHexDigest(t *testing.T) {
	tests := []struct {
		name string
		s    string
		want bool
	}{
		{"valid digest", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", true},
		{"too short", "e3b0c4", false},
		{"uppercase rejected", "E3B0C44298FC1C149AFBF4C8996FB92427AE41E4649B934CA495991B7852B855", false},
		{"non-hex char", "g3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsHexDigest(tt.s); got != tt.want {
				t.Errorf("IsHexDigest(%q) = %v, want %v", tt.s, got, tt.want)
			}
		})
	}
}

func TestSumHex(t *testing.T) {
	got := SumHex([]byte(""))
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got != want {
		t.Errorf("SumHex(\"\") = %q, want %q", got, want)
	}
	if !IsHexDigest(got) {
		t.Errorf("SumHex output %q does not look like a hex digest", got)
	}
}
