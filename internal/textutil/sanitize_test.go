package textutil

import "testing"

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  Track 01.flac ", "Track 01.flac"},
		{"../../etc/passwd", "-..-etc-passwd"},
		{"AC/DC: Live?.mp3", "AC-DC- Live.mp3"},
		{`a\b*c|d<e>"f`, "a-b-cdef"},
		{"..", "upload.bin"},
		{".hidden.mp3", "hidden.mp3"},
		{"   ", "upload.bin"},
		{"???", "upload.bin"},
	}
	for _, tc := range cases {
		if got := SanitizeFileName(tc.in, "upload.bin"); got != tc.want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
