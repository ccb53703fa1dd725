package httpadapter

import "testing"

func TestValidateUploadFilename(t *testing.T) {
	cases := []struct {
		name     string
		filename string
		wantErr  bool
	}{
		{"jpeg", "monet.jpg", false},
		{"uppercase extension", "MONET.JPG", false},
		{"png", "scan.png", false},
		{"webp", "photo.webp", false},
		{"empty", "", true},
		{"no extension", "monet", true},
		{"executable", "malware.exe", true},
		{"double extension trick", "art.jpg.exe", true},
		{"traversal", "../../etc/passwd.jpg", true},
		{"windows separator", `..\boot.ini.png`, true},
		{"null byte", "art\x00.jpg", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateUploadFilename(tc.filename)
			if (err != nil) != tc.wantErr {
				t.Fatalf("validateUploadFilename(%q) = %v, wantErr=%v", tc.filename, err, tc.wantErr)
			}
		})
	}
}

func TestLooksLikeImage(t *testing.T) {
	webp := append([]byte("RIFF"), 0x24, 0x00, 0x00, 0x00)
	webp = append(webp, []byte("WEBP")...)

	cases := []struct {
		name string
		data []byte
		want bool
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, true},
		{"png", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0x00}, true},
		{"bmp", []byte("BM6"), true},
		{"webp", webp, true},
		{"riff but not webp", append([]byte("RIFF0000"), []byte("WAVE")...), false},
		{"plain text", []byte("hello world"), false},
		{"empty", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := looksLikeImage(tc.data); got != tc.want {
				t.Fatalf("looksLikeImage = %v, want %v", got, tc.want)
			}
		})
	}
}
