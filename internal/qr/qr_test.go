package qr

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func TestEncode(t *testing.T) {
	png, err := Encode("https://t.me/bar_bot?start=s_abc12345", 256)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(png, pngHeader) {
		t.Error("output is not a PNG")
	}

	if _, err := Encode("", 256); err == nil {
		t.Error("expected error for empty content")
	}
}

func TestFileName(t *testing.T) {
	tests := map[string]string{
		"Олег Бармен": "qr.png",
		"oleg_700":    "oleg_700.png",
		"a/b":         "a_b.png",
		"":            "qr.png",
	}
	for in, want := range tests {
		if got := FileName(in); got != want {
			t.Errorf("FileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "qr")

	path, err := WriteFile(dir, "staff_700", "https://t.me/bar_bot?start=s_abc12345")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "staff_700.png" {
		t.Errorf("unexpected path %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, pngHeader) {
		t.Error("written file is not a PNG")
	}
}
