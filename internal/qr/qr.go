// Package qr рисует PNG с QR-кодами ссылок на бота.
package qr

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultSize размер изображения в пикселях
const DefaultSize = 512

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// Encode кодирует содержимое в PNG
func Encode(content string, size int) ([]byte, error) {
	if content == "" {
		return nil, fmt.Errorf("empty QR content")
	}
	if size <= 0 {
		size = DefaultSize
	}

	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR: %w", err)
	}
	return png, nil
}

// FileName безопасное имя файла для QR
func FileName(name string) string {
	clean := unsafeName.ReplaceAllString(name, "_")
	if clean == "" || clean == "_" {
		clean = "qr"
	}
	return clean + ".png"
}

// WriteFile сохраняет QR в каталог и возвращает путь к файлу
func WriteFile(dir, name, content string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create QR dir: %w", err)
	}

	png, err := Encode(content, DefaultSize)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, FileName(name))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("failed to write QR file: %w", err)
	}
	return path, nil
}
