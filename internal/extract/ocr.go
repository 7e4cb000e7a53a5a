package extract

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"time"
)

// TesseractOCR runs optical character recognition by shelling out to the
// tesseract binary.
type TesseractOCR struct {
	Lang    string
	Timeout time.Duration
}

// NewTesseractOCR returns OCR settings with English and a 20s timeout.
func NewTesseractOCR() *TesseractOCR {
	return &TesseractOCR{Lang: "eng", Timeout: 20 * time.Second}
}

// Extract recognizes text from the full image.
func (t *TesseractOCR) Extract(ctx context.Context, r io.Reader) (string, error) {
	f, err := os.CreateTemp("", "upload-*.img")
	if err != nil {
		return "", err
	}
	defer func() { f.Close(); os.Remove(f.Name()) }()
	if _, err := io.Copy(f, r); err != nil {
		return "", err
	}
	return t.exec(ctx, f.Name())
}

func (t *TesseractOCR) exec(ctx context.Context, inPath string) (string, error) {
	if _, err := exec.LookPath("tesseract"); err != nil {
		return "", errors.New("tesseract not found in PATH")
	}
	args := []string{inPath, "stdout"}
	if t.Lang != "" {
		args = append(args, "-l", t.Lang)
	}
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, "tesseract", args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", errors.New(stderr.String())
	}
	return out.String(), nil
}
