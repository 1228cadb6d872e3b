// Package ocr reads text out of profile screenshots and guesses the trainer
// name from it.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

var ErrExtraction = errors.New("text extraction failed")

// Recognizer turns an image into plain multi-line text.
type Recognizer interface {
	Recognize(ctx context.Context, image io.Reader) (string, error)
}

// Tesseract shells out to the tesseract CLI, feeding the image on stdin.
type Tesseract struct {
	Path string
	// Lang is passed as -l when set.
	Lang string
}

func NewTesseract(path string) *Tesseract {
	if path == "" {
		path = "tesseract"
	}
	return &Tesseract{Path: path}
}

func (t *Tesseract) Recognize(ctx context.Context, image io.Reader) (string, error) {
	args := []string{"stdin", "stdout"}
	if t.Lang != "" {
		args = append(args, "-l", t.Lang)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.Path, args...)
	cmd.Stdin = image
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("%w: %w", ErrExtraction, err)
		}
		return "", fmt.Errorf("%w: %w: %s", ErrExtraction, err, msg)
	}
	return stdout.String(), nil
}
