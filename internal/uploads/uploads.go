// Package uploads keeps registration screenshots, either in a local
// directory or in an S3 bucket.
package uploads

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	ErrNotFound        = errors.New("upload not found")
	ErrInvalidFilename = errors.New("invalid upload filename")
)

// URLPrefix is the public path uploads are served under.
const URLPrefix = "/uploads/"

// Store saves and serves uploaded files by sanitized name. Saving a name that
// already exists replaces it.
type Store interface {
	// Save stores r under the sanitized form of name and returns that form.
	Save(ctx context.Context, name string, r io.Reader) (string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SanitizeFilename reduces name to a flat ASCII filename: accents are folded,
// path separators and whitespace become underscores, anything outside
// [A-Za-z0-9_.-] is dropped and leading or trailing dots and underscores are
// trimmed. The result may be empty.
func SanitizeFilename(name string) string {
	name = norm.NFKD.String(name)

	var b strings.Builder
	for _, r := range name {
		if r < 0x80 {
			b.WriteRune(r)
		}
	}
	name = b.String()

	name = strings.NewReplacer("/", " ", `\`, " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeChars.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}

// URL is the public path of a stored upload.
func URL(name string) string {
	return URLPrefix + name
}

func cleanName(name string) (string, error) {
	clean := SanitizeFilename(name)
	if clean == "" {
		return "", ErrInvalidFilename
	}
	return clean, nil
}
