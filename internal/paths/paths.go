// Package paths maps catalogued papers to storage slugs, absolute file paths and
// public URLs. A slug is the storage-relative path recorded in a paper's filelink.
package paths

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/metakgp/iqps-backend/pkg/config"
)

var (
	// ErrConfig reports an unusable storage layout at construction.
	ErrConfig = errors.New("invalid storage path configuration")
	// ErrInvalidURL reports a slug that cannot be joined onto the public base URL.
	ErrInvalidURL = errors.New("slug is not a valid url path")
)

// Category selects the storage area a paper file lives in.
type Category int

const (
	Unapproved Category = iota
	Approved
	Library
)

func (c Category) String() string {
	switch c {
	case Unapproved:
		return "unapproved"
	case Approved:
		return "approved"
	case Library:
		return "library"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Resolver is immutable after New and safe for concurrent use.
type Resolver struct {
	baseURL *url.URL
	root    string
	slugs   map[Category]string
}

// New validates the layout described by cfg. The uploaded and library roots must
// already exist; the unapproved and approved areas are created when missing.
func New(cfg config.StorageConfig) (*Resolver, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.StaticFilesURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: static files url %q", ErrConfig, cfg.StaticFilesURL)
	}
	if cfg.StorageRoot == "" {
		return nil, fmt.Errorf("%w: storage root is empty", ErrConfig)
	}
	root, err := filepath.Abs(cfg.StorageRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	uploaded := cleanSlug(cfg.UploadedQPsPath)
	library := cleanSlug(cfg.LibraryQPsPath)
	if uploaded == "" || library == "" {
		return nil, fmt.Errorf("%w: uploaded and library paths are required", ErrConfig)
	}

	r := &Resolver{
		baseURL: base,
		root:    root,
		slugs: map[Category]string{
			Unapproved: path.Join(uploaded, "unapproved"),
			Approved:   path.Join(uploaded, "approved"),
			Library:    library,
		},
	}

	for _, slug := range []string{uploaded, library} {
		if !isDir(r.PathFromSlug(slug)) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrConfig, r.PathFromSlug(slug))
		}
	}
	for _, c := range []Category{Unapproved, Approved} {
		if err := os.MkdirAll(r.Dir(c), 0o755); err != nil {
			return nil, fmt.Errorf("%w: create %s area: %v", ErrConfig, c, err)
		}
	}

	return r, nil
}

// Dir returns the absolute directory of a storage area.
func (r *Resolver) Dir(c Category) string {
	return r.PathFromSlug(r.slugs[c])
}

// Slug returns the storage-relative path of filename within category c.
func (r *Resolver) Slug(filename string, c Category) string {
	return path.Join(r.slugs[c], filename)
}

// AbsolutePath returns where filename in category c lives on disk.
func (r *Resolver) AbsolutePath(filename string, c Category) string {
	return r.PathFromSlug(r.Slug(filename, c))
}

// PathFromSlug maps a stored filelink to its absolute path.
func (r *Resolver) PathFromSlug(slug string) string {
	return filepath.Join(r.root, filepath.FromSlash(cleanSlug(slug)))
}

// URLFromSlug maps a stored filelink to its public download URL. Every segment
// must already be URL-safe; Sanitize produces such names.
func (r *Resolver) URLFromSlug(slug string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(slug), "/")
	if clean == "" {
		return "", fmt.Errorf("%w: empty slug", ErrInvalidURL)
	}
	segments := strings.Split(clean, "/")
	for _, seg := range segments {
		if seg == "" || seg == "." || seg == ".." || url.PathEscape(seg) != seg {
			return "", fmt.Errorf("%w: %q", ErrInvalidURL, slug)
		}
	}
	return r.baseURL.JoinPath(segments...).String(), nil
}

// Sanitize turns free text into a URL-safe file name component. Path separators and
// runs of hyphens or whitespace become a single hyphen; anything other than ASCII
// letters, digits, hyphens and underscores is dropped. The result is deterministic.
func Sanitize(raw string) string {
	replaced := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '-':
			return ' '
		}
		return r
	}, raw)

	parts := strings.Fields(replaced)
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		var b strings.Builder
		for _, r := range part {
			if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
				b.WriteRune(r)
			}
		}
		if b.Len() > 0 {
			kept = append(kept, b.String())
		}
	}
	return strings.Join(kept, "-")
}

func cleanSlug(slug string) string {
	slug = strings.Trim(strings.TrimSpace(slug), "/")
	if slug == "" {
		return ""
	}
	return path.Clean(slug)
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
