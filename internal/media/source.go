package media

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Kind discriminates source payload variants.
type Kind string

const (
	// KindURL is a remote media item fetched over HTTP(S).
	KindURL Kind = "url"
	// KindFile is a media file already present on local storage.
	KindFile Kind = "file"
)

// Source identifies one media item to enrich.
type Source struct {
	Kind Kind `json:"kind"`
	// Location is the URL for KindURL and the absolute path for KindFile.
	Location string `json:"location"`
	// Title is an optional display name; derived from Location when empty.
	Title string `json:"title,omitempty"`
}

// ParseSource builds a validated Source from raw CLI or API input.
func ParseSource(kind, location, title string) (Source, error) {
	src := Source{
		Kind:     Kind(strings.ToLower(strings.TrimSpace(kind))),
		Location: strings.TrimSpace(location),
		Title:    strings.TrimSpace(title),
	}
	if src.Location == "" {
		return Source{}, errors.New("source location is required")
	}
	switch src.Kind {
	case KindURL:
		parsed, err := url.Parse(src.Location)
		if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return Source{}, fmt.Errorf("source %q is not a valid http(s) url", src.Location)
		}
	case KindFile:
		abs, err := filepath.Abs(src.Location)
		if err != nil {
			return Source{}, fmt.Errorf("resolve source path: %w", err)
		}
		src.Location = abs
	default:
		return Source{}, fmt.Errorf("unknown source kind %q", kind)
	}
	if src.Title == "" {
		src.Title = inferTitle(src.Location)
	}
	return src, nil
}

// Key derives the stable idempotency key for this source: the hex SHA-256 of
// the kind and normalized location. Two enqueues of the same logical item
// always produce the same key.
func (s Source) Key() string {
	sum := sha256.Sum256([]byte(string(s.Kind) + "\x00" + s.Location))
	return hex.EncodeToString(sum[:])
}

// Validate reports whether the source carries the fields its kind requires.
func (s Source) Validate() error {
	if s.Location == "" {
		return errors.New("source location is empty")
	}
	switch s.Kind {
	case KindURL, KindFile:
		return nil
	default:
		return fmt.Errorf("unknown source kind %q", s.Kind)
	}
}

// Marshal serializes the source for the job input column.
func (s Source) Marshal() (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal source: %w", err)
	}
	return string(raw), nil
}

// UnmarshalSource restores a Source from the job input column.
func UnmarshalSource(raw string) (Source, error) {
	var src Source
	if err := json.Unmarshal([]byte(raw), &src); err != nil {
		return Source{}, fmt.Errorf("unmarshal source: %w", err)
	}
	if err := src.Validate(); err != nil {
		return Source{}, err
	}
	return src, nil
}

func inferTitle(location string) string {
	base := strings.TrimSpace(filepath.Base(location))
	if idx := strings.IndexAny(base, "?#"); idx >= 0 {
		base = base[:idx]
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "Untitled Media"
	}
	return base
}
