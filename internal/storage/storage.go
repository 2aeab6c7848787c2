package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidDataURI is returned when a payload is not a decodable data URI
var ErrInvalidDataURI = errors.New("storage: invalid data URI")

// ErrInvalidPath is returned for object paths that escape the bucket
var ErrInvalidPath = errors.New("storage: invalid object path")

// Bucket is an object-storage namespace for uploaded attachment binaries
type Bucket interface {
	// Put stores data at path and returns the public URL of the object
	Put(ctx context.Context, path, contentType string, data []byte) (string, error)
}

// Upload is a file handed to the storage layer
type Upload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Extension picks the object extension: the file name's own, then one
// registered for the content type, then "bin".
func (u Upload) Extension() string {
	if ext := strings.TrimPrefix(path.Ext(u.FileName), "."); ext != "" {
		return strings.ToLower(ext)
	}
	if u.ContentType != "" {
		if exts, err := mime.ExtensionsByType(u.ContentType); err == nil && len(exts) > 0 {
			return strings.TrimPrefix(exts[0], ".")
		}
	}
	return "bin"
}

// DiskBucket stores objects on the local filesystem and serves them over HTTP
type DiskBucket struct {
	root      string
	publicURL string
}

// NewDiskBucket creates root if needed. publicURL is the prefix objects are served under.
func NewDiskBucket(root, publicURL string) (*DiskBucket, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &DiskBucket{root: root, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

func (b *DiskBucket) Put(_ context.Context, objectPath, _ string, data []byte) (string, error) {
	clean := path.Clean("/" + objectPath)
	if clean == "/" || strings.Contains(objectPath, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, objectPath)
	}
	dest := filepath.Join(b.root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", err
	}
	return b.publicURL + escapePath(clean), nil
}

// Handler serves stored objects read-only. Mount it under the public URL prefix.
func (b *DiskBucket) Handler() http.Handler {
	return http.StripPrefix(b.publicURL, http.FileServer(http.Dir(b.root)))
}

// PublicURL is the prefix objects are served under
func (b *DiskBucket) PublicURL() string {
	return b.publicURL
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

// DecodeDataURI decodes a base64 "data:<type>;base64,<payload>" string
func DecodeDataURI(s string) (string, []byte, error) {
	if !strings.HasPrefix(s, "data:") {
		return "", nil, fmt.Errorf("%w: missing data: prefix", ErrInvalidDataURI)
	}
	header, payload, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing payload separator", ErrInvalidDataURI)
	}
	contentType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("%w: payload is not base64", ErrInvalidDataURI)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return contentType, data, nil
}
