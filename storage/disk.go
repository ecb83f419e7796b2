package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/flowchartsman/retry"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

const (
	FolderClubs = "clubs"
	FolderUsers = "users"
)

var (
	ErrNotImage  = errors.New("only image uploads are allowed")
	ErrTooLarge  = errors.New("image exceeds the maximum upload size")
	ErrEmptyFile = errors.New("uploaded file is empty")
)

// sniffLen is how many leading bytes mimetype needs to recognise images.
const sniffLen = 3072

// DiskStore keeps uploaded images under a root directory that the HTTP
// server exposes at publicURL.
type DiskStore struct {
	root      string
	publicURL string
	maxBytes  int64
	retrier   *retry.Retrier
}

func NewDiskStore(root, publicURL string, maxBytes int64) (*DiskStore, error) {
	for _, folder := range []string{FolderClubs, FolderUsers} {
		if err := os.MkdirAll(filepath.Join(root, folder), 0o755); err != nil {
			return nil, err
		}
	}
	return &DiskStore{
		root:      root,
		publicURL: strings.TrimRight(publicURL, "/"),
		maxBytes:  maxBytes,
		retrier:   retry.NewRetrier(3, 50*time.Millisecond, 500*time.Millisecond),
	}, nil
}

// Save writes r to folder under a unique name derived from label and
// returns the public URL of the stored file.
func (s *DiskStore) Save(ctx context.Context, folder, label string, r io.Reader) (string, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	if n == 0 {
		return "", ErrEmptyFile
	}
	head = head[:n]

	mt := mimetype.Detect(head)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", ErrNotImage
	}

	name := uuid.NewString() + mt.Extension()
	if prefix := slug.Make(label); prefix != "" {
		name = prefix + "-" + name
	}
	dst := filepath.Join(s.root, folder, name)

	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}

	body := io.MultiReader(bytes.NewReader(head), r)
	if s.maxBytes > 0 {
		body = io.LimitReader(body, s.maxBytes+1)
	}
	written, err := io.Copy(f, body)
	closeErr := f.Close()
	switch {
	case err == nil && closeErr != nil:
		err = closeErr
	case err == nil && s.maxBytes > 0 && written > s.maxBytes:
		err = ErrTooLarge
	case err == nil && ctx.Err() != nil:
		err = ctx.Err()
	}
	if err != nil {
		_ = os.Remove(dst)
		return "", err
	}

	return s.publicURL + "/" + path.Join(folder, name), nil
}

// Delete removes the file behind a URL returned by Save. Missing files and
// URLs that do not belong to this store are ignored.
func (s *DiskStore) Delete(ctx context.Context, url string) error {
	file, ok := s.localPath(url)
	if !ok {
		return nil
	}

	return s.retrier.RunContext(ctx, func(ctx context.Context) error {
		err := os.Remove(file)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", file, err)
		}
		return nil
	})
}

func (s *DiskStore) localPath(url string) (string, bool) {
	rel, found := strings.CutPrefix(url, s.publicURL+"/")
	if !found || rel == "" {
		return "", false
	}
	clean := path.Clean("/" + rel)[1:]
	if clean == "" || strings.HasPrefix(clean, "..") {
		return "", false
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), true
}
