package store

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// BlobStore is the narrow object-store interface the core depends on
// (spec §1: "the core depends on narrow BlobStore and JobStore
// interfaces"); concrete object-store drivers are out of scope. Keys
// follow the layout in spec §6: "jobs/<jobId>/<subPath>/<filename>".
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) (url string, err error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

var nonCanonicalChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// CanonicalizeKey implements spec §6's key canonicalization: path
// traversal tokens stripped, non [A-Za-z0-9._-] characters replaced
// with "_", leading/trailing slashes removed. Each path segment is
// canonicalized independently so "/" remains a valid separator.
func CanonicalizeKey(key string) string {
	key = strings.Trim(key, "/")
	segments := strings.Split(key, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		out = append(out, nonCanonicalChars.ReplaceAllString(seg, "_"))
	}
	return strings.Join(out, "/")
}

// JobBlobKey builds a canonicalized key for jobId/subPath/filename,
// per spec §6 "Blob store key layout".
func JobBlobKey(jobID, subPath, filename string) string {
	return CanonicalizeKey("jobs/" + jobID + "/" + subPath + "/" + filename)
}

// fsBlobStore is a filesystem-backed BlobStore, the simplest concrete
// implementation of the narrow interface — suitable for single-node
// deployments and tests; production deployments swap in an
// object-store-backed implementation behind the same interface.
type fsBlobStore struct {
	root    string
	baseURL string
}

// NewFSBlobStore returns a BlobStore rooted at root; URLs returned by
// Put are baseURL+"/"+key.
func NewFSBlobStore(root, baseURL string) BlobStore {
	return &fsBlobStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *fsBlobStore) Put(_ context.Context, key string, r io.Reader) (string, error) {
	key = CanonicalizeKey(key)
	full := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(full)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", err
	}
	return s.baseURL + "/" + key, nil
}

func (s *fsBlobStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	key = CanonicalizeKey(key)
	return os.Open(filepath.Join(s.root, filepath.FromSlash(key)))
}

func (s *fsBlobStore) Delete(_ context.Context, key string) error {
	key = CanonicalizeKey(key)
	return os.Remove(filepath.Join(s.root, filepath.FromSlash(key)))
}
