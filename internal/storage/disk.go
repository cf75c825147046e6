package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/yoockh/echonote/internal/utils"
)

// DiskStore keeps every user's objects under <base>/<userID>/. Object names
// are flat; anything resembling a path escape is rejected up front.
type DiskStore struct {
	base string
}

func NewDiskStore(base string) (*DiskStore, error) {
	if base == "" {
		return nil, errors.New("storage base directory is required")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	return &DiskStore{base: base}, nil
}

func (s *DiskStore) path(userID, name string) (string, error) {
	if userID == "" || name == "" {
		return "", utils.E(utils.CodeInvalidArgument, "DiskStore", "user id and object name are required", nil)
	}
	if strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return "", utils.E(utils.CodeInvalidArgument, "DiskStore", "invalid object name", nil)
	}
	if strings.ContainsAny(userID, "/\\") {
		return "", utils.E(utils.CodeInvalidArgument, "DiskStore", "invalid user id", nil)
	}
	return filepath.Join(s.base, userID, name), nil
}

func (s *DiskStore) Save(ctx context.Context, userID, name string, r io.Reader) (int64, error) {
	p, err := s.path(userID, name)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(p)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(p)
		return 0, err
	}
	return n, nil
}

func (s *DiskStore) Open(ctx context.Context, userID, name string) (io.ReadSeekCloser, int64, error) {
	p, err := s.path(userID, name)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, utils.ErrNotFound
		}
		return nil, 0, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	return f, st.Size(), nil
}

func (s *DiskStore) Exists(ctx context.Context, userID, name string) (bool, error) {
	p, err := s.path(userID, name)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *DiskStore) Remove(ctx context.Context, userID, name string) error {
	p, err := s.path(userID, name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return utils.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *DiskStore) CreateTemp(ctx context.Context, userID string) (io.WriteCloser, string, error) {
	tempName := ".tmp-" + uuid.NewString()
	p, err := s.path(userID, tempName)
	if err != nil {
		return nil, "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, "", err
	}
	f, err := os.Create(p)
	if err != nil {
		return nil, "", err
	}
	return f, tempName, nil
}

func (s *DiskStore) Promote(ctx context.Context, userID, tempName, finalName string) error {
	from, err := s.path(userID, tempName)
	if err != nil {
		return err
	}
	to, err := s.path(userID, finalName)
	if err != nil {
		return err
	}
	return os.Rename(from, to)
}

func (s *DiskStore) Discard(ctx context.Context, userID, tempName string) error {
	p, err := s.path(userID, tempName)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
