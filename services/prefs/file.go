package prefs

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// FileStore keeps every key in one CBOR map on disk, rewritten atomically
// on each Save.
type FileStore struct {
	mu   sync.Mutex
	path string
	data map[string][]byte
	enc  cbor.EncMode
}

// OpenFile loads path, or starts empty if it does not exist yet.
func OpenFile(path string) (*FileStore, error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, errors.Wrap(err, "prefs: cbor mode")
	}
	f := &FileStore{path: path, data: map[string][]byte{}, enc: enc}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return f, nil
	case err != nil:
		return nil, errors.Wrapf(err, "prefs: read %s", path)
	}
	if len(raw) == 0 {
		return f, nil
	}
	if err := cbor.Unmarshal(raw, &f.data); err != nil {
		return nil, errors.Wrapf(err, "prefs: decode %s", path)
	}
	return f, nil
}

func (f *FileStore) Load(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (f *FileStore) Save(_ context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.data[key]
	f.data[key] = append([]byte(nil), data...)
	if err := f.flush(); err != nil {
		if had {
			f.data[key] = prev
		} else {
			delete(f.data, key)
		}
		return err
	}
	return nil
}

func (f *FileStore) flush() error {
	raw, err := f.enc.Marshal(f.data)
	if err != nil {
		return errors.Wrap(err, "prefs: encode")
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return errors.Wrap(err, "prefs: mkdir")
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".prefs-*")
	if err != nil {
		return errors.Wrap(err, "prefs: temp file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return errors.Wrap(err, "prefs: write")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "prefs: sync")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "prefs: close")
	}
	return errors.Wrap(os.Rename(tmp.Name(), f.path), "prefs: rename")
}
