package storage

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	storageFileName = "client-storage.json"
	hkdfInfo        = "moviesir-session/file-storage/v1"
)

// sealedData is the AEAD additional data. It does not depend on the file path, so
// the folder can be moved or spelled differently.
var sealedData = []byte(hkdfInfo)

// FileStorage keeps every key in a single JSON document inside folder. When a
// secret is configured the document is sealed with XChaCha20-Poly1305 using a key
// derived from the secret, so tokens are not readable at rest.
type FileStorage struct {
	path   string
	aead   cipherAEAD
	mu     sync.Mutex
	values map[string]string
}

type cipherAEAD interface {
	NonceSize() int
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

var _ Storage = (*FileStorage)(nil)

// NewFileStorage opens (or creates) the storage document in folder
func NewFileStorage(folder, secret string) (*FileStorage, error) {
	if err := os.MkdirAll(folder, 0o700); err != nil {
		return nil, errors.Wrap(err, "[NewFileStorage] create folder")
	}

	fsStore := &FileStorage{path: filepath.Join(folder, storageFileName)}
	if secret == "" {
		log.Warn().Str("path", fsStore.path).Msg("STORAGE_SECRET not set, client storage is written unencrypted")
	} else {
		aead, err := deriveAEAD(secret)
		if err != nil {
			return nil, err
		}
		fsStore.aead = aead
	}

	if err := fsStore.load(); err != nil {
		return nil, err
	}
	return fsStore, nil
}

func (f *FileStorage) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *FileStorage) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, existed := f.values[key]
	f.values[key] = value
	if err := f.persist(); err != nil {
		if existed {
			f.values[key] = prev
		} else {
			delete(f.values, key)
		}
		return err
	}
	return nil
}

func (f *FileStorage) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, existed := f.values[key]
	if !existed {
		return nil
	}
	delete(f.values, key)
	if err := f.persist(); err != nil {
		f.values[key] = prev
		return err
	}
	return nil
}

func (f *FileStorage) load() error {
	f.values = make(map[string]string)

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "[FileStorage.load] read")
	}
	if len(data) == 0 {
		return nil
	}

	if f.aead != nil {
		nonceSize := f.aead.NonceSize()
		if len(data) < nonceSize {
			return errors.New("[FileStorage.load] storage file is truncated")
		}
		data, err = f.aead.Open(nil, data[:nonceSize], data[nonceSize:], sealedData)
		if err != nil {
			return errors.Wrap(err, "[FileStorage.load] decrypt (wrong STORAGE_SECRET?)")
		}
	}

	if err := json.Unmarshal(data, &f.values); err != nil {
		return errors.Wrap(err, "[FileStorage.load] decode")
	}
	return nil
}

func (f *FileStorage) persist() error {
	data, err := json.Marshal(f.values)
	if err != nil {
		return errors.Wrap(err, "[FileStorage.persist] encode")
	}

	if f.aead != nil {
		nonce := make([]byte, f.aead.NonceSize())
		if _, err := rand.Read(nonce); err != nil {
			return errors.Wrap(err, "[FileStorage.persist] nonce")
		}
		data = f.aead.Seal(nonce, nonce, data, sealedData)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".client-storage-*")
	if err != nil {
		return errors.Wrap(err, "[FileStorage.persist] temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "[FileStorage.persist] write")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "[FileStorage.persist] close")
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return errors.Wrap(err, "[FileStorage.persist] rename")
	}
	return nil
}

func deriveAEAD(secret string) (cipherAEAD, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, errors.Wrap(err, "[FileStorage] derive key")
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "[FileStorage] cipher")
	}
	return aead, nil
}
