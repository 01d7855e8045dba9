package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// FileStore persiste o token em um arquivo JSON local, com escrita atômica.
type FileStore struct {
	mu   sync.Mutex
	path string
}

type fileRecord struct {
	AccessToken string    `json:"access_token"`
	SavedAt     time.Time `json:"saved_at"`
}

// NewFileStore cria store apontando para o caminho informado.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path devolve o caminho do arquivo.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Get(ctx context.Context) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("path", f.path).Msg("tokenstore: falha ao ler arquivo")
		}
		return ""
	}

	var rec fileRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		log.Warn().Err(err).Str("path", f.path).Msg("tokenstore: arquivo corrompido")
		return ""
	}
	return rec.AccessToken
}

func (f *FileStore) Set(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrEmptyToken
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	payload, err := json.Marshal(fileRecord{AccessToken: token, SavedAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, f.path)
}

func (f *FileStore) Clear(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("path", f.path).Msg("tokenstore: falha ao remover arquivo")
	}
}
