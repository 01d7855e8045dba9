package tokenstore

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrEmptyToken é devolvido ao tentar persistir token vazio.
var ErrEmptyToken = errors.New("tokenstore: token vazio")

// Store guarda o token de acesso de forma durável. Get e Clear nunca falham:
// qualquer erro de armazenamento é tratado como "sem token".
type Store interface {
	Get(ctx context.Context) string
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context)
}

// MemoryStore mantém o token apenas em memória.
type MemoryStore struct {
	mu    sync.Mutex
	token string
}

// NewMemoryStore cria store em memória, útil para testes.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Get(ctx context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

func (m *MemoryStore) Set(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrEmptyToken
	}
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
}
