package util

import "github.com/google/uuid"

// NewRequestID gera identificador de correlação para chamadas à API.
func NewRequestID() string {
	return uuid.NewString()
}
