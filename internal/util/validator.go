package util

import (
	"errors"
	"net/mail"
	"strings"
)

// ValidateEmail retorna erro para e-mails inválidos.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.New("email obrigatório")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("email inválido")
	}
	return nil
}

// NormalizeCPF remove pontuação e devolve apenas os dígitos.
func NormalizeCPF(cpf string) string {
	var b strings.Builder
	for _, r := range cpf {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateCPF verifica tamanho e dígitos verificadores do CPF.
func ValidateCPF(cpf string) error {
	digits := NormalizeCPF(cpf)
	if len(digits) != 11 {
		return errors.New("cpf deve ter 11 dígitos")
	}
	allSame := true
	for i := 1; i < 11; i++ {
		if digits[i] != digits[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return errors.New("cpf inválido")
	}
	for _, n := range []int{9, 10} {
		sum := 0
		for i := 0; i < n; i++ {
			sum += int(digits[i]-'0') * (n + 1 - i)
		}
		check := (sum * 10) % 11
		if check == 10 {
			check = 0
		}
		if check != int(digits[n]-'0') {
			return errors.New("cpf inválido")
		}
	}
	return nil
}

// ValidateIdentifier aceita e-mail ou CPF como identificador de login.
func ValidateIdentifier(identifier string) error {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return errors.New("identificador obrigatório")
	}
	if strings.Contains(identifier, "@") {
		return ValidateEmail(identifier)
	}
	return ValidateCPF(identifier)
}

// RequireString garante string não vazia.
func RequireString(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New(field + " obrigatório")
	}
	return nil
}
