package signing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskNationalID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain digits", "12345678909", "***.456.789-**"},
		{"formatted", "123.456.789-09", "***.456.789-**"},
		{"nine digits exactly", "123456789", "***.456.789-**"},
		{"too short", "1234567", "***.***.***-**"},
		{"empty", "", "***.***.***-**"},
		{"letters only", "abc", "***.***.***-**"},
		{"digits with noise", "cpf: 123-456-789.09", "***.456.789-**"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaskNationalID(tt.input))
		})
	}
}

func TestDigitsOnly(t *testing.T) {
	assert.Equal(t, "12345678909", DigitsOnly("123.456.789-09"))
	assert.Equal(t, "", DigitsOnly("no digits here"))
	assert.Equal(t, "5511988887777", DigitsOnly("+55 (11) 98888-7777"))
}
