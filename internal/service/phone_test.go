package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already canonical mobile", "5511987654321", "5511987654321"},
		{"national 11 digits gets country code", "11987654321", "5511987654321"},
		{"national 10 digits gets country code", "1187654321", "551187654321"},
		{"formatted input", "+55 (11) 98765-4321", "5511987654321"},
		{"whatsapp jid digits", "5511987654321", "5511987654321"},
		{"empty", "", ""},
		{"no digits", "abc", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.in))
		})
	}
}

func TestPhoneVariants(t *testing.T) {
	t.Run("mobile with ninth digit", func(t *testing.T) {
		got := PhoneVariants("5511987654321")
		assert.Contains(t, got, "5511987654321")
		assert.Contains(t, got, "11987654321")
		assert.Contains(t, got, "1187654321")
		assert.Contains(t, got, "551187654321")
	})

	t.Run("landline style without ninth digit", func(t *testing.T) {
		got := PhoneVariants("551187654321")
		assert.Contains(t, got, "551187654321")
		assert.Contains(t, got, "1187654321")
		assert.Contains(t, got, "11987654321")
		assert.Contains(t, got, "5511987654321")
	})

	t.Run("no duplicates", func(t *testing.T) {
		got := PhoneVariants("5511987654321")
		seen := map[string]bool{}
		for _, v := range got {
			assert.False(t, seen[v], "duplicate variant %s", v)
			seen[v] = true
		}
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Nil(t, PhoneVariants(""))
	})
}
