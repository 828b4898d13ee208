package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Mario Rossi", "mario rossi"},
		{"  ROSSI   MARIO  ", "rossi mario"},
		{"Niccolò D'Àlessandro", "niccolo d alessandro"},
		{"Anna-Maria  Bianchi.", "anna maria bianchi"},
		{"Corso UX/UI Design 2025", "corso ux ui design 2025"},
		{"", ""},
		{"  ...  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Name(tt.in))
		})
	}
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"giulia", "de", "santis"}, Tokens("Giulia De Santis"))
	assert.Empty(t, Tokens("   "))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "mario rossi|12", Key("Mario  Rossi", 12))
	assert.Equal(t, "mario rossi|0", Key("mario rossi", 0))
	assert.Equal(t, Key("Mario Rossì", 3), Key("MARIO ROSSI", 3))
}

func TestHeader(t *testing.T) {
	assert.Equal(t, "data_iscrizione", Header("Data Iscrizione"))
	assert.Equal(t, "e_mail", Header("E-mail"))
}
