package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNamesSimilar(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"Mario Rossi", "ROSSI MARIO", true},
		{"Mario Rossi", "Maria Rossi", false},
		{"Mario Rossi", "mario   rossi", true},
		{"Niccolò D'Alessandro", "niccolo d alessandro", true},
		{"Mario Rossi", "Mario Rossi Bianchi", true},
		{"Giulia De Santis", "Giulia Santis", true},
		{"Francesca Bellini", "Francesca Bellinzona", true},
		{"Francesca Bel", "Francesca Bello", true},
		{"Luca Neri", "Luca Nesti", false},
		{"Anna Verdi", "Paolo Verdi", false},
		{"", "", false},
		{"Mario", "", false},
		{"Mario", "Luigi", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NamesSimilar(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
		assert.Equal(t, tt.want, NamesSimilar(tt.b, tt.a), "%q vs %q", tt.b, tt.a)
	}
}
