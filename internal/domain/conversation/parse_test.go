package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "si", Normalize("Sí"))
	assert.Equal(t, "donde esta mi pedido", Normalize("  Dónde está mi pedido "))
}

func TestDetectPolarity(t *testing.T) {
	tests := []struct {
		text string
		want Polarity
	}{
		{"sí", PolarityAffirmative},
		{"Si, tengo todo", PolarityAffirmative},
		{"dale", PolarityAffirmative},
		{"yes", PolarityAffirmative},
		{"no", PolarityNegative},
		{"No tengo el numero", PolarityNegative},
		{"gracias por la ayuda", PolarityUnknown},
		{"que talles tienen de la campera", PolarityUnknown},
		{"", PolarityUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectPolarity(tt.text), "text %q", tt.text)
	}
}

func TestExtractOrderID(t *testing.T) {
	tests := []struct {
		text string
		want int64
	}{
		{"mi pedido es el 12345", 12345},
		{"orden #99881", 99881},
		{"order 12345, dni 30111222", 12345},
		{"quiero saber donde esta mi compra", 0},
		// A bare 8-digit number could be a DNI, never an order id
		{"30111222", 0},
		{"el numero es 4521", 4521},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractOrderID(tt.text), "text %q", tt.text)
	}
}

func TestExtractFactors(t *testing.T) {
	t.Run("labeled dni and phone", func(t *testing.T) {
		f := ExtractFactors("pedido 12345, dni 30111222, tel +54 11 4444 5555")
		assert.Equal(t, "30111222", f.DNI)
		assert.NotEmpty(t, f.Phone)
		assert.Equal(t, 2, f.Count())
	})

	t.Run("english labels", func(t *testing.T) {
		f := ExtractFactors("order 12345, dni 30111222, phone +54 11 4444 5555")
		assert.Equal(t, "30111222", f.DNI)
		assert.NotEmpty(t, f.Phone)
		assert.Equal(t, 2, f.Count())
		assert.Equal(t, int64(12345), ExtractOrderID("order 12345, dni 30111222, phone +54 11 4444 5555"))
	})

	t.Run("full name", func(t *testing.T) {
		f := ExtractFactors("soy juan perez, pedido 8871")
		assert.Equal(t, "juan", f.Name)
		assert.Equal(t, "perez", f.LastName)
		assert.Equal(t, 1, f.Count())
	})

	t.Run("bare dni next to a labeled order id", func(t *testing.T) {
		f := ExtractFactors("pedido 12345 30111222")
		assert.Equal(t, "30111222", f.DNI)
	})

	t.Run("unlabeled number without country code is not a phone", func(t *testing.T) {
		f := ExtractFactors("11 4444 5555")
		assert.Empty(t, f.Phone)
	})

	t.Run("nothing", func(t *testing.T) {
		f := ExtractFactors("hola, como estas?")
		assert.True(t, f.IsEmpty())
	})
}

func TestDeriveEventID(t *testing.T) {
	a := DeriveEventID([]byte(`{"text":"hola"}`))
	b := DeriveEventID([]byte(`{"text":"hola"}`))
	c := DeriveEventID([]byte(`{"text":"chau"}`))

	assert.Equal(t, a, b, "identical payloads must derive the same id")
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
