package feed

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSkipBOM(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{"body with BOM", append([]byte{0xEF, 0xBB, 0xBF}, `{"a":1}`...), `{"a":1}`},
		{"body without BOM", []byte(`{"a":1}`), `{"a":1}`},
		{"empty body", []byte{}, ""},
		{"only BOM", []byte{0xEF, 0xBB, 0xBF}, ""},
		{"partial BOM", []byte{0xEF, 0xBB, 'a'}, string([]byte{0xEF, 0xBB, 'a'})},
		{"short body", []byte("{}"), "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(skipBOM(bytes.NewReader(tt.input)))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
		})
	}
}

func TestCountingReader(t *testing.T) {
	cr := &countingReader{r: bytes.NewReader(make([]byte, 1500))}
	_, err := io.Copy(io.Discard, cr)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), cr.n)
}
