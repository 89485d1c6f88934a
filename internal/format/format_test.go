package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoimportsFormat(t *testing.T) {
	src := "package main\nimport \"fmt\"\nfunc main()   {\nfmt.Println( \"hi\" )\n}\n"
	want := "package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"hi\")\n}\n"

	got, err := Goimports{}.Format(src)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGoimportsFormatDiagnostic(t *testing.T) {
	_, err := Goimports{}.Format("func main() {")
	require.Error(t, err)
}
