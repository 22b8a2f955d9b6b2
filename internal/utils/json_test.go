package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalNoEscape_KeepsHTMLCharacters(t *testing.T) {
	out, err := MarshalNoEscape(map[string]string{"details": "<html>bad & worse</html>"})
	require.NoError(t, err)
	assert.Equal(t, `{"details":"<html>bad & worse</html>"}`, string(out))
}

func TestMarshalNoEscape_NoTrailingNewline(t *testing.T) {
	out, err := MarshalNoEscape([]int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, "[1,2]", string(out))
}
