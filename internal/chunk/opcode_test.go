package chunk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpCodeStringKnown(t *testing.T) {
	require.Equal(t, "OP_CONSTANT", OpConstant.String())
	require.Equal(t, "OP_RETURN", OpReturn.String())
	require.Equal(t, "OP_SUPER_INVOKE", OpSuperInvoke.String())
}

func TestOpCodeStringUnknown(t *testing.T) {
	require.Equal(t, "OP_UNKNOWN", OpCode(255).String())
}
