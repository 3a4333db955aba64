package providers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorStatusForm(t *testing.T) {
	s := ErrorStatus("provider status 500")
	require.Equal(t, Status("error:provider status 500"), s)
	require.True(t, s.IsError())
	require.True(t, s.Usable())

	long := ErrorStatus(strings.Repeat("x", 80))
	require.Equal(t, "error:"+strings.Repeat("x", DetailLimit), string(long))

	require.False(t, StatusWorking.IsError())
	require.False(t, StatusUnavailable.Usable())
}
