package serial

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListPorts(t *testing.T) {
	ports, err := ListPorts()
	if err != nil {
		t.Skipf("port enumeration unavailable: %v", err)
	}
	require.True(t, sort.StringsAreSorted(ports))
}
