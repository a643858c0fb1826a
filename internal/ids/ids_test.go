package ids

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew_SortsInCreationOrder(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	var got []string
	for i := 0; i < 50; i++ {
		got = append(got, NewAt(at))
	}

	require.True(t, sort.StringsAreSorted(got))
	require.Len(t, got[0], 26)
}
