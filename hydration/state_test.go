package hydration

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusMachine(t *testing.T) {
	tests := []struct {
		from  Status
		to    Status
		legal bool
	}{
		{StatusIdle, StatusLoading, true},
		{StatusIdle, StatusLoaded, false},
		{StatusIdle, StatusFailed, false},
		{StatusLoading, StatusLoaded, true},
		{StatusLoading, StatusFailed, true},
		{StatusLoading, StatusLoading, false},
		{StatusLoaded, StatusLoading, true},
		{StatusLoaded, StatusIdle, false},
		{StatusFailed, StatusLoading, true},
		{StatusFailed, StatusLoaded, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			current := tt.from
			err := statusMachine.advance(&current, tt.to)
			if tt.legal {
				assert.NoError(t, err)
				assert.Equal(t, tt.to, current)
			} else {
				assert.ErrorIs(t, err, ErrIllegalTransition)
				assert.Equal(t, tt.from, current, "rejected transitions leave the state alone")
			}
		})
	}
}

func TestPreloadMachine(t *testing.T) {
	current := PreloadIdle
	assert.NoError(t, preloadMachine.advance(&current, PreloadPreloading))
	assert.ErrorIs(t, preloadMachine.advance(&current, PreloadIdle), ErrIllegalTransition)
	assert.NoError(t, preloadMachine.advance(&current, PreloadFailed))
	assert.NoError(t, preloadMachine.advance(&current, PreloadPreloading))
	assert.NoError(t, preloadMachine.advance(&current, PreloadPreloaded))
	assert.Equal(t, []string{"idle", "preloading", "preloaded", "failed"}, preloadMachine.names())
}
