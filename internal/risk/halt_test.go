package risk

import (
	"context"
	"testing"

	"perp_bot/internal/notify"
	"perp_bot/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessHalt(t *testing.T) {
	lc := store.New(store.NewMemoryKV())
	rec := &notify.Recorder{}

	var exitReason string
	halt := ProcessHalt(lc, rec, "admission", func(reason string) { exitReason = reason })
	halt("daily loss 120.00 reached limit 100.00")

	assert.Equal(t, "daily loss 120.00 reached limit 100.00", exitReason)

	st, err := lc.GetStatus(context.Background(), "admission")
	require.NoError(t, err)
	assert.Equal(t, "halted", st.State)
	assert.Contains(t, rec.Last(), "halted")
}
