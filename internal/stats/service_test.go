package stats

import (
	"context"
	"testing"
	"time"

	"github.com/EternisAI/netboot/internal/clock"
	"github.com/EternisAI/netboot/internal/common"
	"github.com/EternisAI/netboot/internal/models"
	"github.com/EternisAI/netboot/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	clients := memory.NewClientRepository()
	require.NoError(t, clients.Create(ctx, &models.Client{ID: "c1", HardwareAddress: "aa:bb:cc:00:00:01"}))
	clk := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(memory.NewStatsRepository(), clients, clk)

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Record(ctx, "c1", Sample{CPU: float64(i * 10), MemoryMB: 2048}))
		clk.Advance(30 * time.Second)
	}

	recent, err := svc.Recent(ctx, "c1", 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, 40.0, recent[0].CPU)
	assert.Equal(t, 20.0, recent[2].CPU)

	all, err := svc.Recent(ctx, "c1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestRecordValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewStatsRepository(), memory.NewClientRepository(), nil)

	assert.ErrorIs(t, svc.Record(ctx, "c1", Sample{CPU: 101}), ErrInvalidSample)
	assert.ErrorIs(t, svc.Record(ctx, "c1", Sample{RxMbps: -1}), ErrInvalidSample)
	assert.ErrorIs(t, svc.Record(ctx, "c1", Sample{CPU: 5}), common.ErrUnknownClient)

	_, err := svc.Recent(ctx, "c1", 10)
	assert.ErrorIs(t, err, common.ErrUnknownClient)
}
