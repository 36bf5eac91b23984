package clients

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/EternisAI/netboot/internal/clock"
	"github.com/EternisAI/netboot/internal/common"
	"github.com/EternisAI/netboot/internal/models"
	"github.com/EternisAI/netboot/internal/store"
	"github.com/EternisAI/netboot/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *store.Store, *clock.Fake) {
	t.Helper()
	st := memory.New()
	clk := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	return NewService(st, clk), st, clk
}

func TestNormalizeHardwareAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "AA:BB:CC:00:00:01", want: "aa:bb:cc:00:00:01"},
		{in: "aa-bb-cc-00-00-01", want: "aa:bb:cc:00:00:01"},
		{in: "aabb.cc00.0001", want: "aa:bb:cc:00:00:01"},
		{in: "not-a-mac", wantErr: true},
		{in: "", wantErr: true},
		{in: "00:00:00:00:fe:80:00:00:00:00:00:00:02:00:5e:10:00:00:00:01", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeHardwareAddress(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidHardwareAddress)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken()
	require.NoError(t, err)
	b, err := GenerateToken()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, tokenPrefix))
	assert.NotEqual(t, a, b)
}

func TestCreateClient(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.CreateClient(ctx, CreateInput{HardwareAddress: "AA:BB:CC:00:00:01", Name: "pc-01"})
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:00:00:01", c.HardwareAddress)
	assert.Equal(t, models.BootModeUEFI, c.BootMode)
	assert.False(t, c.Online)

	_, err = svc.CreateClient(ctx, CreateInput{HardwareAddress: "aa-bb-cc-00-00-01"})
	assert.ErrorIs(t, err, common.ErrAlreadyExists)

	_, err = svc.CreateClient(ctx, CreateInput{HardwareAddress: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidHardwareAddress)

	_, err = svc.CreateClient(ctx, CreateInput{HardwareAddress: "aa:bb:cc:00:00:02", BootMode: "BIOS"})
	assert.Error(t, err)
}

func TestRegisterUnknownAddress(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Register(context.Background(), "aa:bb:cc:00:00:99", RegisterInput{})
	assert.ErrorIs(t, err, common.ErrNotProvisioned)
}

func TestRegisterReusesLiveToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateClient(ctx, CreateInput{HardwareAddress: "aa:bb:cc:00:00:01"})
	require.NoError(t, err)

	first, err := svc.Register(ctx, "aa:bb:cc:00:00:01", RegisterInput{Hostname: "pc-01", NetworkAddress: "10.0.0.5"})
	require.NoError(t, err)
	second, err := svc.Register(ctx, "AA:BB:CC:00:00:01", RegisterInput{NetworkAddress: "10.0.0.6"})
	require.NoError(t, err)

	assert.Equal(t, first.Token, second.Token)
	assert.Equal(t, first.Client.ID, second.Client.ID)
	assert.True(t, second.Client.Online)
	assert.Equal(t, "10.0.0.6", second.Client.NetworkAddress)
	assert.Equal(t, "pc-01", second.Client.SystemInfo["hostname"])
	assert.NotNil(t, second.Client.LastBootAt)
}

func TestRegisterConcurrentYieldsOneToken(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	c, err := svc.CreateClient(ctx, CreateInput{HardwareAddress: "aa:bb:cc:00:00:01"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	tokens := make([]string, 8)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Register(ctx, "aa:bb:cc:00:00:01", RegisterInput{})
			if assert.NoError(t, err) {
				tokens[i] = res.Token
			}
		}(i)
	}
	wg.Wait()

	live, err := st.Tokens.GetActive(ctx, c.ID)
	require.NoError(t, err)
	for _, tok := range tokens {
		assert.Equal(t, live.Value, tok)
	}
}

func TestValidateToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	c, err := svc.CreateClient(ctx, CreateInput{HardwareAddress: "aa:bb:cc:00:00:01"})
	require.NoError(t, err)
	res, err := svc.Register(ctx, c.HardwareAddress, RegisterInput{})
	require.NoError(t, err)

	id, err := svc.ValidateToken(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, c.ID, id)

	_, err = svc.ValidateToken(ctx, "")
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	_, err = svc.ValidateToken(ctx, "nbt_unknown")
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestRevokeThenRegisterMintsFreshToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	c, err := svc.CreateClient(ctx, CreateInput{HardwareAddress: "aa:bb:cc:00:00:01"})
	require.NoError(t, err)
	first, err := svc.Register(ctx, c.HardwareAddress, RegisterInput{})
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, c.ID))

	_, err = svc.ValidateToken(ctx, first.Token)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	second, err := svc.Register(ctx, c.HardwareAddress, RegisterInput{})
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)

	id, err := svc.ValidateToken(ctx, second.Token)
	require.NoError(t, err)
	assert.Equal(t, c.ID, id)

	assert.ErrorIs(t, svc.Revoke(ctx, "missing"), common.ErrUnknownClient)
}

func TestProvision(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Provision(ctx, "AA:BB:CC:00:00:07", "10.0.0.7")
	require.NoError(t, err)
	assert.True(t, created)

	c, err := svc.GetClientByAddress(ctx, "aa:bb:cc:00:00:07")
	require.NoError(t, err)
	assert.Equal(t, "Auto-discovered client (aa:bb:cc:00:00:07)", c.Name)
	assert.True(t, c.Online)
	assert.Equal(t, "10.0.0.7", c.NetworkAddress)

	created, err = svc.Provision(ctx, "aa:bb:cc:00:00:07", "10.0.0.8")
	require.NoError(t, err)
	assert.False(t, created)

	c, err = svc.GetClientByAddress(ctx, "aa:bb:cc:00:00:07")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7", c.NetworkAddress, "known clients are left untouched")
}

func TestUpdateClient(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	c, err := svc.CreateClient(ctx, CreateInput{HardwareAddress: "aa:bb:cc:00:00:01"})
	require.NoError(t, err)

	name := "front-desk"
	persistent := true
	mode := models.BootModeLegacy
	updated, err := svc.UpdateClient(ctx, c.ID, UpdateInput{Name: &name, Persistent: &persistent, BootMode: &mode})
	require.NoError(t, err)
	assert.Equal(t, "front-desk", updated.Name)
	assert.True(t, updated.Persistent)
	assert.Equal(t, models.BootModeLegacy, updated.BootMode)

	bad := models.BootMode("BIOS")
	_, err = svc.UpdateClient(ctx, c.ID, UpdateInput{BootMode: &bad})
	assert.Error(t, err)

	_, err = svc.UpdateClient(ctx, "missing", UpdateInput{})
	assert.ErrorIs(t, err, common.ErrUnknownClient)
}

func TestDeleteClient(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()
	c, err := svc.CreateClient(ctx, CreateInput{HardwareAddress: "aa:bb:cc:00:00:01"})
	require.NoError(t, err)
	res, err := svc.Register(ctx, c.HardwareAddress, RegisterInput{})
	require.NoError(t, err)

	imageID := "image-1"
	require.NoError(t, st.Clients.SetImage(ctx, c.ID, &imageID))
	assert.ErrorIs(t, svc.DeleteClient(ctx, c.ID), common.ErrInUse)

	require.NoError(t, st.Clients.SetImage(ctx, c.ID, nil))
	require.NoError(t, svc.DeleteClient(ctx, c.ID))

	_, err = svc.GetClient(ctx, c.ID)
	assert.ErrorIs(t, err, common.ErrUnknownClient)
	_, err = svc.ValidateToken(ctx, res.Token)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	assert.ErrorIs(t, svc.DeleteClient(ctx, c.ID), common.ErrUnknownClient)
}
