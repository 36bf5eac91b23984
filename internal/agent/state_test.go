package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/EternisAI/netboot/internal/api/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dummyHeartbeat() dto.HeartbeatRequest {
	return dto.HeartbeatRequest{ClientID: "c1", MacAddress: "aa:bb:cc:dd:ee:01"}
}

func TestLoadStateMissingFile(t *testing.T) {
	s, err := LoadState(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, s.ClientID)
}

func TestStateSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.yaml")
	s := &State{ClientID: "c1", AuthToken: "nbt_x", Settings: Settings{HeartbeatInterval: 60}}
	s.markExecuted("cmd-1")
	require.NoError(t, s.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, s, loaded)
}

func TestLoadStateRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte("client_id: [unterminated"), 0o600))
	_, err := LoadState(path)
	assert.Error(t, err)
}

func TestExecutedIsBounded(t *testing.T) {
	s := &State{}
	for i := 0; i < maxExecuted+10; i++ {
		s.markExecuted(fmt.Sprintf("cmd-%d", i))
	}
	s.markExecuted("cmd-300")
	assert.Len(t, s.Executed, maxExecuted)
	assert.False(t, s.executed("cmd-0"))
	assert.True(t, s.executed(fmt.Sprintf("cmd-%d", maxExecuted+9)))

	s.unmarkExecuted("cmd-100")
	assert.False(t, s.executed("cmd-100"))
}

func TestSystemCollectorRates(t *testing.T) {
	c := NewSystemCollector()
	start := time.Unix(1000, 0)

	rx, tx := c.rates(start, 1_000_000, 500_000)
	assert.Zero(t, rx)
	assert.Zero(t, tx)

	// 2.5 MB received and 0.5 MB sent over 2s
	rx, tx = c.rates(start.Add(2*time.Second), 3_500_000, 1_000_000)
	assert.InDelta(t, 10.0, rx, 1e-9)
	assert.InDelta(t, 2.0, tx, 1e-9)

	// counter reset
	rx, tx = c.rates(start.Add(3*time.Second), 10, 10)
	assert.Zero(t, rx)
	assert.Zero(t, tx)
}
