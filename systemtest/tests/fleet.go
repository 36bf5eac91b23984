package tests

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/EternisAI/netboot/internal/api/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seatMAC = "52:54:00:12:34:56"

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

// TestFleetLifecycle drives one machine from provisioning to removal through
// the admin, client and boot surfaces.
func TestFleetLifecycle(t *testing.T, router *gin.Engine, bootKey string) {
	admin := login(t, router)
	bootHeaders := map[string]string{"X-API-Key": bootKey}

	rr := doJSONWithAuth(router, "POST", "/api/v1/admin/images", dto.CreateImageRequest{
		Name:      "win11-gaming",
		OSVersion: "Windows 11 23H2",
		SizeBytes: 64,
		Content:   []byte("golden-base-image"),
	}, admin)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	image := decode[dto.ImageResponse](t, rr)

	rr = doJSONWithAuth(router, "POST", "/api/v1/admin/clients", dto.CreateClientRequest{MacAddress: seatMAC, Name: "seat-01"}, admin)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	client := decode[dto.ClientResponse](t, rr)

	rr = doJSONWithAuth(router, "PUT", "/api/v1/admin/clients/"+client.ID+"/image", dto.AssignImageRequest{ImageID: image.ID}, admin)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	t.Run("boot target requires key", func(t *testing.T) {
		rr := doJSON(router, "GET", "/api/v1/boot/targets/"+seatMAC, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)

		rr = doRequest(router, "GET", "/api/v1/boot/targets/"+seatMAC, nil, bootHeaders)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), image.ID)
	})

	rr = doJSON(router, "POST", "/api/v1/client/register", dto.RegisterRequest{MacAddress: seatMAC, Hostname: "seat-01", IPAddress: "10.0.0.21"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	reg := decode[dto.RegisterResponse](t, rr)
	assert.Equal(t, client.ID, reg.ClientID)

	rr = doJSONWithAuth(router, "POST", "/api/v1/client/heartbeat", dto.HeartbeatRequest{ClientID: reg.ClientID, MacAddress: seatMAC}, reg.AuthToken)
	require.Equal(t, http.StatusOK, rr.Code)

	t.Run("overlay isolates writes", func(t *testing.T) {
		rr := doJSONWithAuth(router, "POST", "/api/v1/admin/images/"+image.ID+"/overlay/enable", nil, admin)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		rr = doRequest(router, "PUT", "/api/v1/boot/images/"+image.ID+"/blocks?offset=0", []byte("GAMER"), bootHeaders)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		rr = doRequest(router, "GET", "/api/v1/boot/images/"+image.ID+"/content", nil, bootHeaders)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "GAMERn-base-image", rr.Body.String())
	})

	t.Run("assigned image cannot be deleted", func(t *testing.T) {
		rr := doJSONWithAuth(router, "DELETE", "/api/v1/admin/images/"+image.ID, nil, admin)
		assert.Equal(t, http.StatusConflict, rr.Code)

		online := false
		rr = doJSONWithAuth(router, "POST", "/api/v1/admin/clients/"+client.ID+"/status", dto.ReportStatusRequest{Online: &online}, admin)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = doJSONWithAuth(router, "DELETE", "/api/v1/admin/images/"+image.ID, nil, admin)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("commit and restore", func(t *testing.T) {
		rr := doJSONWithAuth(router, "POST", "/api/v1/admin/images/"+image.ID+"/points", dto.CreatePointRequest{Name: "before-commit"}, admin)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		point := decode[dto.PointResponse](t, rr)

		rr = doJSONWithAuth(router, "POST", "/api/v1/admin/images/"+image.ID+"/overlay/disable", dto.DisableOverlayRequest{Commit: true}, admin)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, "base", decode[dto.ImageResponse](t, rr).OverlayState)

		rr = doRequest(router, "GET", "/api/v1/boot/images/"+image.ID+"/content", nil, bootHeaders)
		assert.Equal(t, "GAMERn-base-image", rr.Body.String())

		rr = doJSONWithAuth(router, "POST", "/api/v1/admin/points/"+point.ID+"/restore", nil, admin)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		rr = doRequest(router, "GET", "/api/v1/boot/images/"+image.ID+"/content", nil, bootHeaders)
		assert.Equal(t, "golden-base-image", rr.Body.String())

		rr = doJSONWithAuth(router, "GET", "/api/v1/admin/images/"+image.ID+"/points", nil, admin)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 1, decode[dto.ListPointsResponse](t, rr).Count)
	})

	t.Run("commands round trip", func(t *testing.T) {
		rr := doJSONWithAuth(router, "POST", "/api/v1/admin/clients/"+client.ID+"/commands", map[string]any{"type": "reboot"}, admin)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		rr = doJSONWithAuth(router, "GET", "/api/v1/client/commands", nil, reg.AuthToken)
		require.Equal(t, http.StatusOK, rr.Code)
		pending := decode[dto.CommandsResponse](t, rr).Commands
		require.Len(t, pending, 1)
		assert.Equal(t, "reboot", pending[0].Type)

		rr = doJSONWithAuth(router, "POST", "/api/v1/client/commands/"+pending[0].ID+"/ack", dto.AckRequest{ClientID: reg.ClientID}, reg.AuthToken)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = doJSONWithAuth(router, "GET", "/api/v1/client/commands", nil, reg.AuthToken)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, decode[dto.CommandsResponse](t, rr).Commands)

		rr = doJSONWithAuth(router, "GET", "/api/v1/admin/clients/"+client.ID+"/commands?all=true", nil, admin)
		require.Equal(t, http.StatusOK, rr.Code)
		all := decode[dto.CommandsResponse](t, rr).Commands
		require.Len(t, all, 1)
		assert.NotNil(t, all[0].AcknowledgedAt)
	})

	t.Run("stats reach the admin view", func(t *testing.T) {
		rr := doJSONWithAuth(router, "POST", "/api/v1/client/stats", dto.StatsRequest{
			ClientID: reg.ClientID, CPUUsage: 37.5, MemoryUsageMB: 6144, NetworkRxMbps: 12, NetworkTxMbps: 1.5,
		}, reg.AuthToken)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = doJSONWithAuth(router, "GET", "/api/v1/admin/clients/"+client.ID+"/stats?limit=10", nil, admin)
		require.Equal(t, http.StatusOK, rr.Code)
		resp := decode[dto.StatsResponse](t, rr)
		require.Equal(t, 1, resp.Count)
		assert.Equal(t, 37.5, resp.Stats[0].CPUUsage)
	})

	t.Run("teardown", func(t *testing.T) {
		rr := doJSONWithAuth(router, "DELETE", "/api/v1/admin/clients/"+client.ID+"/image", nil, admin)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = doJSONWithAuth(router, "DELETE", "/api/v1/admin/images/"+image.ID, nil, admin)
		assert.Equal(t, http.StatusNoContent, rr.Code)

		rr = doJSONWithAuth(router, "DELETE", "/api/v1/admin/clients/"+client.ID, nil, admin)
		assert.Equal(t, http.StatusNoContent, rr.Code)

		rr = doJSONWithAuth(router, "POST", "/api/v1/client/heartbeat", dto.HeartbeatRequest{ClientID: reg.ClientID, MacAddress: seatMAC}, reg.AuthToken)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
