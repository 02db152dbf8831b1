package huebot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t testing.TB) (*API, *Huebot, *mockDB) {
	t.Helper()
	session := newMockSessionHandler()
	h, db := newTestBot(t, session, testTasks(4))
	h.startedAt = time.Now().Add(-time.Minute)

	api, err := newAPI(h, h.config.API)
	require.NoError(t, err)
	h.api = api
	return api, h, db
}

func apiRequest(
	t testing.TB,
	api *API,
	path string,
) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req, err := http.NewRequestWithContext(
		context.Background(),
		http.MethodGet,
		path,
		nil,
	)
	require.NoError(t, err)
	api.engine.ServeHTTP(w, req)
	return w
}

func TestAPIPing(t *testing.T) {
	t.Parallel()
	api, _, _ := newTestAPI(t)

	w := apiRequest(t, api, apiPathPing)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
	assert.NotEmpty(t, w.Header().Get(xRequestIDHeader))
}

func TestAPIHealth(t *testing.T) {
	t.Parallel()
	api, h, _ := newTestAPI(t)
	h.discord.connected.Store(true)
	h.discord.metricConnects.Add(2)
	h.discord.metricDisconnects.Add(1)
	h.setLastProvision(ProvisionSummary{Available: 3, Created: 2, Existing: 1})

	w := apiRequest(t, api, apiPathHealth)
	require.Equal(t, http.StatusOK, w.Code)

	var health healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.True(t, health.DiscordConnected)
	assert.Equal(t, int64(2), health.Connects)
	assert.Equal(t, int64(1), health.Disconnects)
	assert.Equal(t, 4, health.PaletteSize)
	assert.NotEmpty(t, health.Uptime)
	require.NotNil(t, health.LastProvision)
	assert.Equal(t, int64(2), health.LastProvision.Created)
}

func TestAPIPalette(t *testing.T) {
	t.Parallel()
	api, h, _ := newTestAPI(t)

	w := apiRequest(t, api, apiPathPalette)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Roles []paletteResponseEntry `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Roles, len(h.palette))
	assert.Equal(t, h.palette[0].Name, body.Roles[0].Name)
	assert.Equal(t, "#000000", body.Roles[0].Color)
	assert.Equal(t, "#001111", body.Roles[1].Color)
}

func TestAPIRoleChanges(t *testing.T) {
	t.Parallel()
	api, _, db := newTestAPI(t)

	user := &discordgo.User{ID: "user-1", Username: "somebody"}
	role := &discordgo.Role{ID: "role-1", Name: "Crimson"}
	change := newRoleChange(
		"guild-1", user, role, RoleChangeAdd, RoleChangeSourceCommand,
	)
	_, err := db.Create(context.Background(), &change)
	require.NoError(t, err)

	w := apiRequest(t, api, apiPathChanges)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Changes []RoleChange `json:"changes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Changes, 1)
	assert.Equal(t, "Crimson", body.Changes[0].RoleName)

	w = apiRequest(t, api, apiPathChanges+"?guild_id=other-guild")
	require.Equal(t, http.StatusOK, w.Code)
	body.Changes = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Changes)
}

func TestAPIRoleChangesBadParams(t *testing.T) {
	t.Parallel()
	api, _, _ := newTestAPI(t)

	for _, path := range []string{
		apiPathChanges + "?limit=0",
		apiPathChanges + "?limit=nope",
		apiPathChanges + "?limit=9999",
		apiPathChanges + "?offset=-1",
	} {
		w := apiRequest(t, api, path)
		assert.Equalf(t, http.StatusBadRequest, w.Code, "path %s", path)
	}
}

func TestAPIRequestIDPassthrough(t *testing.T) {
	t.Parallel()
	api, _, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	req, err := http.NewRequestWithContext(
		context.Background(),
		http.MethodGet,
		apiPathPing,
		nil,
	)
	require.NoError(t, err)
	req.Header.Set(xRequestIDHeader, "abc123")
	api.engine.ServeHTTP(w, req)

	assert.Equal(t, "abc123", w.Header().Get(xRequestIDHeader))
}
