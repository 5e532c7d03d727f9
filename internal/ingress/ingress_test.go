package ingress

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `{
	"ingress": [
		{"hostname": "app.example.com", "service": "http://localhost:3000", "originRequest": {"noTLSVerify": true, "websocket": true}},
		{"hostname": "api.example.com", "service": "http://localhost:8080", "path": "/v1", "x-note": "keep"},
		{"service": "http_status:404"}
	],
	"warp-routing": {"enabled": false}
}`

func mustParse(t *testing.T, data string) *Config {
	t.Helper()
	c, err := Parse([]byte(data))
	require.NoError(t, err)
	return c
}

func TestParse_TaggedVariants(t *testing.T) {
	c := mustParse(t, sampleConfig)
	require.Len(t, c.Rules, 3)

	app, ok := c.Rules[0].(*HostRoute)
	require.True(t, ok)
	assert.Equal(t, "app.example.com", app.Hostname)
	assert.True(t, app.Websocket)

	api, ok := c.Rules[1].(*HostRoute)
	require.True(t, ok)
	assert.Equal(t, "/v1", api.Path)
	assert.False(t, api.Websocket)

	ca, ok := c.Rules[2].(*CatchAll)
	require.True(t, ok)
	assert.Equal(t, "http_status:404", ca.Service)
	assert.True(t, c.CatchAllLast())
}

func TestMarshal_PreservesUnknownFields(t *testing.T) {
	c := mustParse(t, sampleConfig)
	data, err := json.Marshal(c)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, map[string]any{"enabled": false}, doc["warp-routing"])

	rules := doc["ingress"].([]any)
	require.Len(t, rules, 3)
	first := rules[0].(map[string]any)
	assert.Equal(t, map[string]any{"noTLSVerify": true, "websocket": true}, first["originRequest"])
	second := rules[1].(map[string]any)
	assert.Equal(t, "keep", second["x-note"])
	assert.Equal(t, "/v1", second["path"])
	_, hasOrigin := second["originRequest"]
	assert.False(t, hasOrigin)
}

func TestInsert_BeforeCatchAll(t *testing.T) {
	c := mustParse(t, sampleConfig)
	require.NoError(t, c.Insert(HostRoute{Hostname: "new.example.com", Service: "http://localhost:5000", Websocket: true}))

	require.Len(t, c.Rules, 4)
	assert.True(t, c.CatchAllLast())
	h, ok := c.Rules[2].(*HostRoute)
	require.True(t, ok)
	assert.Equal(t, "new.example.com", h.Hostname)

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"originRequest":{"websocket":true}`)
}

func TestInsert_Duplicate(t *testing.T) {
	c := mustParse(t, sampleConfig)
	err := c.Insert(HostRoute{Hostname: "APP.example.com", Service: "http://localhost:1"})
	assert.ErrorIs(t, err, ErrDuplicateHost)
	assert.Len(t, c.Rules, 3)
}

func TestInsert_AddsMissingCatchAll(t *testing.T) {
	c := mustParse(t, `{"ingress": []}`)
	require.NoError(t, c.Insert(HostRoute{Hostname: "a.example.com", Service: "http://localhost:1"}))
	require.Len(t, c.Rules, 2)
	ca, ok := c.Rules[1].(*CatchAll)
	require.True(t, ok)
	assert.Equal(t, DefaultCatchAllService, ca.Service)
}

func TestUpdate(t *testing.T) {
	c := mustParse(t, sampleConfig)
	require.NoError(t, c.Update("app.example.com", func(h *HostRoute) {
		h.Service = "http://localhost:4000"
		h.Websocket = false
	}))
	h, ok := c.Find("app.example.com")
	require.True(t, ok)
	assert.Equal(t, "http://localhost:4000", h.Service)

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"originRequest":{"noTLSVerify":true}`)

	err = c.Update("missing.example.com", func(*HostRoute) {})
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestRemove(t *testing.T) {
	c := mustParse(t, sampleConfig)
	removed := c.Remove("app.example.com", "absent.example.com")
	assert.Equal(t, []string{"app.example.com"}, removed)
	require.Len(t, c.Rules, 2)
	assert.True(t, c.CatchAllLast())

	removed = c.Remove("app.example.com")
	assert.Empty(t, removed)
	assert.True(t, c.CatchAllLast())
}

func TestRemove_AllHostsKeepsCatchAll(t *testing.T) {
	c := mustParse(t, sampleConfig)
	c.Remove("app.example.com", "api.example.com")
	require.Len(t, c.Rules, 1)
	assert.True(t, c.CatchAllLast())
	assert.Empty(t, c.Hosts())
}

func TestHosts(t *testing.T) {
	c := mustParse(t, sampleConfig)
	hosts := c.Hosts()
	require.Len(t, hosts, 2)
	assert.Equal(t, "app.example.com", hosts[0].Hostname)
	assert.Equal(t, "api.example.com", hosts[1].Hostname)
}

func TestNormalize(t *testing.T) {
	c := mustParse(t, `{"ingress": [{"hostname": "a.example.com", "service": "http://localhost:1"}]}`)
	assert.False(t, c.CatchAllLast())
	c.Normalize()
	assert.True(t, c.CatchAllLast())
	assert.Len(t, c.Rules, 2)

	c.Normalize()
	assert.Len(t, c.Rules, 2)
}

func TestNormalize_MisplacedCatchAll(t *testing.T) {
	c := mustParse(t, `{"ingress": [
		{"service": "http_status:503"},
		{"hostname": "a.example.com", "service": "http://localhost:1"},
		{"service": "http_status:404"},
		{"hostname": "b.example.com", "service": "http://localhost:2"}]}`)
	c.Normalize()

	require.Len(t, c.Rules, 3)
	assert.True(t, c.CatchAllLast())
	catchAlls := 0
	for _, r := range c.Rules {
		if _, ok := r.(*CatchAll); ok {
			catchAlls++
		}
	}
	assert.Equal(t, 1, catchAlls)
	assert.Equal(t, "http_status:404", c.Rules[2].(*CatchAll).Service)

	require.NoError(t, c.Insert(HostRoute{Hostname: "c.example.com", Service: "http://localhost:3"}))
	assert.Len(t, c.Rules, 4)
	assert.Equal(t, "c.example.com", c.Rules[2].(*HostRoute).Hostname)
	assert.True(t, c.CatchAllLast())
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte(`{"ingress": {"hostname": "x"}}`))
	assert.Error(t, err)
	_, err = Parse([]byte(`{"ingress": [{"hostname": 5}]}`))
	assert.Error(t, err)
}
