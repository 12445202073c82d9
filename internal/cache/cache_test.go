package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
)

func TestSettingsCache_RoundTrip(t *testing.T) {
	c := NewSettingsCache(time.Minute, time.Minute)

	_, found := c.Get("ws-1")
	assert.False(t, found)

	settings := &model.WorkspaceSettings{WorkspaceID: "ws-1", EngineWebhookURL: "https://engine.example/hook"}
	c.Set("ws-1", settings)

	got, found := c.Get("ws-1")
	assert.True(t, found)
	assert.Equal(t, "https://engine.example/hook", got.EngineWebhookURL)

	c.Invalidate("ws-1")
	_, found = c.Get("ws-1")
	assert.False(t, found)
}

func TestSettingsCache_Expiry(t *testing.T) {
	c := NewSettingsCache(10*time.Millisecond, time.Minute)
	c.Set("ws-1", &model.WorkspaceSettings{WorkspaceID: "ws-1"})

	time.Sleep(30 * time.Millisecond)
	_, found := c.Get("ws-1")
	assert.False(t, found)
}

func TestConnectionCache_KeyedByWorkspaceAndInstance(t *testing.T) {
	c := NewConnectionCache(time.Minute, time.Minute)
	c.Set("ws-1", "instance-a", &model.Connection{ID: "conn-1", InstanceName: "instance-a"})

	got, found := c.Get("ws-1", "instance-a")
	assert.True(t, found)
	assert.Equal(t, "conn-1", got.ID)

	_, found = c.Get("ws-2", "instance-a")
	assert.False(t, found)
}
