package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
)

// SettingsCache keeps workspace settings rows in memory so the hot ingest
// path does not hit Postgres for every event. Entries expire on TTL; there
// is no cross-instance invalidation.
type SettingsCache struct {
	store *gocache.Cache
}

// NewSettingsCache creates a settings cache with the given TTL and cleanup
// interval.
func NewSettingsCache(ttl, cleanupInterval time.Duration) *SettingsCache {
	return &SettingsCache{
		store: gocache.New(ttl, cleanupInterval),
	}
}

// Get returns the cached settings for a workspace, if present.
func (c *SettingsCache) Get(workspaceID string) (*model.WorkspaceSettings, bool) {
	v, found := c.store.Get(workspaceID)
	if !found {
		return nil, false
	}
	settings, ok := v.(*model.WorkspaceSettings)
	return settings, ok
}

// Set stores the settings row for a workspace.
func (c *SettingsCache) Set(workspaceID string, settings *model.WorkspaceSettings) {
	c.store.SetDefault(workspaceID, settings)
}

// Invalidate drops the cached settings for a workspace.
func (c *SettingsCache) Invalidate(workspaceID string) {
	c.store.Delete(workspaceID)
}

// ConnectionCache keeps provider connection rows in memory, keyed by
// workspace and instance name.
type ConnectionCache struct {
	store *gocache.Cache
}

// NewConnectionCache creates a connection cache with the given TTL and
// cleanup interval.
func NewConnectionCache(ttl, cleanupInterval time.Duration) *ConnectionCache {
	return &ConnectionCache{
		store: gocache.New(ttl, cleanupInterval),
	}
}

func connectionKey(workspaceID, instanceName string) string {
	return workspaceID + "/" + instanceName
}

// Get returns the cached connection for a workspace instance, if present.
func (c *ConnectionCache) Get(workspaceID, instanceName string) (*model.Connection, bool) {
	v, found := c.store.Get(connectionKey(workspaceID, instanceName))
	if !found {
		return nil, false
	}
	connection, ok := v.(*model.Connection)
	return connection, ok
}

// Set stores the connection row for a workspace instance.
func (c *ConnectionCache) Set(workspaceID, instanceName string, connection *model.Connection) {
	c.store.SetDefault(connectionKey(workspaceID, instanceName), connection)
}

// Invalidate drops the cached connection for a workspace instance.
func (c *ConnectionCache) Invalidate(workspaceID, instanceName string) {
	c.store.Delete(connectionKey(workspaceID, instanceName))
}
