// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and session layers.
package domain

import "time"

// Fixed storage keys for persisted client state. They are written together on
// login/refresh and removed together on logout or a failed restore.
const (
	StorageKeyToken        = "auth_token"
	StorageKeyRefreshToken = "refresh_token"
	StorageKeyUser         = "user_data"
)

// StorageKeys lists every key owned by the session store.
var StorageKeys = []string{StorageKeyToken, StorageKeyRefreshToken, StorageKeyUser}

// StorageItem is one persisted key/value pair of client-side state, the
// durable equivalent of a browser's local storage entry.
type StorageItem struct {
	Key       string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Value     string    `gorm:"type:TEXT NOT NULL"`
	UpdatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoUpdateTime"`
}

// TableName implements the GORM tabler interface.
func (StorageItem) TableName() string { return "client_storage" }
