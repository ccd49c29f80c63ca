// file: meshd/registry/audit.go
package registry

import (
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// AuditEvent is one row of the registry's non-authoritative audit trail:
// register/deregister history for operability, not a source of truth for
// the in-memory repo.Repository.
type AuditEvent struct {
	ID        uint      `gorm:"primaryKey"`
	Action    string    `gorm:"index"`
	Service   string    `gorm:"index"`
	Version   string
	NodeID    string `gorm:"index"`
	Host      string
	Port      int
	CreatedAt time.Time
}

// Auditor persists AuditEvents to a local SQLite file via gorm. A nil
// *Auditor is valid and every method becomes a no-op, so the registry can
// run without an audit database configured.
type Auditor struct {
	db *gorm.DB
}

// OpenAuditor opens (creating if needed) a SQLite-backed audit log at path.
func OpenAuditor(path string) (*Auditor, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&AuditEvent{}); err != nil {
		return nil, err
	}
	return &Auditor{db: db}, nil
}

func (a *Auditor) record(action, service, version, nodeID, host string, port int) {
	if a == nil || a.db == nil {
		return
	}
	a.db.Create(&AuditEvent{
		Action: action, Service: service, Version: version,
		NodeID: nodeID, Host: host, Port: port, CreatedAt: time.Now(),
	})
}

// Recent returns the last n audit events, most recent first.
func (a *Auditor) Recent(n int) ([]AuditEvent, error) {
	if a == nil || a.db == nil {
		return nil, nil
	}
	var events []AuditEvent
	if err := a.db.Order("id desc").Limit(n).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// Close releases the underlying database handle.
func (a *Auditor) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
