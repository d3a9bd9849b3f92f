package entities

import "time"

// AuditEventType groups audit events for filtering and retention.
type AuditEventType string

const (
	AuditEventCheckout   AuditEventType = "checkout"
	AuditEventReturn     AuditEventType = "return"
	AuditEventDelete     AuditEventType = "delete"
	AuditEventCatalog    AuditEventType = "catalog"
	AuditEventMembership AuditEventType = "membership"
	AuditEventAuth       AuditEventType = "auth"
	AuditEventReport     AuditEventType = "report"
)

// AuditEventTypes lists every event type in display order.
func AuditEventTypes() []AuditEventType {
	return []AuditEventType{
		AuditEventCheckout,
		AuditEventReturn,
		AuditEventDelete,
		AuditEventCatalog,
		AuditEventMembership,
		AuditEventAuth,
		AuditEventReport,
	}
}

// CirculationEventTypes are the events that make up the lending trail.
func CirculationEventTypes() []AuditEventType {
	return []AuditEventType{AuditEventCheckout, AuditEventReturn}
}

func (t AuditEventType) Valid() bool {
	for _, known := range AuditEventTypes() {
		if t == known {
			return true
		}
	}
	return false
}

func (t AuditEventType) IsCirculation() bool {
	return t == AuditEventCheckout || t == AuditEventReturn
}

type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailed  AuditStatus = "failed"
)

// AuditEvent is one row of the staff action trail. Events reference their
// subject by type and id only, so they outlive deleted copies and borrowers.
type AuditEvent struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	StaffID     uint           `gorm:"index" json:"staff_id"`
	RequestID   string         `gorm:"size:36" json:"request_id,omitempty"`
	EventType   AuditEventType `gorm:"index;size:50" json:"event_type"`
	Action      string         `gorm:"size:100" json:"action"`
	Description string         `gorm:"size:500" json:"description"`
	EntityType  string         `gorm:"index:idx_audit_entity;size:50" json:"entity_type"`
	EntityID    *uint          `gorm:"index:idx_audit_entity" json:"entity_id,omitempty"`
	Metadata    string         `gorm:"type:text" json:"metadata,omitempty"`
	IPAddress   string         `gorm:"size:45" json:"ip_address,omitempty"`
	UserAgent   string         `gorm:"size:500" json:"user_agent,omitempty"`
	Status      AuditStatus    `gorm:"size:20" json:"status"`
	ErrorMsg    string         `gorm:"size:500" json:"error_msg,omitempty"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}

func (AuditEvent) TableName() string {
	return "audit_events"
}

// AuditFilter narrows an audit listing. Zero fields match everything;
// EntityID is only applied together with EntityType.
type AuditFilter struct {
	Type       AuditEventType
	EntityType string
	EntityID   uint
	StaffID    uint
}
