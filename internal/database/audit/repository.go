// Package audit stores the staff action trail.
package audit

import (
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/paging"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// LogEvent inserts event, stamping CreatedAt when unset.
func (r *Repository) LogEvent(event *entities.AuditEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	return r.db.Create(event).Error
}

// GetEvents pages events matching filter, newest first.
func (r *Repository) GetEvents(filter entities.AuditFilter, page paging.Request) ([]entities.AuditEvent, int64, error) {
	query := r.filtered(filter).Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	events := []entities.AuditEvent{}
	err := query.Order("created_at DESC, id DESC").
		Limit(page.Limit()).
		Offset(page.Offset()).
		Find(&events).Error
	return events, total, err
}

func (r *Repository) filtered(f entities.AuditFilter) *gorm.DB {
	q := r.db.Model(&entities.AuditEvent{})
	if f.Type != "" {
		q = q.Where("event_type = ?", f.Type)
	}
	if f.StaffID != 0 {
		q = q.Where("staff_id = ?", f.StaffID)
	}
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
		if f.EntityID != 0 {
			q = q.Where("entity_id = ?", f.EntityID)
		}
	}
	return q
}

// DeleteBefore removes events created before cutoff. When types are given
// only events of those types are removed.
func (r *Repository) DeleteBefore(cutoff time.Time, types ...entities.AuditEventType) (int64, error) {
	q := r.db.Where("created_at < ?", cutoff)
	if len(types) > 0 {
		q = q.Where("event_type IN ?", types)
	}
	res := q.Delete(&entities.AuditEvent{})
	return res.RowsAffected, res.Error
}

// DeleteBeforeExcept removes events created before cutoff whose type is not
// one of keep.
func (r *Repository) DeleteBeforeExcept(cutoff time.Time, keep ...entities.AuditEventType) (int64, error) {
	if len(keep) == 0 {
		return r.DeleteBefore(cutoff)
	}
	res := r.db.Where("created_at < ? AND event_type NOT IN ?", cutoff, keep).
		Delete(&entities.AuditEvent{})
	return res.RowsAffected, res.Error
}
