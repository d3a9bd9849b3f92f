package audit

import (
	"fmt"
	"log"
	"sync"
	"time"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"

	"github.com/mrlokans/librarian/internal/database/audit"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/paging"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ContextKeyRequestID is the gin context key holding the request's X-Request-ID.
const ContextKeyRequestID = "request_id"

// Actor identifies who triggered an event and from where.
type Actor struct {
	StaffID   uint
	RequestID string
	IPAddress string
	UserAgent string
}

// Service provides high-level audit logging functionality.
type Service struct {
	repo *audit.Repository
	wg   sync.WaitGroup
}

// NewService creates a new audit service.
func NewService(repo *audit.Repository) *Service {
	return &Service{repo: repo}
}

// Log records a generic audit event.
func (s *Service) Log(event *entities.AuditEvent) error {
	return s.repo.LogEvent(event)
}

// LogAsync records an audit event in the background (non-blocking).
func (s *Service) LogAsync(event *entities.AuditEvent) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.repo.LogEvent(event); err != nil {
			log.Printf("Failed to log audit event: %v", err)
		}
	}()
}

// Wait blocks until pending asynchronous events are written.
func (s *Service) Wait() {
	s.wg.Wait()
}

// LogCheckout records a successful checkout.
func (s *Service) LogCheckout(actor Actor, l *entities.Lending) {
	event := s.newEvent(actor, entities.AuditEventCheckout, "lending_checkout")
	event.Description = fmt.Sprintf("Copy %d lent to borrower %d", l.CopyID, l.BorrowerID)
	event.EntityType = "lending"
	event.EntityID = &l.ID
	event.Metadata = encodeMetadata(map[string]any{
		"copy_id":     l.CopyID,
		"borrower_id": l.BorrowerID,
		"due_date":    l.DueDate.Format("2006-01-02"),
	})
	s.LogAsync(event)
}

// LogReturn records a successful return.
func (s *Service) LogReturn(actor Actor, l *entities.Lending) {
	event := s.newEvent(actor, entities.AuditEventReturn, "lending_return")
	event.Description = fmt.Sprintf("Copy %d returned by borrower %d", l.CopyID, l.BorrowerID)
	event.EntityType = "lending"
	event.EntityID = &l.ID
	meta := map[string]any{"copy_id": l.CopyID, "borrower_id": l.BorrowerID}
	if l.ReturnedAt != nil {
		meta["returned_at"] = l.ReturnedAt.Format(time.RFC3339)
	}
	event.Metadata = encodeMetadata(meta)
	s.LogAsync(event)
}

// LogDelete records a deletion event.
func (s *Service) LogDelete(actor Actor, entityType string, entityID uint, entityName string) {
	event := s.newEvent(actor, entities.AuditEventDelete, entityType+"_delete")
	event.Description = "Deleted " + entityType + ": " + truncate(entityName, 400)
	event.EntityType = entityType
	event.EntityID = &entityID
	s.LogAsync(event)
}

// LogCatalog records a create or update of a record or copy.
func (s *Service) LogCatalog(actor Actor, action, entityType string, entityID uint, description string) {
	event := s.newEvent(actor, entities.AuditEventCatalog, action)
	event.Description = truncate(description, 500)
	event.EntityType = entityType
	event.EntityID = &entityID
	s.LogAsync(event)
}

// LogMembership records a change to a borrower or staff account.
func (s *Service) LogMembership(actor Actor, action, entityType string, entityID uint, description string) {
	event := s.newEvent(actor, entities.AuditEventMembership, action)
	event.Description = truncate(description, 500)
	event.EntityType = entityType
	event.EntityID = &entityID
	s.LogAsync(event)
}

// LogAuth records an authentication event.
func (s *Service) LogAuth(actor Actor, action string, success bool) {
	event := s.newEvent(actor, entities.AuditEventAuth, action)
	if !success {
		event.Status = entities.AuditStatusFailed
	}
	s.LogAsync(event)
}

// LogReport records generation of a report.
func (s *Service) LogReport(actor Actor, description string, metadata map[string]any, err error) {
	event := s.newEvent(actor, entities.AuditEventReport, "overdue_report")
	event.Description = truncate(description, 500)
	event.Metadata = encodeMetadata(metadata)
	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
	}
	s.LogAsync(event)
}

// GetEvents pages recorded events matching filter, newest first.
func (s *Service) GetEvents(filter entities.AuditFilter, page paging.Request) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEvents(filter, page)
}

// Retention sets how long events are kept. Circulation applies to checkout
// and return events and is never shorter than Default.
type Retention struct {
	Default     time.Duration
	Circulation time.Duration
}

// PurgeResult counts the events removed by Purge.
type PurgeResult struct {
	Circulation int64 `json:"circulation"`
	Other       int64 `json:"other"`
}

func (r PurgeResult) Total() int64 {
	return r.Circulation + r.Other
}

// Purge deletes events older than their retention.
func (s *Service) Purge(policy Retention) (PurgeResult, error) {
	if policy.Default <= 0 {
		return PurgeResult{}, fmt.Errorf("retention must be positive, got %s", policy.Default)
	}
	circulation := max(policy.Circulation, policy.Default)
	now := time.Now().UTC()

	var res PurgeResult
	var err error
	res.Other, err = s.repo.DeleteBeforeExcept(now.Add(-policy.Default), entities.CirculationEventTypes()...)
	if err != nil {
		return res, fmt.Errorf("purge audit events: %w", err)
	}
	res.Circulation, err = s.repo.DeleteBefore(now.Add(-circulation), entities.CirculationEventTypes()...)
	if err != nil {
		return res, fmt.Errorf("purge circulation events: %w", err)
	}
	return res, nil
}

func (s *Service) newEvent(actor Actor, eventType entities.AuditEventType, action string) *entities.AuditEvent {
	return &entities.AuditEvent{
		StaffID:   actor.StaffID,
		RequestID: actor.RequestID,
		EventType: eventType,
		Action:    action,
		IPAddress: actor.IPAddress,
		UserAgent: truncate(actor.UserAgent, 500),
		Status:    entities.AuditStatusSuccess,
	}
}

func encodeMetadata(metadata map[string]any) string {
	if len(metadata) == 0 {
		return ""
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		log.Printf("Failed to encode audit metadata: %v", err)
		return ""
	}
	return string(b)
}

// truncate shortens s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
