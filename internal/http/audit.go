package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/paging"
)

const auditPageSize = 25

type AuditController struct {
	reader AuditReader
}

func NewAuditController(reader AuditReader) *AuditController {
	return &AuditController{reader: reader}
}

// GetAuditEvents returns paginated audit events as JSON
// GET /api/audit?type=&entity_type=&entity_id=&staff_id=&page=
func (ac *AuditController) GetAuditEvents(c *gin.Context) {
	filter := entities.AuditFilter{
		Type:       entities.AuditEventType(c.Query("type")),
		EntityType: c.Query("entity_type"),
	}
	if filter.Type != "" && !filter.Type.Valid() {
		respondBadRequest(c, "unknown event type: "+string(filter.Type))
		return
	}

	var ok bool
	if filter.EntityID, ok = parseOptionalQueryID(c, "entity_id"); !ok {
		return
	}
	if filter.EntityID != 0 && filter.EntityType == "" {
		respondBadRequest(c, "entity_id requires entity_type")
		return
	}
	if filter.StaffID, ok = parseOptionalQueryID(c, "staff_id"); !ok {
		return
	}

	page := parsePage(c, auditPageSize)
	events, total, err := ac.reader.GetEvents(filter, page)
	if err != nil {
		respondAppError(c, err, "list audit events")
		return
	}
	c.JSON(http.StatusOK, paging.NewPage(events, page, total))
}

// ListEventTypes returns the event types accepted by ?type=.
// GET /api/audit/types
func (ac *AuditController) ListEventTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"event_types": entities.AuditEventTypes()})
}

// noopEvents discards audit events when no audit service is configured.
type noopEvents struct{}

func (noopEvents) LogCheckout(audit.Actor, *entities.Lending)              {}
func (noopEvents) LogReturn(audit.Actor, *entities.Lending)                {}
func (noopEvents) LogDelete(audit.Actor, string, uint, string)             {}
func (noopEvents) LogCatalog(audit.Actor, string, string, uint, string)    {}
func (noopEvents) LogMembership(audit.Actor, string, string, uint, string) {}
func (noopEvents) LogAuth(audit.Actor, string, bool)                       {}
func (noopEvents) LogReport(audit.Actor, string, map[string]any, error)    {}

func orNoop(events EventLogger) EventLogger {
	if events == nil {
		return noopEvents{}
	}
	return events
}
