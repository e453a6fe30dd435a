package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-helpdesk/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

const (
	defaultTicketPageSize = 50
	maxTicketPageSize     = 500
)

// TicketStore upserts tickets keyed by (platform_connection_id,
// external_ticket_id) and serves the dashboard listings.
type TicketStore struct {
	db   *bun.DB
	repo repository.Repository[*ticketRecord]
}

func (s *TicketStore) UpsertBatch(ctx context.Context, tickets []core.Ticket) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: ticket store is not configured")
	}
	if len(tickets) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()

	// A single statement may not touch the same conflict key twice; the last
	// occurrence in the batch wins.
	index := make(map[string]int, len(tickets))
	records := make([]*ticketRecord, 0, len(tickets))
	for _, ticket := range tickets {
		record := newTicketRecord(ticket, now)
		if record.PlatformConnectionID == "" || record.ExternalTicketID == "" {
			return 0, fmt.Errorf("sqlstore: ticket connection id and external ticket id are required")
		}
		if record.ProfileID == "" {
			return 0, fmt.Errorf("sqlstore: ticket profile id is required")
		}
		key := record.PlatformConnectionID + "\x00" + record.ExternalTicketID
		if at, seen := index[key]; seen {
			record.ID = records[at].ID
			records[at] = record
			continue
		}
		index[key] = len(records)
		records = append(records, record)
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(&records).
			On("CONFLICT (platform_connection_id, external_ticket_id) DO UPDATE").
			Set("created_date = EXCLUDED.created_date").
			Set("resolved_date = EXCLUDED.resolved_date").
			Set("status = EXCLUDED.status").
			Set("thread = EXCLUDED.thread").
			Set("summary = EXCLUDED.summary").
			Set("customer_id = EXCLUDED.customer_id").
			Set("agent_name = EXCLUDED.agent_name").
			Set("last_fetched_at = EXCLUDED.last_fetched_at").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (s *TicketStore) Count(ctx context.Context, connectionID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: ticket store is not configured")
	}
	q := s.db.NewSelect().Model((*ticketRecord)(nil))
	if trimmed := strings.TrimSpace(connectionID); trimmed != "" {
		q = q.Where("?TableAlias.platform_connection_id = ?", trimmed)
	}
	return q.Count(ctx)
}

// List pages a profile's tickets newest first. Tickets of deactivated
// connections stay stored but are not listed or summarized.
func (s *TicketStore) List(ctx context.Context, filter core.TicketFilter) (core.TicketPage, error) {
	if s == nil || s.repo == nil {
		return core.TicketPage{}, fmt.Errorf("sqlstore: ticket store is not configured")
	}
	profileID := strings.TrimSpace(filter.ProfileID)
	if profileID == "" {
		return core.TicketPage{}, fmt.Errorf("sqlstore: profile id is required")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultTicketPageSize
	}
	if limit > maxTicketPageSize {
		limit = maxTicketPageSize
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	platformType := strings.TrimSpace(string(filter.PlatformType))
	selectors := []repository.SelectCriteria{
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			q = q.Join("JOIN platform_connections AS pc ON pc.id = ?TableAlias.platform_connection_id").
				Where("?TableAlias.profile_id = ?", profileID).
				Where("pc.is_active = ?", true)
			if platformType != "" {
				q = q.Where("pc.platform_type = ?", platformType)
			}
			return q
		}),
		repository.OrderBy("created_date DESC"),
		repository.SelectPaginate(limit, offset),
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", status))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.TicketPage{}, err
	}
	page := core.TicketPage{Items: make([]core.Ticket, 0, len(records)), Total: total}
	for _, record := range records {
		page.Items = append(page.Items, record.toDomain())
	}
	return page, nil
}

func (s *TicketStore) Summarize(ctx context.Context, profileID string) (core.TicketSummary, error) {
	if s == nil || s.db == nil {
		return core.TicketSummary{}, fmt.Errorf("sqlstore: ticket store is not configured")
	}
	profileID = strings.TrimSpace(profileID)
	summary := core.TicketSummary{
		ProfileID:  profileID,
		ByStatus:   map[string]int{},
		ByPlatform: map[core.PlatformType]int{},
	}

	var byStatus []ticketCountRow
	if err := s.db.NewSelect().
		TableExpr("tickets AS t").
		Join("JOIN platform_connections AS pc ON pc.id = t.platform_connection_id").
		ColumnExpr("t.status AS bucket").
		ColumnExpr("COUNT(*) AS total").
		Where("t.profile_id = ?", profileID).
		Where("pc.is_active = ?", true).
		GroupExpr("t.status").
		Scan(ctx, &byStatus); err != nil {
		return core.TicketSummary{}, err
	}
	for _, row := range byStatus {
		summary.ByStatus[row.Bucket] = row.Total
		summary.Total += row.Total
	}

	var byPlatform []ticketCountRow
	if err := s.db.NewSelect().
		TableExpr("tickets AS t").
		Join("JOIN platform_connections AS pc ON pc.id = t.platform_connection_id").
		ColumnExpr("pc.platform_type AS bucket").
		ColumnExpr("COUNT(*) AS total").
		Where("t.profile_id = ?", profileID).
		Where("pc.is_active = ?", true).
		GroupExpr("pc.platform_type").
		Scan(ctx, &byPlatform); err != nil {
		return core.TicketSummary{}, err
	}
	for _, row := range byPlatform {
		summary.ByPlatform[core.PlatformType(row.Bucket)] = row.Total
	}
	return summary, nil
}
