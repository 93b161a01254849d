package agent

import (
	"context"
	"sort"

	"rabbitry/store"
)

// schemaTables are inspected one by one when single-call introspection fails.
var schemaTables = []string{"breeding_plans", "rabbits", "transfers", "transactions", "feed_records", "feeding_schedules"}

var breedingPlanColumns = []store.Column{
	{Name: "id", Type: "uuid"},
	{Name: "plan_id", Type: "text"},
	{Name: "doe_id", Type: "uuid"},
	{Name: "buck_id", Type: "uuid"},
	{Name: "planned_date", Type: "date"},
	{Name: "expected_kindle_date", Type: "date"},
	{Name: "actual_mating_date", Type: "date", Nullable: true},
	{Name: "actual_kindle_date", Type: "date", Nullable: true},
	{Name: "status", Type: "text"},
	{Name: "kits_born", Type: "integer", Nullable: true},
	{Name: "kits_survived", Type: "integer", Nullable: true},
	{Name: "notes", Type: "text", Nullable: true},
	{Name: "created_at", Type: "timestamp"},
	{Name: "updated_at", Type: "timestamp"},
}

var knownRelationships = []store.Relationship{
	{FromTable: "breeding_plans", FromColumn: "doe_id", ToTable: "rabbits", ToColumn: "id"},
	{FromTable: "breeding_plans", FromColumn: "buck_id", ToTable: "rabbits", ToColumn: "id"},
	{FromTable: "transfers", FromColumn: "rabbit_id", ToTable: "rabbits", ToColumn: "id"},
	{FromTable: "feed_records", FromColumn: "rabbit_id", ToTable: "rabbits", ToColumn: "id"},
	{FromTable: "feeding_schedules", FromColumn: "user_id", ToTable: "auth.users", ToColumn: "id"},
}

// loadSchema discovers the schema once. Each failure only narrows what the
// prompt can describe. A schema built under a cancelled context is returned
// but not kept.
func (a *SQLAgent) loadSchema(ctx context.Context) *store.Schema {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.schema != nil {
		return a.schema
	}
	if a.farm == nil {
		a.schema = &store.Schema{
			Tables:        map[string][]store.Column{"breeding_plans": breedingPlanColumns},
			Relationships: knownRelationships,
		}
		return a.schema
	}

	if s, err := a.farm.DescribeSchema(ctx); err == nil && len(s.Tables) > 0 {
		a.logger.Debug("schema loaded from store", "tables", len(s.Tables))
		a.schema = s
		return s
	} else if err != nil {
		a.logger.Debug("schema introspection unavailable, probing tables", "error", err)
	}

	schema := &store.Schema{Tables: make(map[string][]store.Column)}
	for _, table := range schemaTables {
		cols, err := a.farm.TableColumns(ctx, table)
		if err == nil && len(cols) > 0 {
			schema.Tables[table] = cols
			continue
		}

		rows, selErr := a.farm.Select(ctx, store.SelectQuery{Table: table, Limit: 1})
		if selErr == nil {
			schema.Tables[table] = columnsFromRows(rows)
			continue
		}

		a.logger.Debug("could not fetch schema", "table", table, "error", err)
		if table == "breeding_plans" {
			schema.Tables[table] = breedingPlanColumns
		}
	}

	rels, err := a.farm.ForeignKeys(ctx)
	if err != nil || len(rels) == 0 {
		a.logger.Debug("foreign keys unavailable, using known relationships", "error", err)
		rels = knownRelationships
	}
	schema.Relationships = rels

	if ctx.Err() != nil {
		return schema
	}
	a.schema = schema
	return schema
}

func columnsFromRows(rows []store.Row) []store.Column {
	if len(rows) == 0 {
		return []store.Column{}
	}
	names := make([]string, 0, len(rows[0]))
	for name := range rows[0] {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]store.Column, len(names))
	for i, name := range names {
		cols[i] = store.Column{Name: name, Type: "unknown", Nullable: true}
	}
	return cols
}
