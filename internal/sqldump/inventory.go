package sqldump

import (
	"context"
	"fmt"
	"strings"

	"github.com/semmidev/sqlkeep/internal/domain"
)

// LoadInventory enumerates the tables, views, triggers and routines of
// schema in the order the server reports them. Each object appears once.
func LoadInventory(ctx context.Context, q domain.Querier, schema string) (domain.Inventory, error) {
	var inv domain.Inventory
	seen := make(map[string]bool)
	add := func(list *[]domain.SchemaObject, obj domain.SchemaObject) {
		key := string(obj.Kind) + "\x00" + string(obj.Routine) + "\x00" + obj.Name
		if obj.Name == "" || seen[key] {
			return
		}
		seen[key] = true
		*list = append(*list, obj)
	}

	tables, err := q.Query(ctx, "SHOW FULL TABLES")
	if err != nil {
		return inv, fmt.Errorf("list tables: %w", err)
	}
	for _, row := range tables {
		name := tableName(row, schema)
		switch strings.ToUpper(row.String("Table_type")) {
		case "VIEW":
			add(&inv.Views, domain.SchemaObject{Name: name, Kind: domain.KindView})
		case "BASE TABLE":
			add(&inv.Tables, domain.SchemaObject{Name: name, Kind: domain.KindTable})
		}
	}

	triggers, err := q.Query(ctx, "SHOW TRIGGERS")
	if err != nil {
		return inv, fmt.Errorf("list triggers: %w", err)
	}
	for _, row := range triggers {
		add(&inv.Triggers, domain.SchemaObject{
			Name:      row.String("Trigger"),
			Kind:      domain.KindTrigger,
			Timing:    row.String("Timing"),
			Event:     row.String("Event"),
			Table:     row.String("Table"),
			Statement: row.String("Statement"),
		})
	}

	for _, kind := range []domain.RoutineKind{domain.RoutineProcedure, domain.RoutineFunction} {
		routines, err := q.Query(ctx, fmt.Sprintf("SHOW %s STATUS WHERE Db = %s", kind, Quote(schema)))
		if err != nil {
			return inv, fmt.Errorf("list %s routines: %w", strings.ToLower(string(kind)), err)
		}
		for _, row := range routines {
			add(&inv.Routines, domain.SchemaObject{
				Name:    row.String("Name"),
				Kind:    domain.KindRoutine,
				Routine: kind,
			})
		}
	}

	return inv, nil
}

func tableName(row domain.Row, schema string) string {
	if name := row.String("Tables_in_" + schema); name != "" {
		return name
	}
	for key := range row {
		if strings.HasPrefix(key, "Tables_in_") {
			return row.String(key)
		}
	}
	return ""
}
