package sqldump

import (
	"context"
	"fmt"
	"strings"

	"github.com/semmidev/sqlkeep/internal/domain"
)

// Renderer turns schema objects into replayable SQL text.
type Renderer struct {
	q              domain.Querier
	removeDefiners bool
}

func NewRenderer(q domain.Querier, removeDefiners bool) *Renderer {
	return &Renderer{q: q, removeDefiners: removeDefiners}
}

func (r *Renderer) TableStructure(ctx context.Context, table string) (string, error) {
	name := QuoteIdent(table)
	stmt, err := r.showCreate(ctx, "SHOW CREATE TABLE "+name, "Create Table")
	if err != nil {
		return "", fmt.Errorf("table %s: %w", name, err)
	}

	var b strings.Builder
	b.WriteString(banner("Table structure for table " + name))
	fmt.Fprintf(&b, "DROP TABLE IF EXISTS %s;\n", name)
	fmt.Fprintf(&b, "%s;\n\n", stmt)
	return b.String(), nil
}

func (r *Renderer) View(ctx context.Context, view string) (string, error) {
	name := QuoteIdent(view)
	stmt, err := r.showCreate(ctx, "SHOW CREATE VIEW "+name, "Create View")
	if err != nil {
		return "", fmt.Errorf("view %s: %w", name, err)
	}
	if r.removeDefiners {
		stmt = StripDefiners(stmt)
	}

	var b strings.Builder
	b.WriteString(banner("View structure for view " + name))
	fmt.Fprintf(&b, "DROP VIEW IF EXISTS %s;\n", name)
	fmt.Fprintf(&b, "/*!50001 %s */;\n\n", stmt)
	return b.String(), nil
}

// Trigger prefers the server's own CREATE TRIGGER text and falls back to one
// assembled from the SHOW TRIGGERS metadata.
func (r *Renderer) Trigger(ctx context.Context, trg domain.SchemaObject) (string, error) {
	name := QuoteIdent(trg.Name)
	stmt, err := r.showCreate(ctx, "SHOW CREATE TRIGGER "+name, "SQL Original Statement")
	if domain.ErrConnection.Has(err) {
		return "", fmt.Errorf("trigger %s: %w", name, err)
	}
	if err != nil || stmt == "" {
		if trg.Statement == "" {
			if err == nil {
				err = domain.ErrQuery.New("no definition returned")
			}
			return "", fmt.Errorf("trigger %s: %w", name, err)
		}
		stmt = fmt.Sprintf("CREATE TRIGGER %s %s %s ON %s FOR EACH ROW %s",
			name, trg.Timing, trg.Event, QuoteIdent(trg.Table), trg.Statement)
	}
	if r.removeDefiners {
		stmt = StripFirstDefiner(stmt)
	}

	var b strings.Builder
	b.WriteString(banner("Trigger " + name))
	fmt.Fprintf(&b, "DROP TRIGGER IF EXISTS %s;\n", name)
	b.WriteString(delimited(stmt))
	return b.String(), nil
}

func (r *Renderer) Routine(ctx context.Context, routine domain.SchemaObject) (string, error) {
	kind := routine.Routine
	if kind == "" {
		kind = domain.RoutineProcedure
	}
	field := "Create Procedure"
	if kind == domain.RoutineFunction {
		field = "Create Function"
	}

	name := QuoteIdent(routine.Name)
	stmt, err := r.showCreate(ctx, fmt.Sprintf("SHOW CREATE %s %s", kind, name), field)
	if err == nil && stmt == "" {
		err = domain.ErrQuery.New("no definition returned, check the SHOW_ROUTINE privilege")
	}
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", strings.ToLower(string(kind)), name, err)
	}
	if r.removeDefiners {
		stmt = StripFirstDefiner(stmt)
	}

	var b strings.Builder
	b.WriteString(banner(fmt.Sprintf("%s %s", kind, name)))
	fmt.Fprintf(&b, "DROP %s IF EXISTS %s;\n", kind, name)
	b.WriteString(delimited(stmt))
	return b.String(), nil
}

// ErrorMarker is written in place of an object that could not be rendered.
func ErrorMarker(obj domain.SchemaObject, err error) string {
	kind := string(obj.Kind)
	if obj.Routine != "" {
		kind = string(obj.Routine)
	}
	msg := strings.Join(strings.Fields(err.Error()), " ")
	return fmt.Sprintf("-- Error: could not back up %s %s: %s\n\n", kind, QuoteIdent(obj.Name), msg)
}

func (r *Renderer) showCreate(ctx context.Context, query, field string) (string, error) {
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", domain.ErrQuery.New("%s returned no rows", query)
	}
	return rows[0].String(field), nil
}

func banner(title string) string {
	return "--\n-- " + title + "\n--\n\n"
}

func delimited(stmt string) string {
	return "DELIMITER ;;\n" + strings.TrimRight(stmt, "; \n\t") + ";;\nDELIMITER ;\n\n"
}
