package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/semmidev/sqlkeep/internal/domain"
	"github.com/semmidev/sqlkeep/internal/infrastructure/metrics"
	"github.com/semmidev/sqlkeep/internal/sqldump"
)

type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

type BackupOptions struct {
	Charset        string
	Compress       bool
	RemoveDefiners bool
	ExcludedTables []string
	TableModes     map[string]domain.TableMode
}

// Backup assembles a complete SQL script for one database, writes it to
// the artifact store and runs the post-backup steps.
type Backup struct {
	db         domain.Database
	store      domain.ArtifactStore
	compressor domain.Compressor
	retention  *Retention
	publisher  *Publisher
	logger     Logger
	opts       BackupOptions
	excluded   map[string]bool
	now        func() time.Time

	mu sync.Mutex
}

func NewBackup(
	db domain.Database,
	store domain.ArtifactStore,
	compressor domain.Compressor,
	retention *Retention,
	publisher *Publisher,
	logger Logger,
	opts BackupOptions,
) *Backup {
	excluded := make(map[string]bool, len(opts.ExcludedTables))
	for _, t := range opts.ExcludedTables {
		excluded[t] = true
	}

	return &Backup{
		db:         db,
		store:      store,
		compressor: compressor,
		retention:  retention,
		publisher:  publisher,
		logger:     logger,
		opts:       opts,
		excluded:   excluded,
		now:        time.Now,
	}
}

// Execute runs a backup without a progress observer. It is what the
// scheduler calls.
func (uc *Backup) Execute(ctx context.Context) error {
	res := uc.Create(ctx, nil)
	if !res.Success {
		return errors.New(res.Message)
	}
	return nil
}

// Create runs one backup. Failures up to and including the artifact write
// produce Success=false; cleanup and upload failures are only logged.
func (uc *Backup) Create(ctx context.Context, observer domain.ProgressObserver) domain.CreateResult {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	start := time.Now()
	dbName := uc.db.GetName()
	runID := uuid.NewString()
	uc.logger.Infof("[%s] Starting backup (run %s)...", dbName, runID)

	fail := func(step string, err error) domain.CreateResult {
		uc.logger.Errorf("[%s] Backup failed during %s (run %s): %v", dbName, step, runID, err)
		metrics.BackupCount.WithLabelValues(dbName, "failure").Inc()
		return domain.CreateResult{Message: fmt.Sprintf("Backup failed: %v", err)}
	}

	sess, err := uc.db.Session(ctx)
	if err != nil {
		return fail("connect", err)
	}
	defer sess.Close()

	p := &progress{observer: observer}
	script, err := uc.assemble(ctx, sess, p)
	if err != nil {
		return fail("assembly", err)
	}

	filename := backupFilename(dbName, uc.now(), uc.opts.Compress)

	var src io.Reader = script.Reader()
	if uc.opts.Compress {
		p.step("Compressing backup")
		pr, pw := io.Pipe()
		defer pr.Close()
		go func(r io.Reader) {
			pw.CloseWithError(uc.compressor.Compress(pw, r))
		}(src)
		src = pr
	} else {
		p.step("Compression disabled")
	}

	p.step("Writing backup file")
	size, err := uc.store.Save(ctx, filename, src)
	if err != nil {
		return fail("write", err)
	}
	uc.logger.Infof("[%s] Backup written: %s (%s, script %s)",
		dbName, filename, humanize.Bytes(uint64(size)), humanize.Bytes(uint64(script.Len())))

	if uc.retention != nil {
		uc.retention.Invalidate(ctx)
		p.step("Cleaning up old backups")
		if _, err := uc.retention.Cleanup(ctx); err != nil {
			uc.logger.Errorf("[%s] Cleanup after backup failed: %v", dbName, err)
		}
	} else {
		p.step("Cleanup skipped")
	}

	if uc.publisher != nil && uc.publisher.Enabled() {
		if err := uc.publisher.Publish(ctx, filename); err != nil {
			uc.logger.Errorf("[%s] Upload of %s failed: %v", dbName, filename, err)
		}
	}

	elapsed := time.Since(start)
	metrics.BackupCount.WithLabelValues(dbName, "success").Inc()
	metrics.BackupDuration.WithLabelValues(dbName).Observe(elapsed.Seconds())
	metrics.BackupSize.WithLabelValues(dbName).Set(float64(size))
	metrics.LastBackupTimestamp.WithLabelValues(dbName).SetToCurrentTime()

	uc.logger.Infof("[%s] Backup completed in %s (run %s): %s",
		dbName, elapsed.Round(time.Millisecond), runID, filename)

	return domain.CreateResult{
		Success:  true,
		Message:  fmt.Sprintf("Backup created successfully: %s", filename),
		FileName: filename,
	}
}

// assemble renders header, tables, views, triggers, routines and footer in
// that order. A single object that fails to render is replaced by an error
// marker; losing the connection aborts the run.
func (uc *Backup) assemble(ctx context.Context, q domain.Querier, p *progress) (*sqldump.Script, error) {
	dbName := uc.db.GetName()

	inv, err := sqldump.LoadInventory(ctx, q, dbName)
	if err != nil {
		return nil, err
	}
	tables, triggers := uc.filter(inv)

	p.total = 3 + len(inv.Views) + len(triggers) + len(inv.Routines)
	for _, t := range tables {
		mode := uc.modeFor(t.Name)
		if mode.IncludesStructure() {
			p.total++
		}
		if mode.IncludesData() {
			p.total++
		}
	}
	uc.logger.Infof("[%s] Found %d table(s), %d view(s), %d trigger(s), %d routine(s)",
		dbName, len(tables), len(inv.Views), len(triggers), len(inv.Routines))

	version, err := q.QueryScalar(ctx, "SELECT VERSION()")
	if err != nil {
		uc.logger.Warnf("[%s] Could not read server version: %v", dbName, err)
		version = "unknown"
	}

	script := &sqldump.Script{}
	script.Append(sqldump.Header(sqldump.HeaderInfo{
		Database:      dbName,
		ServerVersion: fmt.Sprint(version),
		Charset:       uc.opts.Charset,
		GeneratedAt:   uc.now(),
	}))

	r := sqldump.NewRenderer(q, uc.opts.RemoveDefiners)

	for _, t := range tables {
		mode := uc.modeFor(t.Name)
		if mode.IncludesStructure() {
			text, err := r.TableStructure(ctx, t.Name)
			if err := uc.emit(ctx, script, t, text, err); err != nil {
				return nil, err
			}
			p.step("Backed up structure of table " + t.Name)
		}
		if mode.IncludesData() {
			rows, err := r.TableData(ctx, t.Name, script)
			if err := uc.emit(ctx, script, t, "", err); err != nil {
				return nil, err
			}
			uc.logger.Debugf("[%s] Table %s: %d row(s)", dbName, t.Name, rows)
			p.step("Backed up data of table " + t.Name)
		}
	}

	for _, v := range inv.Views {
		text, err := r.View(ctx, v.Name)
		if err := uc.emit(ctx, script, v, text, err); err != nil {
			return nil, err
		}
		p.step("Backed up view " + v.Name)
	}

	for _, trg := range triggers {
		text, err := r.Trigger(ctx, trg)
		if err := uc.emit(ctx, script, trg, text, err); err != nil {
			return nil, err
		}
		p.step("Backed up trigger " + trg.Name)
	}

	for _, rt := range inv.Routines {
		text, err := r.Routine(ctx, rt)
		if err := uc.emit(ctx, script, rt, text, err); err != nil {
			return nil, err
		}
		p.step(fmt.Sprintf("Backed up %s %s", rt.Routine, rt.Name))
	}

	script.Append(sqldump.Footer(uc.now()))
	return script, nil
}

func (uc *Backup) emit(ctx context.Context, script *sqldump.Script, obj domain.SchemaObject, text string, err error) error {
	if err == nil {
		script.Append(text)
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if domain.ErrConnection.Has(err) {
		return err
	}
	uc.logger.Errorf("[%s] Skipping %s %s: %v", uc.db.GetName(), obj.Kind, obj.Name, err)
	script.Append(sqldump.ErrorMarker(obj, err))
	return nil
}

// filter drops excluded tables and the triggers attached to them.
func (uc *Backup) filter(inv domain.Inventory) ([]domain.SchemaObject, []domain.SchemaObject) {
	tables := make([]domain.SchemaObject, 0, len(inv.Tables))
	for _, t := range inv.Tables {
		if uc.excluded[t.Name] {
			uc.logger.Debugf("[%s] Skipping excluded table %s", uc.db.GetName(), t.Name)
			continue
		}
		tables = append(tables, t)
	}

	triggers := make([]domain.SchemaObject, 0, len(inv.Triggers))
	for _, trg := range inv.Triggers {
		if !uc.excluded[trg.Table] {
			triggers = append(triggers, trg)
		}
	}
	return tables, triggers
}

func (uc *Backup) modeFor(table string) domain.TableMode {
	if mode, ok := uc.opts.TableModes[table]; ok && mode != "" {
		return mode
	}
	return domain.ModeFull
}

type progress struct {
	observer domain.ProgressObserver
	current  int
	total    int
}

func (p *progress) step(status string) {
	if p.current < p.total {
		p.current++
	}
	if p.observer != nil {
		p.observer.OnProgress(status, p.current, p.total)
	}
}
