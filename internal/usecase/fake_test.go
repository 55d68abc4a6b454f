package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/semmidev/sqlkeep/internal/domain"
)

type fakeQuerier struct {
	results map[string][]domain.Row
	errors  map[string]error
	tables  map[string][][]any
	columns []string
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{
		results: make(map[string][]domain.Row),
		errors:  make(map[string]error),
		tables:  make(map[string][][]any),
		columns: []string{"id", "name"},
	}
}

func (f *fakeQuerier) Query(_ context.Context, query string) ([]domain.Row, error) {
	if err, ok := f.errors[query]; ok {
		return nil, err
	}
	return f.results[query], nil
}

func (f *fakeQuerier) QueryScalar(_ context.Context, query string) (any, error) {
	if err, ok := f.errors[query]; ok {
		return nil, err
	}
	if query == "SELECT VERSION()" {
		return "8.0.36", nil
	}
	return nil, domain.ErrQuery.New("unexpected scalar %s", query)
}

func (f *fakeQuerier) Stream(_ context.Context, query string, fn func([]string, []any) error) error {
	if err, ok := f.errors[query]; ok {
		return err
	}
	for _, values := range f.tables[query] {
		if err := fn(f.columns, values); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeQuerier) Close() error { return nil }

// shop builds a schema with two tables, a view, a trigger and two routines,
// all created by root.
func (f *fakeQuerier) shop() *fakeQuerier {
	f.results["SHOW FULL TABLES"] = []domain.Row{
		{"Tables_in_shop": "items", "Table_type": "BASE TABLE"},
		{"Tables_in_shop": "audit", "Table_type": "BASE TABLE"},
		{"Tables_in_shop": "items_view", "Table_type": "VIEW"},
	}
	f.results["SHOW TRIGGERS"] = []domain.Row{
		{"Trigger": "trg_items", "Event": "INSERT", "Table": "items", "Timing": "AFTER", "Statement": "INSERT INTO audit VALUES (NEW.id, 'x')"},
		{"Trigger": "trg_audit", "Event": "DELETE", "Table": "audit", "Timing": "BEFORE", "Statement": "SET @d = 1"},
	}
	f.results["SHOW PROCEDURE STATUS WHERE Db = 'shop'"] = []domain.Row{{"Name": "p_sync"}}
	f.results["SHOW FUNCTION STATUS WHERE Db = 'shop'"] = []domain.Row{{"Name": "f_total"}}

	for _, t := range []string{"items", "audit"} {
		f.results["SHOW CREATE TABLE `"+t+"`"] = []domain.Row{{
			"Create Table": "CREATE TABLE `" + t + "` (\n  `id` int NOT NULL,\n  `name` varchar(20)\n) ENGINE=InnoDB",
		}}
	}
	f.results["SHOW CREATE VIEW `items_view`"] = []domain.Row{{
		"Create View": "CREATE ALGORITHM=UNDEFINED DEFINER=`root`@`%` SQL SECURITY DEFINER VIEW `items_view` AS select `id` from `items`",
	}}
	f.results["SHOW CREATE TRIGGER `trg_items`"] = []domain.Row{{
		"SQL Original Statement": "CREATE DEFINER=`root`@`%` TRIGGER `trg_items` AFTER INSERT ON `items` FOR EACH ROW INSERT INTO audit VALUES (NEW.id, 'x')",
	}}
	f.results["SHOW CREATE TRIGGER `trg_audit`"] = []domain.Row{{
		"SQL Original Statement": "CREATE DEFINER=`root`@`%` TRIGGER `trg_audit` BEFORE DELETE ON `audit` FOR EACH ROW SET @d = 1",
	}}
	f.results["SHOW CREATE PROCEDURE `p_sync`"] = []domain.Row{{
		"Create Procedure": "CREATE DEFINER=`root`@`%` PROCEDURE `p_sync`()\nBEGIN\n  SELECT 1;\nEND",
	}}
	f.results["SHOW CREATE FUNCTION `f_total`"] = []domain.Row{{
		"Create Function": "CREATE DEFINER=`root`@`%` FUNCTION `f_total`() RETURNS int\nRETURN 42",
	}}

	for i := 1; i <= 3; i++ {
		f.tables["SELECT * FROM `items`"] = append(f.tables["SELECT * FROM `items`"], []any{int64(i), fmt.Sprintf("item %d", i)})
	}
	f.tables["SELECT * FROM `audit`"] = [][]any{{int64(1), "created"}}
	return f
}

type fakeDatabase struct {
	name       string
	q          *fakeQuerier
	sessionErr error
}

func (d *fakeDatabase) Session(context.Context) (domain.Session, error) {
	if d.sessionErr != nil {
		return nil, d.sessionErr
	}
	return d.q, nil
}

func (d *fakeDatabase) GetName() string            { return d.name }
func (d *fakeDatabase) Ping(context.Context) error { return nil }
func (d *fakeDatabase) Close() error               { return nil }

type memFile struct {
	data    []byte
	modTime time.Time
}

type memStore struct {
	mu        sync.Mutex
	files     map[string]memFile
	saveErr   error
	deleteErr map[string]error
	now       func() time.Time
}

func newMemStore() *memStore {
	return &memStore{
		files:     make(map[string]memFile),
		deleteErr: make(map[string]error),
		now:       time.Now,
	}
}

func (s *memStore) put(name string, size int, modTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = memFile{data: bytes.Repeat([]byte("x"), size), modTime: modTime}
}

func (s *memStore) Save(_ context.Context, name string, r io.Reader) (int64, error) {
	if s.saveErr != nil {
		return 0, s.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, domain.ErrIO.Wrap(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = memFile{data: data, modTime: s.now()}
	return int64(len(data)), nil
}

func (s *memStore) List(context.Context) ([]domain.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Artifact
	for name, f := range s.files {
		out = append(out, domain.Artifact{
			Name:       name,
			Size:       int64(len(f.data)),
			ModTime:    f.modTime,
			Compressed: domain.IsCompressed(name),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) Stat(_ context.Context, name string) (domain.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[name]
	if !ok {
		return domain.Artifact{}, domain.ErrIO.Wrap(os.ErrNotExist)
	}
	return domain.Artifact{Name: name, Size: int64(len(f.data)), ModTime: f.modTime}, nil
}

func (s *memStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[name]
	if !ok {
		return nil, domain.ErrIO.Wrap(os.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

func (s *memStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.deleteErr[name]; err != nil {
		return err
	}
	if _, ok := s.files[name]; !ok {
		return domain.ErrIO.Wrap(os.ErrNotExist)
	}
	delete(s.files, name)
	return nil
}

func (s *memStore) GetPath(name string) string {
	return "/backups/shop/" + name
}

func (s *memStore) content(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.files[name].data)
}

type mapCache struct {
	entries     map[string][]domain.BackupEntry
	invalidated int
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]domain.BackupEntry)}
}

func (c *mapCache) Get(_ context.Context, key string) ([]domain.BackupEntry, bool) {
	e, ok := c.entries[key]
	return e, ok
}

func (c *mapCache) Set(_ context.Context, key string, entries []domain.BackupEntry, _ time.Duration) error {
	c.entries[key] = entries
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, key string) error {
	delete(c.entries, key)
	c.invalidated++
	return nil
}

type fakeTarget struct {
	mu       sync.Mutex
	err      error
	uploaded []string
}

func (t *fakeTarget) Upload(_ context.Context, localPath, remoteName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.uploaded = append(t.uploaded, remoteName)
	return nil
}

type progressEvent struct {
	status         string
	current, total int
}

type recorder struct {
	events []progressEvent
}

func (r *recorder) OnProgress(status string, current, total int) {
	r.events = append(r.events, progressEvent{status, current, total})
}
