package trace

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/akhildatla/pm0/pkg/vm"
)

// ErrRunNotFound indicates the requested run doesn't exist
var ErrRunNotFound = errors.New("run not found")

// Run is one recorded execution.
type Run struct {
	ID        int64
	Name      string
	StartedAt time.Time
	Steps     int64
	Halted    bool
	Error     string
}

// Store persists execution traces in SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	started_at TEXT NOT NULL,
	steps      INTEGER NOT NULL DEFAULT 0,
	halted     INTEGER NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS steps (
	run_id    INTEGER NOT NULL REFERENCES runs(id),
	step      INTEGER NOT NULL,
	pc        INTEGER NOT NULL,
	op        INTEGER NOT NULL,
	r         INTEGER NOT NULL,
	l         INTEGER NOT NULL,
	m         INTEGER NOT NULL,
	next_pc   INTEGER NOT NULL,
	bp        INTEGER NOT NULL,
	sp        INTEGER NOT NULL,
	registers TEXT NOT NULL,
	stack     TEXT NOT NULL,
	boundary  INTEGER NOT NULL,
	depth     INTEGER NOT NULL,
	PRIMARY KEY (run_id, step)
);`

// OpenStore opens (creating if needed) the trace database at path.
// Use ":memory:" for a private in-memory database.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// An in-memory database lives and dies with its connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// BeginRun inserts a new run and returns its id.
func (s *Store) BeginRun(name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		"INSERT INTO runs (name, started_at) VALUES (?, ?)",
		name, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	return res.LastInsertId()
}

// AddStep persists one step of a run.
func (s *Store) AddStep(runID int64, st Step) error {
	regs, err := json.Marshal(st.Registers)
	if err != nil {
		return err
	}
	stack := st.Stack
	if stack == nil {
		stack = []int64{}
	}
	cells, err := json.Marshal(stack)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		`INSERT INTO steps (run_id, step, pc, op, r, l, m, next_pc, bp, sp, registers, stack, boundary, depth)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, st.Seq, st.PC, int64(st.Op), st.R, st.L, st.M, st.NextPC, st.BP, st.SP,
		string(regs), string(cells), st.Boundary, st.Depth,
	)
	if err != nil {
		return fmt.Errorf("saving step %d: %w", st.Seq, err)
	}
	return nil
}

// EndRun records how a run finished.
func (s *Store) EndRun(runID int64, steps int64, halted bool, runErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	_, err := s.db.Exec(
		"UPDATE runs SET steps = ?, halted = ?, error = ? WHERE id = ?",
		steps, halted, msg, runID,
	)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	return nil
}

// Runs lists recorded runs, oldest first.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query("SELECT id, name, started_at, steps, halted, error FROM runs ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Run retrieves a recorded run.
func (s *Store) Run(id int64) (Run, error) {
	row := s.db.QueryRow("SELECT id, name, started_at, steps, halted, error FROM runs WHERE id = ?", id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r       Run
		started string
	)
	if err := sc.Scan(&r.ID, &r.Name, &started, &r.Steps, &r.Halted, &r.Error); err != nil {
		return Run{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return Run{}, fmt.Errorf("run %d: bad start time: %w", r.ID, err)
	}
	r.StartedAt = t
	return r, nil
}

// Steps reads back the steps of a run in execution order.
func (s *Store) Steps(runID int64) ([]Step, error) {
	if _, err := s.Run(runID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT step, pc, op, r, l, m, next_pc, bp, sp, registers, stack, boundary, depth
		 FROM steps WHERE run_id = ? ORDER BY step`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying steps: %w", err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var (
			st          Step
			op          int64
			regs, cells string
		)
		if err := rows.Scan(&st.Seq, &st.PC, &op, &st.R, &st.L, &st.M, &st.NextPC, &st.BP, &st.SP,
			&regs, &cells, &st.Boundary, &st.Depth); err != nil {
			return nil, err
		}
		st.Op = uint8(op)
		if err := json.Unmarshal([]byte(regs), &st.Registers); err != nil {
			return nil, fmt.Errorf("step %d registers: %w", st.Seq, err)
		}
		if err := json.Unmarshal([]byte(cells), &st.Stack); err != nil {
			return nil, fmt.Errorf("step %d stack: %w", st.Seq, err)
		}
		if len(st.Stack) == 0 {
			st.Stack = nil
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// Tracer returns a tracer that records one run under name.
func (s *Store) Tracer(name string) *StoreTracer {
	return &StoreTracer{store: s, name: name}
}

// StoreTracer writes a run into a Store as it executes. Database errors
// stop recording; the machine keeps running and Err reports the failure.
type StoreTracer struct {
	store *Store
	name  string
	runID int64
	err   error
}

// RunID returns the id of the run being recorded, zero before Begin.
func (t *StoreTracer) RunID() int64 { return t.runID }

// Err returns the first database error, if any.
func (t *StoreTracer) Err() error { return t.err }

func (t *StoreTracer) Begin(m *vm.VM) {
	t.runID, t.err = t.store.BeginRun(t.name)
	if t.err == nil {
		log.Debugf("recording run %d (%s)", t.runID, t.name)
	}
}

func (t *StoreTracer) Before(*vm.VM, int, vm.Instruction) {}

func (t *StoreTracer) After(m *vm.VM, pc int, inst vm.Instruction) {
	if t.err != nil {
		return
	}
	t.err = t.store.AddStep(t.runID, NewStep(m, pc, inst))
}

func (t *StoreTracer) End(m *vm.VM, err error) {
	if t.runID == 0 {
		return
	}
	if endErr := t.store.EndRun(t.runID, m.Steps(), m.Halted(), err); endErr != nil && t.err == nil {
		t.err = endErr
	}
	if t.err != nil {
		log.Errorf("run %d: %v", t.runID, t.err)
	}
}
