package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shiftstore/internal/shiftstore"

	_ "modernc.org/sqlite"
)

// Store wraps SQLite-backed persistence for focus runs and their sequences.
type Store struct {
	DB *sql.DB // Export for direct database access
}

// New opens (or creates) the database at path and ensures schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// single writer
	db.SetMaxOpenConns(1)
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS focus_runs (
            id TEXT PRIMARY KEY,
            job_type TEXT NOT NULL,
            status TEXT NOT NULL,
            catalog_path TEXT,
            options_json TEXT,
            target INTEGER DEFAULT 0,
            sequences INTEGER DEFAULT 0,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            started_at TIMESTAMP,
            completed_at TIMESTAMP,
            error_message TEXT
        );`,
		`CREATE TABLE IF NOT EXISTS run_results (
            run_id TEXT,
            meta_json TEXT,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS sequences (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            run_id TEXT NOT NULL,
            seq_index INTEGER NOT NULL,
            anchor_id INTEGER NOT NULL,
            anchor_slot INTEGER NOT NULL,
            placeholders INTEGER NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS sequence_members (
            sequence_id INTEGER NOT NULL,
            slot INTEGER NOT NULL,
            source_id INTEGER,
            x REAL,
            y REAL,
            mag REAL,
            fwhm REAL,
            present BOOLEAN NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS fit_inputs (
            run_id TEXT NOT NULL,
            slot INTEGER NOT NULL,
            position REAL NOT NULL,
            width REAL,
            contributors INTEGER NOT NULL,
            dropped BOOLEAN DEFAULT FALSE
        );`,
		`CREATE INDEX IF NOT EXISTS idx_sequences_run_id ON sequences(run_id);`,
		`CREATE INDEX IF NOT EXISTS idx_sequence_members_sequence_id ON sequence_members(sequence_id);`,
		`CREATE INDEX IF NOT EXISTS idx_fit_inputs_run_id ON fit_inputs(run_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// RunRecord captures persisted run info.
type RunRecord struct {
	ID          string     `json:"id"`
	JobType     string     `json:"job_type"`
	Status      string     `json:"status"`
	CatalogPath string     `json:"catalog_path"`
	OptionsJSON string     `json:"options,omitempty"`
	Target      int        `json:"target"`
	Sequences   int        `json:"sequences"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// MemberRecord is one slot of a stored sequence.
type MemberRecord struct {
	Slot     int     `json:"slot"`
	SourceID int     `json:"source_id,omitempty"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Mag      float64 `json:"mag,omitempty"`
	FWHM     float64 `json:"fwhm,omitempty"`
	Present  bool    `json:"present"`
}

// SequenceRecord is a stored sequence with its members in slot order.
type SequenceRecord struct {
	Index        int            `json:"index"`
	AnchorID     int            `json:"anchor_id"`
	AnchorSlot   int            `json:"anchor_slot"`
	Placeholders int            `json:"placeholders"`
	Members      []MemberRecord `json:"members"`
}

// FitPoint is one focuser position of a stored fit input.
type FitPoint struct {
	Slot         int     `json:"slot"`
	Position     float64 `json:"position"`
	Width        float64 `json:"width"`
	Contributors int     `json:"contributors"`
	Dropped      bool    `json:"dropped"`
}

// RecordRunQueued inserts a pending run.
func (s *Store) RecordRunQueued(rec RunRecord) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`INSERT OR REPLACE INTO focus_runs (id, job_type, status, catalog_path, options_json, target) VALUES (?, ?, ?, ?, ?, ?);`,
		rec.ID, rec.JobType, rec.Status, rec.CatalogPath, rec.OptionsJSON, rec.Target)
	return err
}

// RecordRunStart marks a run as running.
func (s *Store) RecordRunStart(id string) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`UPDATE focus_runs SET status='running', started_at=CURRENT_TIMESTAMP WHERE id=?;`, id)
	return err
}

// RecordRunResult finalizes a run with status, sequence count and meta.
func (s *Store) RecordRunResult(id string, status string, sequences int, meta map[string]any, errMsg string) error {
	if s == nil {
		return nil
	}
	metaJSON, _ := json.Marshal(meta)
	_, err := s.DB.Exec(`UPDATE focus_runs SET status=?, sequences=?, completed_at=CURRENT_TIMESTAMP, error_message=? WHERE id=?;`, status, sequences, errMsg, id)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(`INSERT INTO run_results (run_id, meta_json) VALUES (?, ?);`, id, string(metaJSON))
	return err
}

const runColumns = `id, job_type, status, catalog_path, options_json, target, sequences, created_at, started_at, completed_at, error_message`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var rec RunRecord
	var catalogPath, options, errorMsg sql.NullString
	var started, completed sql.NullTime
	if err := row.Scan(&rec.ID, &rec.JobType, &rec.Status, &catalogPath, &options, &rec.Target, &rec.Sequences, &rec.CreatedAt, &started, &completed, &errorMsg); err != nil {
		return rec, err
	}
	rec.CatalogPath = catalogPath.String
	rec.OptionsJSON = options.String
	rec.Error = errorMsg.String
	if started.Valid {
		rec.StartedAt = &started.Time
	}
	if completed.Valid {
		rec.CompletedAt = &completed.Time
	}
	return rec, nil
}

// RecentRuns returns the latest runs up to limit.
func (s *Store) RecentRuns(limit int) ([]RunRecord, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT `+runColumns+` FROM focus_runs ORDER BY created_at DESC, rowid DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Run fetches a single run. It returns sql.ErrNoRows for unknown ids.
func (s *Store) Run(id string) (RunRecord, error) {
	if s == nil {
		return RunRecord{}, errors.New("store not initialized")
	}
	return scanRun(s.DB.QueryRow(`SELECT `+runColumns+` FROM focus_runs WHERE id=?;`, id))
}

// RunMeta fetches the last meta blob for a run.
func (s *Store) RunMeta(id string) (map[string]any, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	var metaJSON string
	err := s.DB.QueryRow(`SELECT meta_json FROM run_results WHERE run_id=? ORDER BY created_at DESC, rowid DESC LIMIT 1;`, id).Scan(&metaJSON)
	if err != nil {
		return nil, err
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return nil, fmt.Errorf("unmarshal meta: %w", err)
	}
	return meta, nil
}

// RecordSequences persists the accepted sequences of a run, replacing any
// previously stored for it.
func (s *Store) RecordSequences(runID string, seqs []shiftstore.Sequence) error {
	if s == nil {
		return nil
	}
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM sequence_members WHERE sequence_id IN (SELECT id FROM sequences WHERE run_id=?);`, runID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM sequences WHERE run_id=?;`, runID); err != nil {
		return err
	}

	for i, seq := range seqs {
		res, err := tx.Exec(`INSERT INTO sequences (run_id, seq_index, anchor_id, anchor_slot, placeholders) VALUES (?, ?, ?, ?, ?);`,
			runID, i, seq.Anchor.ID, seq.AnchorSlot, seq.Placeholders())
		if err != nil {
			return err
		}
		seqID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for slot, el := range seq.Elements {
			var err error
			switch e := el.(type) {
			case shiftstore.Present:
				_, err = tx.Exec(`INSERT INTO sequence_members (sequence_id, slot, source_id, x, y, mag, fwhm, present) VALUES (?, ?, ?, ?, ?, ?, ?, TRUE);`,
					seqID, slot, e.Source.ID, e.Source.X, e.Source.Y, e.Source.Mag, e.Source.FWHM)
			case shiftstore.Absent:
				_, err = tx.Exec(`INSERT INTO sequence_members (sequence_id, slot, x, y, present) VALUES (?, ?, ?, ?, FALSE);`,
					seqID, slot, e.X, e.Y)
			}
			if err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// RunSequences loads the stored sequences of a run in acceptance order.
func (s *Store) RunSequences(runID string) ([]SequenceRecord, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT q.id, q.seq_index, q.anchor_id, q.anchor_slot, q.placeholders,
            m.slot, m.source_id, m.x, m.y, m.mag, m.fwhm, m.present
        FROM sequences q JOIN sequence_members m ON m.sequence_id = q.id
        WHERE q.run_id=? ORDER BY q.seq_index, m.slot;`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []SequenceRecord
	lastID := int64(-1)
	for rows.Next() {
		var seqID int64
		var seq SequenceRecord
		var m MemberRecord
		var sourceID sql.NullInt64
		var mag, fwhm sql.NullFloat64
		if err := rows.Scan(&seqID, &seq.Index, &seq.AnchorID, &seq.AnchorSlot, &seq.Placeholders,
			&m.Slot, &sourceID, &m.X, &m.Y, &mag, &fwhm, &m.Present); err != nil {
			return nil, err
		}
		m.SourceID = int(sourceID.Int64)
		m.Mag = mag.Float64
		m.FWHM = fwhm.Float64
		if seqID != lastID {
			recs = append(recs, seq)
			lastID = seqID
		}
		last := &recs[len(recs)-1]
		last.Members = append(last.Members, m)
	}
	return recs, rows.Err()
}

// RecordFitInput persists the aggregated widths of a run together with the
// positions that were dropped.
func (s *Store) RecordFitInput(runID string, in shiftstore.FitInput, positions []float64) error {
	if s == nil {
		return nil
	}
	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM fit_inputs WHERE run_id=?;`, runID); err != nil {
		return err
	}

	dropped := make(map[int]shiftstore.DroppedPosition, len(in.Dropped))
	for _, d := range in.Dropped {
		dropped[d.Slot] = d
	}
	kept := 0
	for slot, pos := range positions {
		if d, ok := dropped[slot]; ok {
			if _, err := tx.Exec(`INSERT INTO fit_inputs (run_id, slot, position, contributors, dropped) VALUES (?, ?, ?, ?, TRUE);`,
				runID, slot, d.Position, d.Contributors); err != nil {
				return err
			}
			continue
		}
		if kept >= len(in.Widths) {
			return fmt.Errorf("fit input has %d widths for %d positions", len(in.Widths), len(positions))
		}
		if _, err := tx.Exec(`INSERT INTO fit_inputs (run_id, slot, position, width, contributors) VALUES (?, ?, ?, ?, ?);`,
			runID, slot, pos, in.Widths[kept], in.Contributors[kept]); err != nil {
			return err
		}
		kept++
	}
	return tx.Commit()
}

// FitInput loads the stored fit points of a run in slot order.
func (s *Store) FitInput(runID string) ([]FitPoint, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT slot, position, COALESCE(width, 0), contributors, dropped FROM fit_inputs WHERE run_id=? ORDER BY slot;`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pts []FitPoint
	for rows.Next() {
		var p FitPoint
		if err := rows.Scan(&p.Slot, &p.Position, &p.Width, &p.Contributors, &p.Dropped); err != nil {
			return nil, err
		}
		pts = append(pts, p)
	}
	return pts, rows.Err()
}
