// Package persistence writes end-of-phase channel statistics to a SQLite
// database, the same buffered-writer-plus-prepared-statement shape the
// corpus uses for trace storage.
package persistence

import (
	"database/sql"
	"fmt"
	"os"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/dramsim/internal/channel"
)

// StatsRecord is one channel's ROI stats, stamped with the phase they belong
// to.
type StatsRecord struct {
	Phase   string
	Channel int
	channel.Stats
}

// StatsWriter buffers StatsRecords and flushes them to a SQLite database in
// a single transaction, either when the buffer fills or when Flush is called
// directly (normally via the atexit hook registered in NewStatsWriter).
type StatsWriter struct {
	*sql.DB
	statement *sql.Stmt

	dbName    string
	buffered  []StatsRecord
	batchSize int
}

// NewStatsWriter creates a StatsWriter backed by path (or, if path is empty,
// a name derived from a fresh xid) and registers an atexit hook to flush any
// buffered records before the process exits.
func NewStatsWriter(path string) *StatsWriter {
	w := &StatsWriter{
		dbName:    path,
		batchSize: 1000,
	}

	atexit.Register(func() { w.Flush() })

	return w
}

// Init opens the database file and creates the stats table and its prepared
// insert statement.
func (w *StatsWriter) Init() {
	if w.dbName == "" {
		w.dbName = "dramsim_stats_" + xid.New().String()
	}

	filename := w.dbName + ".sqlite3"

	if _, err := os.Stat(filename); err == nil {
		panic(fmt.Errorf("file %s already exists", filename))
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		panic(err)
	}
	w.DB = db

	w.createTable()
	w.prepareStatement()
}

func (w *StatsWriter) createTable() {
	w.mustExecute(`
		create table channel_stats
		(
			phase                 varchar(100) not null,
			channel               integer      not null,
			name                  varchar(100) default '',
			wq_row_buffer_hit     integer      default 0,
			wq_row_buffer_miss    integer      default 0,
			rq_row_buffer_hit     integer      default 0,
			rq_row_buffer_miss    integer      default 0,
			wq_full               integer      default 0,
			dbus_cycle_congested  integer      default 0,
			dbus_count_congested  integer      default 0,
			refresh_cycles        integer      default 0
		);
	`)

	w.mustExecute(`
		create index channel_stats_phase_index
			on channel_stats (phase);
	`)
}

func (w *StatsWriter) prepareStatement() {
	sqlStr := `INSERT INTO channel_stats VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := w.Prepare(sqlStr)
	if err != nil {
		panic(err)
	}

	w.statement = stmt
}

// Write buffers one record, flushing automatically once the buffer reaches
// batchSize.
func (w *StatsWriter) Write(r StatsRecord) {
	w.buffered = append(w.buffered, r)
	if len(w.buffered) >= w.batchSize {
		w.Flush()
	}
}

// Flush writes every buffered record to the database in one transaction.
func (w *StatsWriter) Flush() {
	if len(w.buffered) == 0 {
		return
	}

	w.mustExecute("BEGIN TRANSACTION")
	defer w.mustExecute("COMMIT TRANSACTION")

	for _, r := range w.buffered {
		_, err := w.statement.Exec(
			r.Phase,
			r.Channel,
			r.Name,
			r.WQRowBufferHit,
			r.WQRowBufferMiss,
			r.RQRowBufferHit,
			r.RQRowBufferMiss,
			r.WQFull,
			r.DBusCycleCongested,
			r.DBusCountCongested,
			r.RefreshCycles,
		)
		if err != nil {
			panic(err)
		}
	}

	w.buffered = nil
}

func (w *StatsWriter) mustExecute(query string) sql.Result {
	res, err := w.Exec(query)
	if err != nil {
		panic(err)
	}
	return res
}
