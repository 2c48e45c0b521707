package boss

import (
	"errors"
	"fmt"

	"github.com/lawnchairsociety/bossmind/internal/config"
	"github.com/lawnchairsociety/bossmind/internal/database"
	"github.com/lawnchairsociety/bossmind/internal/logger"
	"github.com/lawnchairsociety/bossmind/internal/perflog"
	"github.com/lawnchairsociety/bossmind/internal/store"
)

// ErrUnknownDriver is returned for a persistence driver with no backend.
var ErrUnknownDriver = errors.New("unknown persistence driver")

const archiveBuffer = 4096

// Persistence bundles the probability store with the optional performance
// archive for the configured driver.
type Persistence struct {
	Store store.Store
	// Sink archives performance entries off the simulation goroutine. Nil
	// unless a database driver is configured with archive_events.
	Sink perflog.Sink

	db      *database.Database
	archive *perflog.AsyncSink
}

// OpenPersistence opens the backend named by cfg.Driver.
func OpenPersistence(cfg config.PersistenceConfig) (*Persistence, error) {
	switch cfg.Driver {
	case "none":
		return &Persistence{Store: store.Nop{}}, nil
	case "file":
		logger.Info("Using file persistence", "path", cfg.FilePath)
		return &Persistence{Store: store.NewFileStore(cfg.FilePath)}, nil
	case "sqlite", "postgres":
		db, err := database.OpenWithConfig(database.ConfigFromPersistence(cfg))
		if err != nil {
			return nil, fmt.Errorf("open %s persistence: %w", cfg.Driver, err)
		}
		p := &Persistence{Store: db, db: db}
		if cfg.ArchiveEvents {
			p.archive = perflog.NewAsyncSink(db, archiveBuffer)
			p.Sink = p.archive
		}
		logger.Info("Using database persistence",
			"driver", cfg.Driver,
			"run_id", db.RunID(),
			"archive_events", cfg.ArchiveEvents)
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// Database returns the SQL backend, or nil for file and none drivers.
func (p *Persistence) Database() *database.Database { return p.db }

// Flush waits for queued archive writes to reach the database.
func (p *Persistence) Flush() {
	if p.archive != nil {
		p.archive.Flush()
	}
}

// Close drains the archive queue and releases the database connection, if
// any.
func (p *Persistence) Close() error {
	if p.archive != nil {
		p.archive.Close()
		if n := p.archive.Dropped(); n > 0 {
			logger.Warning("Performance archive dropped entries", "dropped", n)
		}
	}
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}
