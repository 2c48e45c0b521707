// bossim runs the adaptive boss against a simulated player in a headless
// arena and reports how the personality roster evolved.
//
// Usage:
//
//	go run ./cmd/bossim -config data/boss.yaml -duration 10m -seed 42
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lawnchairsociety/bossmind/internal/arena"
	"github.com/lawnchairsociety/bossmind/internal/boss"
	"github.com/lawnchairsociety/bossmind/internal/config"
	"github.com/lawnchairsociety/bossmind/internal/logger"
	"github.com/lawnchairsociety/bossmind/internal/perflog"
	"github.com/lawnchairsociety/bossmind/internal/statsfeed"
	"github.com/lawnchairsociety/bossmind/internal/store"
)

func main() {
	configFile := flag.String("config", "data/boss.yaml", "Path to boss config YAML file")
	loggingConfig := flag.String("logging", "data/logging.yaml", "Path to logging config YAML file")
	seed := flag.Int64("seed", 0, "Simulation seed (default: random based on current time)")
	duration := flag.Duration("duration", 5*time.Minute, "Simulated fight length")
	tickRate := flag.Int("tick-rate", 30, "Simulation ticks per simulated second")
	realtime := flag.Bool("realtime", false, "Pace ticks against the wall clock")
	feed := flag.Bool("feed", false, "Serve the stats feed (overrides stats_feed.enabled)")
	driver := flag.String("persistence", "", "Override persistence driver: file, sqlite, postgres or none")
	flag.Parse()

	// Initialize logger first (before any logging)
	logConfig, _ := logger.LoadConfig(*loggingConfig)
	if err := logger.Initialize(logConfig); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Warning("Failed to load boss config, using defaults", "path", *configFile, "error", err)
	}
	if *driver != "" {
		cfg.Persistence.Driver = *driver
	}
	if *feed {
		cfg.StatsFeed.Enabled = true
	}
	if repaired := cfg.Validate(); len(repaired) > 0 {
		logger.Warning("Config values out of range, defaults used", "fields", repaired)
	}
	if *tickRate <= 0 {
		log.Fatalf("tick-rate must be positive, got %d", *tickRate)
	}

	simSeed := *seed
	if simSeed == 0 {
		simSeed = time.Now().UnixNano()
		logger.Info("Simulation seed selected", "seed", simSeed, "random", true)
	} else {
		logger.Info("Simulation seed selected", "seed", simSeed, "random", false)
	}

	persistence, err := boss.OpenPersistence(cfg.Persistence)
	if err != nil {
		log.Fatalf("Failed to open persistence: %v", err)
	}
	defer persistence.Close()
	if fs, ok := persistence.Store.(*store.FileStore); ok {
		logSaveInfo(fs)
	}

	perfOpts := []perflog.Option{perflog.WithCacheSize(cfg.PerfLog.StatsCacheSize)}
	if persistence.Sink != nil {
		perfOpts = append(perfOpts, perflog.WithSink(persistence.Sink))
	}
	perf := perflog.New(cfg.PerfLog.Capacity, perfOpts...)

	arenaOpts := arena.DefaultOptions()
	arenaOpts.Seed = simSeed
	ring := arena.New(arenaOpts)

	brain, err := boss.New(cfg, boss.World{
		Body:    ring.Boss(),
		Nav:     ring.Boss(),
		Spatial: ring,
		Target:  ring.Player(),
	}, rand.New(rand.NewSource(simSeed)), boss.WithStore(persistence.Store), boss.WithPerfLog(perf))
	if err != nil {
		log.Fatalf("Failed to build boss: %v", err)
	}
	ring.OnPlayerHit(brain.TakeDamage)

	var stats *statsfeed.Feed
	if cfg.StatsFeed.Enabled {
		stats = statsfeed.New(cfg.StatsFeed)
		if len(cfg.StatsFeed.AllowedOrigins) == 0 {
			logger.Info("Stats feed CORS policy", "mode", "same-origin")
		} else if len(cfg.StatsFeed.AllowedOrigins) == 1 && cfg.StatsFeed.AllowedOrigins[0] == "*" {
			logger.Warning("Stats feed CORS allows all origins")
		}
		go func() {
			if err := stats.Start(); err != nil {
				log.Fatalf("Stats feed error: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	interrupted := run(ctx, brain, ring, stats, *duration, *tickRate, *realtime)
	if interrupted {
		logger.Info("Simulation interrupted")
	}

	if err := brain.Save(); err != nil {
		logger.Error("Final save failed", "error", err)
	}
	if stats != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := stats.Shutdown(shutdownCtx); err != nil {
			logger.Warning("Stats feed shutdown", "error", err)
		}
		cancel()
	}

	report(brain, ring, time.Since(started))
}

// run steps the boss and the arena until the simulated duration elapses or
// ctx is cancelled. It reports whether it was cancelled.
func run(ctx context.Context, brain *boss.Brain, ring *arena.Arena, stats *statsfeed.Feed, duration time.Duration, tickRate int, realtime bool) bool {
	dt := 1 / float64(tickRate)
	total := int(duration.Seconds() * float64(tickRate))

	var ticker *time.Ticker
	if realtime {
		ticker = time.NewTicker(time.Second / time.Duration(tickRate))
		defer ticker.Stop()
	}

	for i := 0; i < total; i++ {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return true
			case <-ticker.C:
			}
		} else if ctx.Err() != nil {
			return true
		}

		brain.Tick(dt)
		ring.Step(dt)
		if stats != nil {
			stats.Publish(brain.Frame(time.Now()))
		}
	}
	return false
}

func report(brain *boss.Brain, ring *arena.Arena, wall time.Duration) {
	roster := brain.Allocator().Roster()
	sort.Slice(roster, func(i, j int) bool { return roster[i].Probability > roster[j].Probability })
	perf := brain.PerfLog().AllStats()

	fmt.Printf("Simulated %s in %s (%s ticks)\n",
		time.Duration(brain.Elapsed()*float64(time.Second)).Round(time.Second),
		wall.Round(time.Millisecond),
		humanize.Comma(int64(brain.Ticks())))
	fmt.Printf("Player deaths: %d, damage taken by player: %s, columns standing: %d/%d\n",
		ring.Player().Deaths(),
		humanize.FormatFloat("#,###.#", ring.Player().DamageReceived()),
		ring.IntactColumns(), len(ring.Columns()))
	fmt.Println()
	fmt.Printf("%-28s %8s %6s %10s %10s\n", "PERSONALITY", "PROB", "USES", "DEALT", "TAKEN")
	for _, s := range roster {
		marker := ""
		if s.Active {
			marker = " *"
		}
		st := perf[s.Name]
		fmt.Printf("%-28s %7.1f%% %6d %10s %10s%s\n",
			s.Name, s.Probability*100, st.UsageCount,
			humanize.FormatFloat("#,###.#", st.DamageDealt),
			humanize.FormatFloat("#,###.#", st.DamageTaken),
			marker)
	}
	retired := 0
	for _, name := range brain.PerfLog().Names() {
		if _, ok := brain.Allocator().Lookup(name); ok {
			continue
		}
		if retired == 0 {
			fmt.Println()
			fmt.Println("Pruned during the fight:")
		}
		retired++
		st := perf[name]
		fmt.Printf("  %-26s %6d uses, dealt %s, taken %s\n", name, st.UsageCount,
			humanize.FormatFloat("#,###.#", st.DamageDealt),
			humanize.FormatFloat("#,###.#", st.DamageTaken))
	}
	fmt.Printf("\n%d saves written\n", brain.Saves())
}

// logSaveInfo describes the save the run starts from.
func logSaveInfo(fs *store.FileStore) {
	info, err := fs.Inspect()
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("No personality save yet", "path", info.Path)
		return
	}
	if err != nil {
		logger.Warning("Personality save unreadable", "path", info.Path, "error", err)
		return
	}
	logger.Info("Personality save found",
		"path", info.Path,
		"schema", info.SchemaVersion,
		"entries", info.Entries,
		"size", humanize.Bytes(uint64(info.Size)),
		"saved", humanize.Time(info.SavedAt))
}
