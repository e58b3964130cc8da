package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"framecut/internal/audiomix"
	"framecut/internal/composite"
	"framecut/internal/config"
	"framecut/internal/database"
	"framecut/internal/export"
	"framecut/internal/library"
	"framecut/internal/playback"
	"framecut/internal/probe"
	"framecut/internal/sequence"
	"framecut/internal/share"
	"framecut/pkg/models"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// EditorServer exposes the timeline engines to the native shell over a local
// HTTP API. It owns the wiring between the library, both engines, the
// playback clock and the supporting services; the engines themselves never
// know about each other.
type EditorServer struct {
	config    *config.Config
	db        *database.Database
	library   *library.Library
	sequence  *sequence.Engine
	splitter  *sequence.Splitter
	composite *composite.Engine
	clock     *playback.Clock
	syncCtl   *playback.SyncController
	prober    *probe.Prober
	exporter  *export.Exporter
	shareSvc  *share.Service
	watcher   *fsnotify.Watcher
	guard     *importGuard
	logger    *logrus.Logger

	mux        *http.ServeMux
	httpServer *http.Server
}

// NewEditorServer creates a fully wired editor server instance
func NewEditorServer(cfg *config.Config, db *database.Database, logger *logrus.Logger) (*EditorServer, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	lib := library.NewLibrary(logger)
	seq := sequence.NewEngine(logger)
	comp := composite.NewEngine(logger)
	clock := playback.NewClock(seq, logger)

	prober := probe.NewProber(cfg.Export.FFprobePath,
		time.Duration(cfg.Playback.ProbeCacheMinutes)*time.Minute, logger)

	exporter, err := export.NewExporter(cfg, logger)
	if err != nil {
		logger.WithError(err).Warn("Export not available")
		exporter = nil
	}

	shareSvc, err := share.NewService(&cfg.Share)
	if err != nil {
		logger.WithError(err).Warn("Share service not available")
		shareSvc = nil
	}

	srv := &EditorServer{
		config:    cfg,
		db:        db,
		library:   lib,
		sequence:  seq,
		splitter:  sequence.NewSplitter(seq, nil, logger),
		composite: comp,
		clock:     clock,
		syncCtl:   playback.NewSyncController(int64(cfg.Playback.DriftToleranceMs)),
		prober:    prober,
		exporter:  exporter,
		shareSvc:  shareSvc,
		guard:     newImportGuard(time.Duration(cfg.Media.DropSuppressMs) * time.Millisecond),
		logger:    logger,
		mux:       http.NewServeMux(),
	}

	// Removing a library source drops every dependent timeline clip and
	// composite track, then revalidates the playhead.
	lib.OnRemove(func(sourceID string) {
		seq.RemoveBySource(sourceID)
		comp.RemoveBySource(sourceID)
		clock.EnsureValid()
		if err := db.RemoveSourceClip(sourceID); err != nil {
			logger.WithError(err).WithField("source_id", sourceID).Error("Failed to remove source from project store")
		}
	})

	return srv, nil
}

// LoadProject restores the library, timeline and composite from the project
// store. Derived fields (start times, z indices) are recomputed by the
// engines rather than trusted from disk.
func (s *EditorServer) LoadProject() error {
	sources, err := s.db.GetAllSourceClips()
	if err != nil {
		return fmt.Errorf("failed to load library: %w", err)
	}
	s.library.Replace(sources)

	clips, err := s.db.LoadSequence()
	if err != nil {
		return fmt.Errorf("failed to load sequence: %w", err)
	}
	s.sequence.Replace(clips)

	tracks, selected, solo, err := s.db.LoadComposite()
	if err != nil {
		return fmt.Errorf("failed to load composite: %w", err)
	}
	s.composite.Replace(tracks, selected, solo)

	s.logger.WithFields(logrus.Fields{
		"sources": len(sources),
		"clips":   len(clips),
		"tracks":  len(tracks),
	}).Info("Project loaded")
	return nil
}

// SaveProject persists the current library, timeline and composite state
func (s *EditorServer) SaveProject() error {
	for _, clip := range s.library.Clips() {
		if err := s.db.UpsertSourceClip(clip); err != nil {
			return err
		}
	}
	if err := s.db.SaveSequence(s.sequence.Clips()); err != nil {
		return err
	}
	return s.db.SaveComposite(s.composite.State())
}

// ScanMediaFolder walks the media directory and imports every media file
// through a small worker pool, probing metadata as it goes.
func (s *EditorServer) ScanMediaFolder() error {
	if !s.config.Media.ScanOnStartup {
		s.logger.Info("Skipping media scan (disabled in config)")
		return nil
	}

	s.logger.WithField("library_path", s.config.Media.LibraryPath).Info("Scanning media folder")

	var wg sync.WaitGroup
	var imported int64
	jobs := make(chan string, 100)

	numWorkers := runtime.NumCPU()
	for i := 0; i < numWorkers; i++ {
		go func() {
			for path := range jobs {
				if s.importFile(path) {
					atomic.AddInt64(&imported, 1)
				}
				wg.Done()
			}
		}()
	}

	walkErr := filepath.Walk(s.config.Media.LibraryPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && probe.IsMediaFile(path) {
			wg.Add(1)
			jobs <- path
		}
		return nil
	})

	close(jobs)
	wg.Wait()

	s.logger.WithField("imported", imported).Info("Media scan complete")
	return walkErr
}

// importFile imports one media file into the library and probes its
// metadata. Returns false when the path was already imported.
func (s *EditorServer) importFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		s.logger.WithError(err).WithField("file_path", path).Error("Cannot stat media file")
		return false
	}

	if _, err := s.library.GetByPath(path); err == nil {
		return false
	}

	clip := s.library.Import(path, filepath.Base(path), info.Size())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := s.prober.Probe(ctx, path)
	if err != nil {
		s.logger.WithError(err).WithField("file_path", path).Warn("Probe failed, source imported without metadata")
	} else {
		s.attachMetadata(clip.ID, result)
	}

	if stored, err := s.library.Get(clip.ID); err == nil {
		if err := s.db.UpsertSourceClip(stored); err != nil {
			s.logger.WithError(err).WithField("source_id", clip.ID).Error("Failed to persist source clip")
		}
	}
	return true
}

// Start starts the editor server and blocks until it exits
func (s *EditorServer) Start() error {
	if s.config.Media.WatchForChanges {
		if err := s.startFileWatcher(); err != nil {
			s.logger.WithError(err).Warn("Could not start media folder watcher")
		}
	}

	s.setupRoutes()

	localAddress := fmt.Sprintf("http://%s", s.config.GetAddress())

	s.logger.WithFields(logrus.Fields{
		"address": localAddress,
		"sources": s.library.Count(),
		"clips":   s.sequence.Len(),
	}).Info("Editor server starting")

	if s.shareSvc != nil {
		if err := s.shareSvc.StartTunnel(context.Background(), localAddress); err != nil {
			s.logger.WithError(err).Warn("Could not start share tunnel")
		}
	}

	var handler http.Handler = s.mux
	handler = s.shareSvc.RequireAccessKey(handler)
	handler = s.requestLoggingMiddleware(handler)
	handler = s.corsMiddleware(handler)
	handler = s.panicRecoveryMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:        s.config.GetAddress(),
		Handler:     handler,
		ReadTimeout: time.Duration(s.config.Server.ReadTimeout) * time.Second,
	}

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *EditorServer) setupRoutes() {
	s.mux.HandleFunc("/health", s.handleHealthCheck)

	// Library routes
	s.mux.HandleFunc("/api/library", s.handleGetLibrary)
	s.mux.HandleFunc("/api/library/import", s.handleImportMedia)
	s.mux.HandleFunc("/api/library/", s.handleLibraryItem)
	s.mux.HandleFunc("/stream/", s.handleStreamSource)

	// Sequence routes
	s.mux.HandleFunc("/api/sequence", s.handleGetSequence)
	s.mux.HandleFunc("/api/sequence/clips", s.handleAddSequenceClip)
	s.mux.HandleFunc("/api/sequence/clips/", s.handleSequenceClip)
	s.mux.HandleFunc("/api/sequence/insert", s.handleInsertAtTime)
	s.mux.HandleFunc("/api/sequence/split", s.handleSplit)
	s.mux.HandleFunc("/api/sequence/splits", s.handleGetSplits)
	s.mux.HandleFunc("/api/sequence/splits/", s.handleSplitJob)

	// Player routes
	s.mux.HandleFunc("/api/player/state", s.handleGetPlayerState)
	s.mux.HandleFunc("/api/player/update", s.handleUpdatePlayerState)

	// Composite routes
	s.mux.HandleFunc("/api/composite", s.handleGetComposite)
	s.mux.HandleFunc("/api/composite/tracks", s.handleAddTrack)
	s.mux.HandleFunc("/api/composite/tracks/", s.handleTrack)
	s.mux.HandleFunc("/api/composite/playback", s.handleCompositePlayback)
	s.mux.HandleFunc("/api/composite/sync", s.handleCompositeSync)
	s.mux.HandleFunc("/api/composite/seek", s.handleCompositeSeek)
	s.mux.HandleFunc("/api/composite/gains", s.handleCompositeGains)
	s.mux.HandleFunc("/api/composite/load-order", s.handleLoadOrder)

	// Export routes
	s.mux.HandleFunc("/api/export/sequence", s.handleExportSequence)
	s.mux.HandleFunc("/api/export/composite", s.handleExportComposite)
	s.mux.HandleFunc("/api/export/jobs", s.handleGetExports)
	s.mux.HandleFunc("/api/export/jobs/", s.handleExportJob)

	// Project routes
	s.mux.HandleFunc("/api/project/save", s.handleSaveProject)
	s.mux.HandleFunc("/api/share", s.handleGetShare)
}

// Shutdown gracefully shuts down the editor server, persisting the project
func (s *EditorServer) Shutdown() {
	s.logger.Info("Shutting down editor server...")

	s.stopFileWatcher()

	if err := s.SaveProject(); err != nil {
		s.logger.WithError(err).Error("Failed to save project on shutdown")
	}

	if s.shareSvc != nil {
		s.shareSvc.Stop()
	}

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(ctx)
	}

	s.logger.Info("Editor server shutdown complete")
}

// attachMetadata records a probe result against a library source
func (s *EditorServer) attachMetadata(sourceID string, result probe.Result) {
	var res *models.Resolution
	if result.Width > 0 {
		res = &models.Resolution{Width: result.Width, Height: result.Height}
	}
	if err := s.library.AttachMetadata(sourceID, result.DurationSeconds, res); err != nil {
		s.logger.WithField("source_id", sourceID).Debug("Metadata attach skipped, source gone")
	}
}

// Gains returns the effective per-track gains for the current composite state
func (s *EditorServer) Gains() map[string]float64 {
	state := s.composite.State()
	return audiomix.EffectiveGains(state.Tracks, state.SoloTrackID)
}
