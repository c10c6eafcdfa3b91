package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/entrhq/coursebot/pkg/archive"
	"github.com/entrhq/coursebot/pkg/auth"
	"github.com/entrhq/coursebot/pkg/browser"
	"github.com/entrhq/coursebot/pkg/captcha"
	"github.com/entrhq/coursebot/pkg/config"
	"github.com/entrhq/coursebot/pkg/enroll"
	"github.com/entrhq/coursebot/pkg/logging"
	"github.com/entrhq/coursebot/pkg/metrics"
)

// run wires every component and drives the pending set to empty.
func run(ctx context.Context, cfg *config.Config, stderr io.Writer) error {
	var console io.Writer
	if cfg.Log.Console {
		console = stderr
	}
	// A log file error has already been reported through the fallback.
	log, _ := logging.New(logging.Options{
		Path:    cfg.Log.Path,
		Level:   cfg.Log.Level,
		Console: console,
	})
	defer log.Close()

	arch, err := archive.New(cfg.ResultsDir)
	if err != nil {
		return err
	}
	pending, err := newPendingSet(cfg)
	if err != nil {
		return err
	}
	engineCfg, err := newEngineConfig(cfg)
	if err != nil {
		return err
	}
	recognizer, err := newRecognizer(cfg)
	if err != nil {
		return err
	}

	var rec metrics.Recorder = metrics.Nop{}
	if cfg.Metrics.Listen != "" {
		m := metrics.New()
		rec = m
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen, m, log.Named("metrics")); err != nil {
				log.Errorf("%v", err)
			}
		}()
	}

	launcher := browser.NewLauncher(log.Named("browser"))
	if err := launcher.Initialize(cfg.Browser); err != nil {
		return err
	}
	defer func() {
		if err := launcher.Shutdown(); err != nil {
			log.Warnf("%v", err)
		}
	}()

	page, err := launcher.Open(cfg.Browser)
	if err != nil {
		return err
	}

	resolver := captcha.NewResolver(recognizer,
		captcha.WithBackoff(cfg.Timings.OCRBackoff),
		captcha.WithLogger(log),
		captcha.WithMetrics(rec),
	)
	authenticator := auth.New(page, cfg.Auth, resolver, arch,
		auth.WithEndpoints(cfg.Site),
		auth.WithTimings(cfg.Timings),
		auth.WithLogger(log),
		auth.WithMetrics(rec),
	)
	engine, err := enroll.NewEngine(engineCfg,
		enroll.WithArchive(arch),
		enroll.WithLogger(log),
		enroll.WithMetrics(rec),
	)
	if err != nil {
		return err
	}
	driver := enroll.NewDriver(authenticator, engine,
		enroll.WithReauthBackoff(cfg.Timings.ReauthBackoff),
		enroll.WithDriverLogger(log),
		enroll.WithDriverMetrics(rec),
	)

	started := time.Now()
	log.Infof("run %s: %d course(s) pending for %s using %s", log.RunID(), pending.Len(), cfg.Semester, cfg.OCR.Provider)

	runErr := driver.Run(ctx, pending)

	summary := buildSummary(log.RunID(), started, time.Now(), driver.Sessions(), pending, runErr)
	if err := arch.WriteSummary(summary); err != nil {
		log.Warnf("%v", err)
	}

	switch {
	case runErr == nil:
		log.Infof("done: %d course(s) confirmed in %s", len(summary.Successes), logging.Since(started))
		return nil
	case errors.Is(runErr, context.Canceled):
		log.Warnf("interrupted with %d course(s) pending", pending.Len())
		return nil
	default:
		return runErr
	}
}

func newPendingSet(cfg *config.Config) (*enroll.PendingSet, error) {
	reqs := make([]enroll.CourseRequest, 0, len(cfg.Courses))
	for _, c := range cfg.Courses {
		reqs = append(reqs, enroll.CourseRequest{ID: c.ID, Sections: c.Sections, Token: c.Token})
	}
	return enroll.NewPendingSet(reqs...)
}

func newEngineConfig(cfg *config.Config) (enroll.Config, error) {
	classifier, err := enroll.NewClassifier(cfg.Classify.Mode, cfg.Classify.Template)
	if err != nil {
		return enroll.Config{}, err
	}

	return enroll.Config{
		Term:            cfg.Semester,
		DegreeTrack:     cfg.DegreeTrack,
		Mode:            cfg.SubmitMode,
		Classifier:      classifier,
		Endpoints:       cfg.Site,
		Timings:         cfg.Timings,
		IgnoreResponses: cfg.IgnoreResponses,
	}, nil
}

func newRecognizer(cfg *config.Config) (captcha.Recognizer, error) {
	switch cfg.OCR.Provider {
	case config.ProviderOpenAI:
		return captcha.NewVisionRecognizer(cfg.OCR.APIKey, cfg.OCR.BaseURL, cfg.OCR.Model)
	case config.ProviderChaojiying, "":
		var opts []captcha.ChaojiyingOption
		if cfg.OCR.Endpoint != "" {
			opts = append(opts, captcha.WithEndpoint(cfg.OCR.Endpoint))
		}
		if cfg.OCR.CodeType != "" {
			opts = append(opts, captcha.WithCodeType(cfg.OCR.CodeType))
		}
		return captcha.NewChaojiyingClient(cfg.OCR.User, cfg.OCR.Pass2, cfg.OCR.SoftID, opts...)
	default:
		return nil, fmt.Errorf("unknown ocr provider %q", cfg.OCR.Provider)
	}
}

func buildSummary(runID string, started, finished time.Time, sessions int, pending *enroll.PendingSet, runErr error) archive.Summary {
	s := archive.Summary{
		RunID:    runID,
		Status:   "completed",
		Started:  started,
		Finished: finished,
		Sessions: sessions,
		Pending:  pending.Keys(),
	}
	for _, succ := range pending.Successes() {
		s.Successes = append(s.Successes, archive.Enrollment{Course: succ.Course, Section: succ.Section, At: succ.At})
	}
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		s.Status = "interrupted"
	default:
		s.Status = "failed"
		s.Error = runErr.Error()
	}
	return s
}
