package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/reedfamily/craftbridge/internal/api"
	"github.com/reedfamily/craftbridge/internal/auth"
	"github.com/reedfamily/craftbridge/internal/backup"
	"github.com/reedfamily/craftbridge/internal/bridge"
	"github.com/reedfamily/craftbridge/internal/config"
	"github.com/reedfamily/craftbridge/internal/console"
	"github.com/reedfamily/craftbridge/internal/docker"
	"github.com/reedfamily/craftbridge/internal/events"
	"github.com/reedfamily/craftbridge/internal/game"
	"github.com/reedfamily/craftbridge/internal/handlers"
	"github.com/reedfamily/craftbridge/internal/history"
	"github.com/reedfamily/craftbridge/internal/logx"
	"github.com/reedfamily/craftbridge/internal/players"
	"github.com/reedfamily/craftbridge/internal/process"
	"github.com/reedfamily/craftbridge/internal/rcon"
	"github.com/reedfamily/craftbridge/internal/scheduler"
	"github.com/reedfamily/craftbridge/internal/shell"

	// Register game adapters
	_ "github.com/reedfamily/craftbridge/internal/game/minecraft"
)

// StopTimeout bounds how long a graceful stop may take before the server
// process is killed.
const StopTimeout = 60 * time.Second

type Server struct {
	cfg     *config.Config
	log     zerolog.Logger
	router  chi.Router
	adapter game.Adapter

	handle    process.Handle
	docker    *docker.Client
	sink      *process.Sink
	source    *process.Source
	session   *rcon.Session
	redis     *events.RedisPublisher
	collector *players.Collector
	scheduler *scheduler.Scheduler

	running atomic.Bool
	started time.Time
}

// New starts (or attaches to) the game server and wires the bridge around
// it. The returned server is not yet reading output; call Run.
func New(ctx context.Context, cfg *config.Config, db *sql.DB) (*Server, error) {
	s := &Server{cfg: cfg, log: logx.Component("server"), started: time.Now()}

	authSvc, err := auth.NewService(cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	if authSvc.Generated != "" {
		s.log.Warn().Str("token", authSvc.Generated).Msg("no API secret configured; generated one for this run")
	}

	s.adapter, err = game.New(cfg.Game, game.Markers{Chat: cfg.ChatMarker, Shell: cfg.ShellMarker})
	if err != nil {
		return nil, err
	}

	var external events.Publisher
	if cfg.RedisURL != "" {
		if s.redis, err = events.NewRedisPublisher(ctx, cfg.RedisURL, events.DefaultChannel); err != nil {
			return nil, err
		}
		external = s.redis
	}
	hub := events.NewHub(external)

	rconAddr, rconPassword, err := s.startProcess(ctx)
	if err != nil {
		s.Stop()
		return nil, err
	}
	s.running.Store(true)
	if rconPassword == "" {
		s.log.Warn().Msg("no RCON password found; set rcon.password in server.properties or CRAFTBRIDGE_RCON_PASSWORD")
	}

	s.session = rcon.NewSession(rconAddr, rconPassword)
	s.sink = process.NewSink(s.handle.Stdin())
	con := console.New(s.session, s.sink)

	hist := history.NewStore(db)
	s.collector = players.NewCollector(db, s.adapter, con, cfg.PlayerPoll)
	backupSvc := backup.NewService(db, cfg.WorldDir, filepath.Join(cfg.DataDir, "backups"), con)
	schedStore := scheduler.NewStore(db)
	s.scheduler = scheduler.New(schedStore, backupSvc, con, hist)

	registry, err := handlers.NewRegistry(handlers.Deps{Console: con, Players: s.collector, Backups: backupSvc, RawRCON: cfg.ChatRCON})
	if err != nil {
		s.kill()
		s.Stop()
		return nil, err
	}

	var sh shell.Runner
	if cfg.Shell != "" {
		e := shell.New(cfg.Shell, cfg.ShellTimeout)
		e.Dir = cfg.ServerDir
		sh = e
	}
	controller := bridge.New(registry, sh, s.session, bridge.WithHistory(hist), bridge.WithPublisher(hub))
	s.source = process.NewSource(s.adapter, controller.HandleEvent, process.WithLineObserver(func(l process.Line) {
		hub.Publish(events.TypeLine, l)
	}))

	s.router = NewRouter(Routes{
		Auth: authSvc,
		Status: api.Status{
			Game:      s.adapter.Game(),
			Mode:      cfg.Mode,
			Started:   s.started,
			Running:   s.Running,
			Connected: s.session.Connected,
			Listeners: hub.Listeners,
		},
		Commands:  api.NewCommandHandler(registry, controller, con, hist),
		Players:   api.NewPlayerHandler(s.collector),
		Schedules: api.NewScheduleHandler(schedStore, s.scheduler),
		Backups:   api.NewBackupHandler(backupSvc, s.Running),
		Console:   api.NewConsoleHandler(hub, s.sink),
	})
	return s, nil
}

// startProcess launches the jar or attaches to the container and works out
// where RCON listens.
func (s *Server) startProcess(ctx context.Context) (addr, password string, err error) {
	cfg := s.cfg
	addr, password = cfg.RCONAddr, cfg.RCONPassword

	if cfg.Mode == config.ModeLocal {
		local, err := process.StartLocal(process.LocalConfig{Dir: cfg.ServerDir, Jar: cfg.ServerJar, Java: cfg.Java, JavaArgs: cfg.JavaArgs})
		if err != nil {
			return "", "", err
		}
		s.handle = local
		s.log.Info().Int("pid", local.Pid()).Str("jar", cfg.ServerJar).Msg("server process started")
		return addr, password, nil
	}

	if s.docker, err = docker.NewClient(); err != nil {
		return "", "", err
	}
	container, err := process.AttachContainer(ctx, s.docker, cfg.Container)
	if err != nil {
		return "", "", err
	}
	s.handle = container
	s.log.Info().Str("container", cfg.Container).Msg("attached to server container")

	if addr == "" {
		if addr, err = s.docker.RCONAddr(ctx, cfg.Container, docker.DefaultRCONPort); err != nil {
			return "", "", err
		}
	}
	if password == "" {
		// The common server images take the password from the environment.
		if info, err := s.docker.Inspect(ctx, cfg.Container); err == nil && info.Config != nil {
			for _, kv := range info.Config.Env {
				if v, ok := strings.CutPrefix(kv, "RCON_PASSWORD="); ok {
					password = v
				}
			}
		}
	}
	return addr, password, nil
}

func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) Running() bool {
	return s.running.Load()
}

// Run reads server output until the process exits or ctx is cancelled. On
// cancellation no further events are handled, the adapter's stop command
// is written to stdin and Run waits for the process to exit, killing it
// after StopTimeout.
func (s *Server) Run(ctx context.Context) error {
	s.collector.Start()
	s.scheduler.Start()

	// Wait may only be called once both pipes have been read to EOF.
	done := make(chan error, 1)
	go func() {
		if err := s.source.Run(ctx, s.handle.Stdout(), s.handle.Stderr()); err != nil {
			s.log.Warn().Err(err).Msg("output reader stopped")
		}
		done <- s.handle.Wait()
	}()

	select {
	case err := <-done:
		s.running.Store(false)
		if err != nil {
			return fmt.Errorf("server exited: %w", err)
		}
		s.log.Info().Msg("server exited")
		return nil
	case <-ctx.Done():
	}

	s.log.Info().Str("command", s.adapter.StopCommand()).Msg("stopping server")
	if err := s.sink.Send(s.adapter.StopCommand()); err != nil {
		s.log.Error().Err(err).Msg("write stop command")
	}

	select {
	case err := <-done:
		s.running.Store(false)
		return err
	case <-time.After(StopTimeout):
	}

	s.log.Warn().Dur("timeout", StopTimeout).Msg("server did not stop in time; killing")
	s.kill()
	err := <-done
	s.running.Store(false)
	if err == nil {
		err = errors.New("server killed after stop timeout")
	}
	return err
}

func (s *Server) kill() {
	if k, ok := s.handle.(interface{ Kill() error }); ok {
		if err := k.Kill(); err != nil {
			s.log.Error().Err(err).Msg("kill server")
		}
	}
}

func (s *Server) Stop() {
	if s.collector != nil {
		s.collector.Stop()
	}
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.session != nil {
		s.session.Close()
	}
	if s.redis != nil {
		s.redis.Close()
	}
	if s.docker != nil {
		s.docker.Close()
	}
}
