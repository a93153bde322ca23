package main

import (
	"context"
	"net/http"

	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/cory-johannsen/snakecast/internal/battlesnake"
	"github.com/cory-johannsen/snakecast/internal/broadcast"
	"github.com/cory-johannsen/snakecast/internal/commentary"
	"github.com/cory-johannsen/snakecast/internal/config"
	"github.com/cory-johannsen/snakecast/internal/linker"
	"github.com/cory-johannsen/snakecast/internal/observability"
	"github.com/cory-johannsen/snakecast/internal/relay"
	"github.com/cory-johannsen/snakecast/internal/server"
	"github.com/cory-johannsen/snakecast/internal/session"
	"github.com/cory-johannsen/snakecast/internal/strategy"
	"github.com/cory-johannsen/snakecast/internal/telephony"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// App is the assembled process.
type App struct {
	Lifecycle *server.Lifecycle
	HTTP      *server.HTTPService
	Calls     *telephony.CallInitiator
	Generator *commentary.Generator
}

// ProviderSet builds the whole dependency graph from a Config and a root logger.
var ProviderSet = wire.NewSet(
	linker.New,
	session.NewRegistry,
	provideCallCreator,
	provideCallInitiator,
	provideGenerator,
	providePhraseBook,
	provideDispatcher,
	provideBroadcast,
	provideEndpoint,
	provideVoiceWebhook,
	provideChooser,
	provideGameServer,
	provideMux,
	provideHTTPService,
	provideSweepService,
	provideApp,
	wire.Bind(new(broadcast.CallInitiator), new(*telephony.CallInitiator)),
	wire.Bind(new(broadcast.Generator), new(*commentary.Generator)),
	wire.Bind(new(broadcast.Dispatcher), new(*commentary.Dispatcher)),
)

func provideCallCreator(cfg config.Config) telephony.CallCreator {
	if !cfg.Telephony.CallsEnabled() {
		return nil
	}
	return telephony.NewTwilioCallCreator(cfg.Telephony)
}

func provideCallInitiator(cfg config.Config, calls telephony.CallCreator, links *linker.Linker, logger *zap.Logger) *telephony.CallInitiator {
	return telephony.NewCallInitiator(calls, cfg.Telephony, links, observability.Component(logger, "telephony"))
}

func provideGenerator(cfg config.Config) *commentary.Generator {
	return commentary.NewGenerator(cfg.Commentary)
}

func providePhraseBook(cfg config.Config) (*commentary.PhraseBook, error) {
	return commentary.LoadPhraseBook(cfg.Commentary.PhrasesPath)
}

func provideDispatcher(links *linker.Linker, sessions *session.Registry, logger *zap.Logger) *commentary.Dispatcher {
	return commentary.NewDispatcher(links, sessions, observability.Component(logger, "dispatcher"))
}

func provideBroadcast(
	calls broadcast.CallInitiator,
	gen broadcast.Generator,
	dispatcher broadcast.Dispatcher,
	links *linker.Linker,
	sessions *session.Registry,
	phrases *commentary.PhraseBook,
	logger *zap.Logger,
) *broadcast.Service {
	return broadcast.NewService(calls, gen, dispatcher, links, sessions, phrases, observability.Component(logger, "broadcast"))
}

func provideEndpoint(cfg config.Config, svc *broadcast.Service, logger *zap.Logger) *relay.Endpoint {
	return relay.NewEndpoint(cfg.Relay, svc, observability.Component(logger, "relay"))
}

func provideVoiceWebhook(cfg config.Config, phrases *commentary.PhraseBook, logger *zap.Logger) *telephony.VoiceWebhook {
	return telephony.NewVoiceWebhook(cfg, phrases.WelcomeGreeting, observability.Component(logger, "voice"))
}

// provideChooser returns the Lua chooser when a script is configured, else
// the heuristic.
func provideChooser(cfg config.Config, logger *zap.Logger) (battlesnake.Chooser, func(), error) {
	h := strategy.NewHeuristic(cfg.Strategy.HungerThreshold)
	if cfg.Strategy.ScriptPath == "" {
		return h, func() {}, nil
	}
	lc, err := strategy.NewLuaChooserFromFile(cfg.Strategy.ScriptPath, cfg.Strategy.InstructionLimit, h,
		observability.Component(logger, "strategy"))
	if err != nil {
		return nil, nil, err
	}
	return lc, lc.Close, nil
}

func provideGameServer(cfg config.Config, chooser battlesnake.Chooser, svc *broadcast.Service, logger *zap.Logger) *battlesnake.Server {
	info := battlesnake.InfoResponse{
		Author:  cfg.Strategy.Author,
		Color:   cfg.Strategy.Color,
		Head:    cfg.Strategy.Head,
		Tail:    cfg.Strategy.Tail,
		Version: version,
	}
	return battlesnake.NewServer(info, chooser, svc, observability.Component(logger, "battlesnake"))
}

func provideMux(game *battlesnake.Server, voice *telephony.VoiceWebhook, ep *relay.Endpoint) *http.ServeMux {
	mux := http.NewServeMux()
	game.Register(mux)
	voice.Register(mux)
	mux.Handle("GET "+ep.Path(), ep)
	return mux
}

func provideHTTPService(cfg config.Config, mux *http.ServeMux, ep *relay.Endpoint, svc *broadcast.Service, logger *zap.Logger) *server.HTTPService {
	log := observability.Component(logger, "http")
	return server.NewHTTPService(cfg.Server.Addr(), mux, cfg.Server.ShutdownTimeout, log,
		func(context.Context) { ep.Stop() },
		func(ctx context.Context) {
			if err := svc.Wait(ctx); err != nil {
				log.Warn("abandoned in-flight commentary", zap.Error(err))
			}
		},
	)
}

func provideSweepService(cfg config.Config, sessions *session.Registry, logger *zap.Logger) *server.SweepService {
	return server.NewSweepService(sessions, cfg.Server.SweepInterval, observability.Component(logger, "sweep"))
}

func provideApp(
	httpSvc *server.HTTPService,
	sweep *server.SweepService,
	calls *telephony.CallInitiator,
	gen *commentary.Generator,
	logger *zap.Logger,
) *App {
	lc := server.NewLifecycle(logger)
	lc.Add("sweep", sweep)
	lc.Add("http", httpSvc)
	return &App{Lifecycle: lc, HTTP: httpSvc, Calls: calls, Generator: gen}
}
