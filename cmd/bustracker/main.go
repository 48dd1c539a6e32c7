package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phuslu/log"
	"github.com/rs/zerolog"

	"nuha.dev/bustracker/internal/adapter"
	"nuha.dev/bustracker/internal/config"
	"nuha.dev/bustracker/internal/events"
	"nuha.dev/bustracker/internal/monitoring"
	"nuha.dev/bustracker/internal/notify"
	"nuha.dev/bustracker/internal/provider"
	"nuha.dev/bustracker/internal/provider/droid"
	"nuha.dev/bustracker/internal/provider/sim"
	"nuha.dev/bustracker/internal/reporter"
	"nuha.dev/bustracker/internal/sink"
	"nuha.dev/bustracker/internal/tracking"
	"nuha.dev/bustracker/internal/util"
	"nuha.dev/bustracker/internal/web"
	"nuha.dev/bustracker/internal/web/service"
	ws "nuha.dev/bustracker/internal/web/webstream"
)

func main() {
	config_file := flag.String("config", "", "config file, defaults to ./bustracker.yaml when present")
	hash_token := flag.Bool("hash-token", false, "print a new api token and its bcrypt hash, then exit")
	mon_server := flag.Bool("mon_server", true, "run monitoring server")
	flag.Parse()

	if *hash_token {
		tok := util.GenRandomString(24)
		hash, err := util.CryptToken(tok)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("token: %s\ntoken_hash: %s\n", tok, hash)
		return
	}

	cfg, err := config.Load(*config_file)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	setLevel(cfg.Log.Level)
	logger := log.DefaultLogger
	logger.Context = log.NewContext(nil).Str("module", "main").Value()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bus, err := events.New(cfg.Events.Node)
	if err != nil {
		logger.Fatal().Err(err).Msg("unable to create event bus")
	}

	var p provider.Provider
	switch cfg.Provider.Kind {
	case "sim":
		p = sim.New(cfg.Authorization())
	default:
		d := droid.NewServer(&droid.Config{
			ListenerAddr:  cfg.Provider.Addr,
			Authorization: cfg.Authorization(),
			LoginTimeout:  cfg.Provider.LoginTimeout,
		})
		if err := d.Listen(); err != nil {
			logger.Fatal().Err(err).Msg("unable to start droid provider")
		}
		go func() {
			_ = d.Run(ctx)
		}()
		p = d
	}

	st, getter, err := openSink(ctx, &cfg.Sink)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Sink.Driver).Msg("unable to open sink")
	}
	writer := sink.NewWriter(st, cfg.WriterConfig(), bus.WriteObserver())

	lp := adapter.NewLocalProcess(nil)
	a := adapter.New(lp)
	rep, err := reporter.New(p, writer, cfg.ReporterConfig(),
		reporter.WithFallback(a.Last),
		reporter.WithPublisher(bus),
		reporter.WithNotifier(notify.NewLogNotifier()),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("unable to create reporter")
	}
	lp.Attach(rep)

	keyCfg, err := keyConfig(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("unable to create key mapper")
	}
	svc := service.New(a, rep, getter, writer.Stats, keyCfg)

	check := web.TokenChecker(cfg.API.TokenHash)
	stream := ws.NewWebstream(ws.WebStreamConfig{TokenCheck: check})
	stream.Attach(bus)

	api := web.NewApi(svc, stream, &web.ApiConfig{
		ListenAddr:     cfg.HTTP.Addr,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		TokenHash:      cfg.API.TokenHash,
	})
	go func() {
		if err := api.Run(); err != nil {
			logger.Error().Err(err).Msg("api server stopped")
			cancel()
		}
	}()

	var mon *monitoring.MonitoringServer
	if *mon_server {
		mon = monitoring.NewMonApi(&monitoring.MonitoringConfig{
			ListenAddr: cfg.Monitoring.Addr,
			Status: func() interface{} {
				return struct {
					reporter.Status
					Writes  sink.Stats `json:"writes"`
					Clients int        `json:"stream_clients"`
				}{rep.Status(), writer.Stats(), stream.Clients()}
			},
			Stats: writer.Stats,
		})
		mon.Attach(bus)
		go func() {
			if err := mon.Run(); err != nil {
				logger.Error().Err(err).Msg("monitoring server stopped")
			}
		}()
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	sctx, scancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer scancel()
	if err := rep.Close(sctx); err != nil {
		logger.Error().Err(err).Msg("reporter close")
	}
	if err := writer.Close(sctx); err != nil {
		logger.Error().Err(err).Msg("writer close")
	}
	if err := api.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("api shutdown")
	}
	if mon != nil {
		_ = mon.Shutdown(sctx)
	}
}

func setLevel(level string) {
	log.DefaultLogger.Level = log.ParseLevel(level)
	if l, err := zerolog.ParseLevel(level); err == nil {
		zerolog.SetGlobalLevel(l)
	}
}

// keyConfig lets getLocation find records the way the reporter keys them:
// by schedule or by session id, depending on the key mode.
func keyConfig(cfg *config.Config) (*service.Config, error) {
	sc := &service.Config{DefaultKey: cfg.Reporter.Path, StaleAfter: cfg.Reporter.StaleAfter}
	mode, _ := reporter.ParseKeyMode(cfg.Reporter.KeyMode)
	if mode == reporter.KeyFixed {
		return sc, nil
	}
	k, err := reporter.NewKeyer(cfg.Reporter.Path, mode, cfg.Reporter.HashSalt)
	if err != nil {
		return nil, err
	}
	switch mode {
	case reporter.KeySchedule:
		sc.KeyFor = func(schedule string) string {
			key, _ := k.Key(tracking.Request{Schedule: schedule}, 0)
			return key
		}
	case reporter.KeySession:
		sc.KeyForSession = k.SessionKey
	}
	return sc, nil
}
