package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pribylovaa/go-forum-client/internal/cache"
	"github.com/pribylovaa/go-forum-client/internal/config"
	"github.com/pribylovaa/go-forum-client/internal/forum"
	"github.com/pribylovaa/go-forum-client/internal/guard"
	viewhttp "github.com/pribylovaa/go-forum-client/internal/http"
	"github.com/pribylovaa/go-forum-client/internal/http/handlers"
	"github.com/pribylovaa/go-forum-client/internal/metrics"
	"github.com/pribylovaa/go-forum-client/internal/realtime"
	"github.com/pribylovaa/go-forum-client/internal/service"
	"github.com/pribylovaa/go-forum-client/internal/session"
	"github.com/pribylovaa/go-forum-client/internal/transcript"
	"github.com/pribylovaa/go-forum-client/internal/transport"
	logctx "github.com/pribylovaa/go-forum-client/pkg/log"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting forum-client", slog.String("env", cfg.Env), slog.String("api", cfg.API.BaseURL))

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	tr, err := transport.New(transport.Options{
		BaseURL:        cfg.API.BaseURL,
		UserAgent:      cfg.API.UserAgent,
		Timeout:        cfg.Timeouts.Service,
		RefreshTimeout: cfg.Timeouts.Refresh,
		Logger:         log,
		Metrics:        m,
	})
	if err != nil {
		log.Error("transport_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	store := session.New(tr, log)
	tr.OnAuthExpired(store.Expire)

	ch, err := realtime.New(realtime.Options{
		URL:              cfg.Realtime.URL,
		HandshakeTimeout: cfg.Realtime.HandshakeTimeout,
		WriteTimeout:     cfg.Realtime.WriteTimeout,
		ReconnectMin:     cfg.Realtime.ReconnectMin,
		ReconnectMax:     cfg.Realtime.ReconnectMax,
		Header:           tr.AuthHeader,
		Jar:              tr.Jar(),
		Logger:           log,
		Metrics:          m,
	})
	if err != nil {
		log.Error("realtime_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	defer func() {
		if cerr := ch.Close(); cerr != nil {
			log.Warn("realtime_close_failed", slog.String("err", cerr.Error()))
		}
	}()

	var tc cache.TranscriptCache
	if cfg.Cache.RedisURL != "" {
		tc, err = cache.NewRedisCache(cfg.Cache.RedisURL, cfg.Cache.Prefix)
		if err != nil {
			// Кэш необязателен: без него транскрипты просто стартуют пустыми.
			log.Warn("transcript_cache_unavailable", slog.String("err", err.Error()))
			tc = nil
		} else {
			defer func() {
				if cerr := tc.Close(); cerr != nil {
					log.Warn("transcript_cache_close_failed", slog.String("err", cerr.Error()))
				}
			}()
			log.Info("transcript_cache_enabled")
		}
	}

	fc := forum.New(tr)

	rec := transcript.New(transcript.Options{
		Source:   fc,
		Cache:    tc,
		CacheTTL: cfg.Cache.TTL,
		Logger:   log,
		Metrics:  m,
	})

	svc := service.New(rec, service.Options{
		Channel:  ch,
		Forum:    fc,
		Sessions: store,
		Cache:    tc,
		Timeout:  cfg.Timeouts.Service,
		Logger:   log,
	})
	defer svc.Close()

	g := guard.New(store, guard.Options{
		LoginPath: cfg.Guard.LoginPath,
		HomePath:  cfg.Guard.HomePath,
	})

	apiHandler := viewhttp.NewRouter(handlers.New(store, svc), g, viewhttp.Options{
		Logger:  log,
		Timeout: cfg.Timeouts.Service,
	})

	var ready int32 // 0 — начальная проверка сессии не завершена; 1 — готов

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if atomic.LoadInt32(&ready) == 1 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}

		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})

	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", apiHandler)

	httpAddr := cfg.HTTP.Addr()
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", httpAddr)
	if err != nil {
		log.Error("http_listen_failed", slog.String("addr", httpAddr), slog.String("err", err.Error()))
		os.Exit(1)
	}

	log.Info("http_listen_start", slog.String("addr", httpAddr))

	serveErrCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	// Начальная тихая проверка сессии. Пока она идёт, guard отвечает loading.
	go func() {
		ctx, cancel := context.WithTimeout(rootCtx, cfg.Timeouts.Service)
		defer cancel()

		sess := store.Verify(logctx.Into(ctx, log))
		atomic.StoreInt32(&ready, 1)
		log.Info("session_verified", slog.Bool("authenticated", sess.Authenticated))
	}()

	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	atomic.StoreInt32(&ready, 0)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown_incomplete", slog.String("err", err.Error()))
	} else {
		log.Info("http_stopped")
	}

	log.Info("client_stopped")
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
