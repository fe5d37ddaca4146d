package main

import (
	"context"
	"errors"
	"lyrics-sync-go/cache"
	"lyrics-sync-go/config"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/services/notifier"
	"lyrics-sync-go/services/providers"
	"lyrics-sync-go/services/reconcile"
	"lyrics-sync-go/services/translate"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "lyrics-sync-go/services/providers/hostref"
	_ "lyrics-sync-go/services/providers/kugou"
	_ "lyrics-sync-go/services/providers/legacy"
	_ "lyrics-sync-go/services/providers/local"
	_ "lyrics-sync-go/services/providers/lrclib"
	_ "lyrics-sync-go/services/providers/ttml"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

var conf = config.Get()

var (
	persistentCache *cache.Store
	engine          *reconcile.Engine
	translator      translate.Translator
	inFlightReqs    sync.Map // cache key -> *InFlightRequest
)

func init() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startAlertHandler()

	var err error
	persistentCache, err = openCache()
	if err != nil {
		log.Fatalf("%s Failed to open cache: %v", logcolors.LogCacheInit, err)
	}
	defer persistentCache.Close()
	startCachePruner(ctx, time.Hour)

	if statsStore := openStatsStore(); statsStore != nil {
		defer statsStore.Close()
	}

	engine = reconcile.NewEngineFromConfig()
	translator = translate.NewMemo(translate.NewClientFromConfig(), translate.DefaultMemoSize)
	startLocalWatcher(ctx)

	router := mux.NewRouter()
	setupRoutes(router)

	port := conf.Configuration.Port
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           buildHandler(ctx, router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("%s Listening on port %s", logcolors.LogServer, port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			notifier.PublishServerStartupFailed("http", err)
			log.Fatalf("%s Server failed: %v", logcolors.LogServer, err)
		}
	}()
	notifier.PublishServerStarted(port, providers.OrderStrings(engine.Order))

	<-ctx.Done()
	log.Infof("%s Shutting down", logcolors.LogServer)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("%s Shutdown: %v", logcolors.LogServer, err)
	}
}
