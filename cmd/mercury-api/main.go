// Command mercury-api serves the admin/query HTTP surface
// (internal/api) against a classifier archive, independently of the
// engine daemon — it loads and owns its own classifier.Holder rather
// than reaching into a running mercuryd process, since the two binaries
// share only the on-disk archive and config file, not memory.
//
// Grounded on the teacher's cmd/ns-api: load config, build the handler,
// start an http.Server, block on signal, Shutdown gracefully.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andrewchi/mercury/internal/api"
	"github.com/andrewchi/mercury/internal/classifier"
	"github.com/andrewchi/mercury/internal/config"
)

func main() {
	configPath := flag.String("config", "configs/mercury-api.yaml", "path to mercury-api YAML config")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("mercury-api: failed to load config: %v", err)
	}

	var holder *classifier.Holder
	if cfg.Classifier.Enabled {
		mdl, err := classifier.LoadArchive(cfg.Classifier.ArchivePath)
		if err != nil {
			log.Printf("mercury-api: classifier archive unavailable: %v", err)
			holder = classifier.NewHolder(nil)
		} else {
			log.Printf("mercury-api: loaded classifier archive (variant=%s)", mdl.Variant)
			holder = classifier.NewHolder(mdl)
		}
	} else {
		holder = classifier.NewHolder(nil)
	}

	handler := &api.Handler{
		Model:       holder,
		ArchivePath: cfg.Classifier.ArchivePath,
	}
	router := api.NewRouter(handler)

	srv := &http.Server{
		Addr:    cfg.API.ListenAddr,
		Handler: router,
	}

	go func() {
		log.Printf("mercury-api: listening on %s", cfg.API.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("mercury-api: server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("mercury-api: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("mercury-api: shutdown error: %v", err)
	}
}
