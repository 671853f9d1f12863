// Command mercuryd is the engine daemon: it subscribes to raw captured
// packets over NATS (one subject per worker, matching spec.md's "N
// capture/worker threads, one per NIC fanout queue"), runs them through
// the per-worker fingerprint/classify pipeline, and drains every
// worker's output ring into a single chronologically-merged JSONL file.
// Live packet capture itself is out of scope (spec.md's "external
// collaborators" list) — an external probe process is expected to
// publish RawRecords onto the configured subjects.
//
// Grounded on the teacher's cmd/ns-engine: load config, construct every
// component, start them, block on an OS signal, stop them in reverse
// order.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andrewchi/mercury/internal/alert"
	"github.com/andrewchi/mercury/internal/archivewatch"
	"github.com/andrewchi/mercury/internal/classifier"
	"github.com/andrewchi/mercury/internal/config"
	"github.com/andrewchi/mercury/internal/core/model"
	"github.com/andrewchi/mercury/internal/health"
	"github.com/andrewchi/mercury/internal/merge"
	"github.com/andrewchi/mercury/internal/notify"
	"github.com/andrewchi/mercury/internal/ring"
	"github.com/andrewchi/mercury/internal/sink/clickhouse"
	"github.com/andrewchi/mercury/internal/transport"
	"github.com/andrewchi/mercury/internal/worker"

	"github.com/google/gopacket/layers"
)

func main() {
	configPath := flag.String("config", "configs/mercuryd.yaml", "path to mercuryd YAML config")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("mercuryd: failed to load config: %v", err)
	}

	holder := loadClassifier(cfg.Classifier)

	var watcher *archivewatch.Watcher
	if cfg.Classifier.WatchArchive {
		watcher = archivewatch.NewWatcher(cfg.Classifier.ArchivePath, holder.Store)
		if err := watcher.Start(); err != nil {
			log.Fatalf("mercuryd: failed to start archive watcher: %v", err)
		}
	}

	healthSrv, err := health.New(cfg.Health)
	if err != nil {
		log.Fatalf("mercuryd: failed to start health server: %v", err)
	}
	go healthSrv.Serve()

	bp := ring.Blocking
	if cfg.Workers.RingBackpressure == "nonblocking" {
		bp = ring.NonBlocking
	}

	workers := make([]*worker.Worker, cfg.Workers.NumWorkers)
	rings := make([]*ring.Ring, cfg.Workers.NumWorkers)
	subs := make([]*transport.Subscriber, cfg.Workers.NumWorkers)
	wcfg := worker.Config{
		ReassemblyCap:   4096,
		ReassemblyAge:   30 * time.Second,
		MetadataEnabled: cfg.Metadata.AsMap(),
	}
	for i := 0; i < cfg.Workers.NumWorkers; i++ {
		r := ring.New(cfg.Workers.RingDepth, bp)
		w := worker.New(wcfg, r, holder)
		rings[i] = r
		workers[i] = w

		subCfg := cfg.Transport
		subCfg.Subject = fmt.Sprintf("%s.%d", cfg.Transport.Subject, i)
		sub, err := transport.NewSubscriber(subCfg, cfg.Workers.ChannelBufferSize)
		if err != nil {
			log.Fatalf("mercuryd: failed to subscribe worker %d: %v", i, err)
		}
		if err := sub.Start(dispatcher(w)); err != nil {
			log.Fatalf("mercuryd: failed to start worker %d subscription: %v", i, err)
		}
		subs[i] = sub
	}

	var sinks []merge.Sink
	if cfg.Output.ClickHouse.Enabled {
		chSink, err := clickhouse.New(cfg.Output.ClickHouse)
		if err != nil {
			log.Fatalf("mercuryd: failed to start ClickHouse sink: %v", err)
		}
		sinks = append(sinks, chSink)
	}

	var evaluator *alert.Evaluator
	if cfg.Alerter.Enabled {
		notifier := notify.NewEmailNotifier(cfg.Alerter.SMTP)
		evaluator, err = alert.NewEvaluator(cfg.Alerter, notifier)
		if err != nil {
			log.Fatalf("mercuryd: failed to start alert evaluator: %v", err)
		}
		sinks = append(sinks, evaluator)
		go evaluator.Run()
	}

	if cfg.Output.LLQMaxAge != "" {
		age, err := time.ParseDuration(cfg.Output.LLQMaxAge)
		if err != nil {
			log.Fatalf("mercuryd: invalid output.llq_max_age: %v", err)
		}
		merge.MaxAge = age
	}

	writer, err := merge.NewWriter(cfg.Output.Path, cfg.Output.RotateMaxBytes, rings, sinks...)
	if err != nil {
		log.Fatalf("mercuryd: failed to open output file: %v", err)
	}
	go writer.Run()

	healthSrv.SetServing(true)
	log.Printf("mercuryd: running with %d workers", cfg.Workers.NumWorkers)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("mercuryd: shutting down")
	healthSrv.SetServing(false)
	for _, sub := range subs {
		sub.Close()
	}
	if evaluator != nil {
		evaluator.Stop()
	}
	writer.Stop()
	if watcher != nil {
		watcher.Stop()
	}
	healthSrv.Stop()
}

// loadClassifier loads the resource archive if classification is
// enabled, applying any configured feature-weight override. A failed or
// disabled load yields a Holder publishing nil, matching spec.md 7's
// "archive missing disables the classifier" rule rather than a fatal
// error.
func loadClassifier(cfg config.ClassifierConfig) *classifier.Holder {
	if !cfg.Enabled {
		log.Println("mercuryd: classifier disabled by config")
		return classifier.NewHolder(nil)
	}
	if cfg.ProcDstThreshold > 0 {
		classifier.ProcDstThreshold = cfg.ProcDstThreshold
	}

	mdl, err := classifier.LoadArchive(cfg.ArchivePath)
	if err != nil {
		log.Printf("mercuryd: classifier archive unavailable, running without analysis: %v", err)
		return classifier.NewHolder(nil)
	}

	if weights := nonZeroWeights(cfg.FeatureWeights); weights != nil {
		mdl.RecomputeProbabilities(weights)
	}

	log.Printf("mercuryd: loaded classifier archive (variant=%s)", mdl.Variant)
	return classifier.NewHolder(mdl)
}

func nonZeroWeights(w [6]float64) map[string]float64 {
	var anySet bool
	for _, v := range w {
		if v != 0 {
			anySet = true
			break
		}
	}
	if !anySet {
		return nil
	}
	out := make(map[string]float64, len(classifier.Features))
	for i, feature := range classifier.Features {
		if i < len(w) {
			out[feature] = w[i]
		}
	}
	return out
}

// dispatcher adapts transport.Handler to worker.Worker.Process.
func dispatcher(w *worker.Worker) transport.Handler {
	return func(rec transport.RawRecord) {
		w.Process(model.PacketRecord{
			TimestampSec:  rec.TimestampSec,
			TimestampNsec: rec.TimestampNsec,
			CapturedLen:   len(rec.Data),
			WireLen:       len(rec.Data),
			LinkType:      layers.LinkType(rec.LinkType),
			Data:          rec.Data,
		})
	}
}
