// Package alert evaluates finished output records against configured
// malware-probability threshold rules and sends a consolidated
// notification when a rule's rolling count reaches its min_count, the way the
// teacher's internal/alerter evaluates model.Task snapshots against
// config.AlerterRule on a ticker. Mercury has no aggregation tasks, so
// the rule target is a classifier.Result-derived record instead of a
// model.Task snapshot.
package alert

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/andrewchi/mercury/internal/config"
	"github.com/andrewchi/mercury/internal/merge"
	"github.com/andrewchi/mercury/internal/ring"
	"github.com/gomarkdown/markdown"
)

// analysisRecord is the subset of an output record alert rules can match
// on, decoded straight from the JSONL bytes the merge writer (J) already
// produced — the evaluator never needs the full emit.Writer structure.
type analysisRecord struct {
	SrcIP    string `json:"src_ip"`
	DstIP    string `json:"dst_ip"`
	Analysis *struct {
		Process      string  `json:"process"`
		MalwareScore float64 `json:"malware_score"`
	} `json:"analysis"`
}

// ruleState is the rolling count an Evaluator keeps per rule between
// ticks.
type ruleState struct {
	rule  config.AlertRule
	hits  int
	procs map[string]int
}

// Evaluator implements merge.Sink so it observes every record the
// output thread drains, in emitted order, without touching the output
// file itself (spec.md 5's "output file is touched only by the output
// thread" rule extends to every sink attached this way).
type Evaluator struct {
	notifier      Notifier
	checkInterval time.Duration

	mu    sync.Mutex
	rules []*ruleState

	stop chan struct{}
	done chan struct{}
}

// Notifier delivers an alert's rendered body. internal/notify.EmailNotifier
// satisfies this.
type Notifier interface {
	Send(subject, body string) error
}

var _ merge.Sink = (*Evaluator)(nil)

// NewEvaluator builds an Evaluator from the alerter config section.
func NewEvaluator(cfg config.AlerterConfig, notifier Notifier) (*Evaluator, error) {
	interval, err := time.ParseDuration(cfg.CheckInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid check_interval for alerter: %w", err)
	}
	e := &Evaluator{
		notifier:      notifier,
		checkInterval: interval,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, r := range cfg.Rules {
		e.rules = append(e.rules, &ruleState{rule: r, procs: make(map[string]int)})
	}
	return e, nil
}

// Write is called once per record drained by the merge writer. Malformed
// or non-analysis records are silently ignored, matching spec.md 7's
// "parse failures never propagate" rule.
func (e *Evaluator) Write(msg ring.Message) {
	var rec analysisRecord
	if err := json.Unmarshal(msg.Buf, &rec); err != nil || rec.Analysis == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rs := range e.rules {
		if rec.Analysis.MalwareScore < rs.rule.MinMalwareProb {
			continue
		}
		rs.hits++
		rs.procs[rec.Analysis.Process]++
	}
}

// Run drives the periodic check until Stop is called.
func (e *Evaluator) Run() {
	defer close(e.done)
	ticker := time.NewTicker(e.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.evaluate()
		case <-e.stop:
			e.evaluate()
			return
		}
	}
}

// Stop signals Run to perform a final evaluation and terminate.
func (e *Evaluator) Stop() {
	close(e.stop)
	<-e.done
}

// evaluate checks every rule's rolling count against its threshold,
// sends one consolidated notification if any rule fired, and resets
// every rule's counters for the next interval.
func (e *Evaluator) evaluate() {
	e.mu.Lock()
	var messages []string
	for _, rs := range e.rules {
		if rs.hits >= rs.rule.MinCount {
			messages = append(messages, formatAlert(rs))
		}
		rs.hits = 0
		rs.procs = make(map[string]int)
	}
	e.mu.Unlock()

	if len(messages) == 0 {
		return
	}
	log.Printf("alert: %d rule(s) triggered", len(messages))

	md := []byte("# Mercury Alert Summary\n\n" + strings.Join(messages, "\n\n---\n\n"))
	html := markdown.ToHTML(md, nil, nil)

	if e.notifier == nil {
		return
	}
	subject := fmt.Sprintf("Mercury alert summary (%d triggered)", len(messages))
	if err := e.notifier.Send(subject, string(html)); err != nil {
		log.Printf("alert: failed to send notification: %v", err)
	}
}

func formatAlert(rs *ruleState) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s**: %d record(s) at or above malware_score %.2f\n",
		rs.rule.Name, rs.hits, rs.rule.MinMalwareProb)
	for proc, n := range rs.procs {
		if proc == "" {
			proc = "(unlabeled)"
		}
		fmt.Fprintf(&sb, "- %s: %d\n", proc, n)
	}
	return sb.String()
}
