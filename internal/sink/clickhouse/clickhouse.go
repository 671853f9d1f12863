// Package clickhouse mirrors finished output records into ClickHouse,
// the same MergeTree-plus-batch-insert idiom as the teacher's
// engine/impl/exact ClickHouseWriter, generalized from flow-metrics rows
// to per-fingerprint classification rows. Mirroring is optional and
// additive: the merge writer (internal/merge) still owns the primary
// JSONL file, and this Sink is fed the same drained records after they
// are written, per SPEC_FULL.md 3.5.
package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/andrewchi/mercury/internal/config"
	"github.com/andrewchi/mercury/internal/merge"
	"github.com/andrewchi/mercury/internal/ring"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS mercury_analysis (
    Timestamp       DateTime,
    SrcIP           String,
    DstIP           String,
    Protocol        UInt8,
    FingerprintType String,
    Fingerprint     String,
    Process         String,
    MalwareProb     Float64,
    Attributes      Map(String, Float64)
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (FingerprintType, Timestamp);
`

// outputRecord is the subset of a JSONL output record this sink cares
// about; internal/emit's field names are the wire contract it decodes.
type outputRecord struct {
	SrcIP        string            `json:"src_ip"`
	DstIP        string            `json:"dst_ip"`
	Protocol     uint8             `json:"protocol"`
	Fingerprints map[string]string `json:"fingerprints"`
	Analysis     *struct {
		Process      string             `json:"process"`
		MalwareScore float64            `json:"malware_score"`
		Attributes   map[string]float64 `json:"attrs"`
	} `json:"analysis"`
}

// Sink implements merge.Sink, batch-inserting one row per fingerprint
// present in a record.
type Sink struct {
	conn driver.Conn
}

var _ merge.Sink = (*Sink)(nil)

// New connects to ClickHouse and ensures the mercury_analysis table
// exists.
func New(cfg config.ClickHouseConfig) (*Sink, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("sink/clickhouse: connect: %w", err)
	}
	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		return nil, fmt.Errorf("sink/clickhouse: create table: %w", err)
	}
	log.Println("sink/clickhouse: connected and ensured mercury_analysis exists")
	return &Sink{conn: conn}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	return conn, nil
}

// Write decodes msg.Buf and inserts one row per fingerprint type present
// in the record. Malformed records are logged and dropped, matching
// spec.md 7's "parse failures never propagate" rule — this sink never
// blocks the output thread on a decode error.
func (s *Sink) Write(msg ring.Message) {
	var rec outputRecord
	if err := json.Unmarshal(msg.Buf, &rec); err != nil {
		log.Printf("sink/clickhouse: skipping undecodable record: %v", err)
		return
	}
	if len(rec.Fingerprints) == 0 {
		return
	}

	ts := time.Unix(msg.TimestampSec, msg.TimestampNsec)
	batch, err := s.conn.PrepareBatch(context.Background(), "INSERT INTO mercury_analysis")
	if err != nil {
		log.Printf("sink/clickhouse: prepare batch: %v", err)
		return
	}

	process, malwareProb, attrs := "", 0.0, map[string]float64{}
	if rec.Analysis != nil {
		process = rec.Analysis.Process
		malwareProb = rec.Analysis.MalwareScore
		attrs = rec.Analysis.Attributes
	}

	for fpType, fp := range rec.Fingerprints {
		if err := batch.Append(ts, rec.SrcIP, rec.DstIP, rec.Protocol, fpType, fp, process, malwareProb, attrs); err != nil {
			log.Printf("sink/clickhouse: append row: %v", err)
			return
		}
	}

	if err := batch.Send(); err != nil {
		log.Printf("sink/clickhouse: send batch: %v", err)
	}
}
