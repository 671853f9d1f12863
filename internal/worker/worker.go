// Package worker glues the byte cursor, dissectors, TCP reassembler, QUIC
// crypto, fingerprint builder, and classifier into the per-packet
// pipeline, per spec.md 4.H. A Worker owns one goroutine, one
// reassembly.Reassembler, one flow table, and one output ring; nothing in
// this package is shared across worker goroutines.
package worker

import (
	"log"
	"time"

	"github.com/andrewchi/mercury/internal/classifier"
	"github.com/andrewchi/mercury/internal/core/model"
	"github.com/andrewchi/mercury/internal/dissect"
	"github.com/andrewchi/mercury/internal/emit"
	"github.com/andrewchi/mercury/internal/fingerprint"
	"github.com/andrewchi/mercury/internal/proto/dhcp"
	"github.com/andrewchi/mercury/internal/proto/dns"
	"github.com/andrewchi/mercury/internal/proto/dtls"
	appHTTP "github.com/andrewchi/mercury/internal/proto/http"
	"github.com/andrewchi/mercury/internal/proto/quic"
	"github.com/andrewchi/mercury/internal/proto/ssh"
	"github.com/andrewchi/mercury/internal/proto/tls"
	"github.com/andrewchi/mercury/internal/proto/wireguard"
	"github.com/andrewchi/mercury/internal/reassembly"
	"github.com/andrewchi/mercury/internal/ring"
	"github.com/andrewchi/mercury/pkg/cursor"
)

// Config controls one Worker's behavior; each field mirrors a spec.md
// knob so config.go can pass it straight through.
type Config struct {
	ReportSynAck    bool
	ReassemblyCap   int
	ReassemblyAge   time.Duration
	MetadataEnabled map[string]bool // e.g. "tls.client", "http.request"
}

// tcpFlowEntry mirrors spec.md 4.B/H's tcp_flow_table: has the initial
// data segment of this flow already been seen?
type tcpFlowEntry struct {
	firstSeen  time.Time
	initialSeq uint32
	seenData   bool
}

// Worker processes packets for one capture/fanout queue and pushes
// finished JSON records onto its output ring.
type Worker struct {
	cfg   Config
	out   *ring.Ring
	model *classifier.Holder // nil, or a Holder currently publishing nil, disables the analysis block
	reasm *reassembly.Reassembler
	tcp   map[model.FlowKey]*tcpFlowEntry
}

// New builds a Worker. holder may be nil to run without classification,
// per spec.md 7's "archive missing... classifier disabled" rule. A
// non-nil holder is read fresh on every packet, so internal/archivewatch
// and internal/api's POST /classifier/reload take effect on already
// running workers without restarting them.
func New(cfg Config, out *ring.Ring, holder *classifier.Holder) *Worker {
	return &Worker{
		cfg:   cfg,
		out:   out,
		model: holder,
		reasm: reassembly.New(cfg.ReassemblyCap, cfg.ReassemblyAge),
		tcp:   make(map[model.FlowKey]*tcpFlowEntry),
	}
}

// Process dissects one packet and, if it yields anything worth reporting,
// pushes a JSON record onto the worker's output ring. Per spec.md 4.H, at
// most one record is emitted per packet, and empty buffers are never
// emitted.
func (w *Worker) Process(rec model.PacketRecord) {
	l4, ok := dissect.Packet(rec.Data)
	if !ok {
		return
	}
	now := time.Unix(rec.TimestampSec, rec.TimestampNsec)

	var rb *recordBuilder
	switch {
	case l4.IsTCP:
		rb = w.processTCP(l4, now)
	case l4.IsUDP:
		rb = w.processUDP(l4, now)
	default:
		return
	}
	if rb == nil {
		return
	}

	out := rb.finish(l4, now)
	if len(out) == 0 {
		return
	}
	if !w.out.Push(ring.Message{TimestampSec: rec.TimestampSec, TimestampNsec: rec.TimestampNsec, Buf: out}) {
		log.Printf("worker: ring full, dropping record")
	}
}

// metadataField is one named, deferred metadata block: write(jw) opens
// its own ObjectField(name), fills it in, and closes it.
type metadataField struct {
	name  string
	write func(jw *emit.Writer)
}

// recordBuilder accumulates the pieces of one output record as they're
// discovered, so processTCP/processUDP can bail out at any point with
// whatever they found so far (spec.md 7: "outer record may still be
// emitted with flow key + timestamp only if any useful block was
// produced").
type recordBuilder struct {
	fingerprints map[string]string
	metadata     []metadataField
	complete     string // "yes"|"no", HTTP only
	analysis     *classifier.Result

	sni     string
	dstIP   string
	dstPort uint16
}

func newRecordBuilder() *recordBuilder {
	return &recordBuilder{fingerprints: map[string]string{}}
}

func (rb *recordBuilder) addMetadata(name string, write func(jw *emit.Writer)) {
	rb.metadata = append(rb.metadata, metadataField{name: name, write: write})
}

func (w *Worker) processTCP(l4 model.L4, now time.Time) *recordBuilder {
	hdr := l4.TCP
	if hdr.Flags.SYN {
		w.recordSYN(l4.Key, hdr, now)
		if w.cfg.ReportSynAck {
			return w.tcpSynRecord(hdr, hdr.Flags.ACK)
		}
		return nil
	}
	if len(l4.Payload) == 0 {
		return nil
	}

	c := cursor.New(l4.Payload)
	ch := tls.ParseClientHelloRecord(c)
	if ch.AdditionalBytesNeeded > 0 {
		w.reasm.CopyPacket(l4.Key, now, hdr.Seq, l4.Payload, ch.AdditionalBytesNeeded)
		return nil
	}
	if full, ok := w.reasm.CheckPacket(l4.Key, now, hdr.Seq, l4.Payload); ok {
		w.reasm.RemoveSegment(l4.Key, hdr.Seq)
		// full is the record-layer-prefixed buffer CopyPacket accumulated,
		// so it is re-parsed the same way as an unfragmented segment.
		ch = tls.ParseClientHelloRecord(cursor.New(full))
	}
	if ch.IsNotEmpty() {
		return w.buildTLSRecord(ch, l4)
	}

	if req := appHTTP.ParseRequest(c); req.IsNotEmpty() {
		return w.buildHTTPRequestRecord(req)
	}
	if resp := appHTTP.ParseResponse(c); resp.IsNotEmpty() {
		return w.buildHTTPResponseRecord(resp)
	}
	if banner := ssh.ParseBanner(c); banner.IsNotEmpty() {
		return w.buildSSHBannerRecord(banner)
	}
	if kex := ssh.ParsePacket(c); kex.IsNotEmpty() {
		return w.buildSSHKexRecord(kex)
	}
	return nil
}

func (w *Worker) recordSYN(k model.FlowKey, hdr model.TCPHeader, now time.Time) {
	if _, ok := w.tcp[k]; !ok {
		w.tcp[k] = &tcpFlowEntry{firstSeen: now, initialSeq: hdr.Seq}
	}
}

func (w *Worker) tcpSynRecord(hdr model.TCPHeader, synAck bool) *recordBuilder {
	rb := newRecordBuilder()
	fpKey := "tcp"
	if synAck {
		fpKey = "tcp_server"
	}
	rb.fingerprints[fpKey] = "tcp/(" + hexU32(hdr.Seq) + ")"
	return rb
}

func hexU32(v uint32) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(buf)
}

func hexBytes(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, x := range b {
		out[i*2] = hexDigits[x>>4]
		out[i*2+1] = hexDigits[x&0x0f]
	}
	return string(out)
}

func (w *Worker) buildTLSRecord(ch tls.ClientHello, l4 model.L4) *recordBuilder {
	fp, ok := fingerprint.BuildTLS(ch)
	if !ok {
		return nil
	}
	rb := newRecordBuilder()
	rb.fingerprints["tls"] = fp
	rb.sni = ch.ServerName()
	rb.dstIP = l4.Key.DstIP().String()
	rb.dstPort = l4.Key.DstPort
	if w.cfg.MetadataEnabled["tls.client"] {
		sni := rb.sni
		rb.addMetadata("tls", func(jw *emit.Writer) {
			jw.ObjectField("tls")
			jw.ObjectField("client")
			jw.Str("server_name", sni)
			jw.EndObject()
			jw.EndObject()
		})
	}
	w.classify(rb, fp)
	return rb
}

func (w *Worker) buildHTTPRequestRecord(req appHTTP.Request) *recordBuilder {
	fp, ok := fingerprint.BuildHTTPRequest(req)
	if !ok {
		return nil
	}
	rb := newRecordBuilder()
	rb.fingerprints["http"] = fp
	if req.Complete {
		rb.complete = "yes"
	} else {
		rb.complete = "no"
	}
	if w.cfg.MetadataEnabled["http.request"] {
		method, uri := req.Method, req.URI
		rb.addMetadata("http", func(jw *emit.Writer) {
			jw.ObjectField("http")
			jw.ObjectField("request")
			jw.Str("method", method)
			jw.Str("uri", uri)
			jw.EndObject()
			jw.EndObject()
		})
	}
	return rb
}

func (w *Worker) buildHTTPResponseRecord(resp appHTTP.Response) *recordBuilder {
	fp, ok := fingerprint.BuildHTTPResponse(resp)
	if !ok {
		return nil
	}
	rb := newRecordBuilder()
	rb.fingerprints["http_server"] = fp
	return rb
}

func (w *Worker) buildSSHBannerRecord(banner ssh.Banner) *recordBuilder {
	rb := newRecordBuilder()
	rb.fingerprints["ssh"] = "ssh/1/(" + banner.Raw + ")"
	return rb
}

func (w *Worker) buildSSHKexRecord(kex ssh.KexInit) *recordBuilder {
	fp, ok := fingerprint.BuildSSH(ssh.Banner{Raw: "SSH-2.0"}, kex)
	if !ok {
		return nil
	}
	rb := newRecordBuilder()
	rb.fingerprints["ssh_kex"] = fp
	return rb
}

// classify runs the classifier if one is loaded, stashing the observed
// fingerprint's prevalence and score on the record builder. fpStr is
// already the full "protocol/version/..." key the archive uses.
func (w *Worker) classify(rb *recordBuilder, fpStr string) {
	mdl := w.model.Load()
	if mdl == nil {
		return
	}
	mdl.Prevalence.Observe(fpStr)
	res := mdl.PerformAnalysis(fpStr, rb.sni, rb.dstIP, rb.dstPort, "")
	rb.analysis = &res
}

func (w *Worker) processUDP(l4 model.L4, now time.Time) *recordBuilder {
	payload := l4.Payload
	if len(payload) == 0 {
		return nil
	}
	c := cursor.New(payload)

	if pkt := quic.ParseInitialPacket(payload); pkt.IsNotEmpty() {
		return w.buildQUICRecord(pkt, l4)
	}
	if hs := wireguard.ParseHandshakeInitiation(c); hs.IsNotEmpty() {
		rb := newRecordBuilder()
		rb.fingerprints["wireguard"] = "wireguard/1/(" + hexU32(hs.SenderIndex) + ")"
		return rb
	}
	if msg := dns.ParseMessage(c); msg.IsNotEmpty() {
		rb := newRecordBuilder()
		if w.cfg.MetadataEnabled["dns"] {
			name := msg.Name
			rb.addMetadata("dns", func(jw *emit.Writer) {
				jw.ObjectField("dns")
				jw.Str("qname", name)
				jw.EndObject()
			})
		}
		return rb
	}
	if ch := dtls.ParseClientHello(c); ch.IsNotEmpty() {
		fp, ok := fingerprint.BuildTLS(ch)
		if !ok {
			return nil
		}
		rb := newRecordBuilder()
		rb.fingerprints["dtls_ch"] = fp
		return rb
	}
	if msg := dhcp.ParseMessage(c); msg.IsNotEmpty() {
		fp, ok := fingerprint.BuildDHCP(msg)
		if !ok {
			return nil
		}
		rb := newRecordBuilder()
		rb.fingerprints["dhcp"] = fp
		return rb
	}
	return nil
}

func (w *Worker) buildQUICRecord(pkt quic.InitialPacket, l4 model.L4) *recordBuilder {
	plaintext, ok := quic.Decrypt(pkt)
	if !ok {
		return nil
	}
	crypto := quic.ExtractCryptoData(plaintext)
	if crypto == nil {
		return nil
	}
	ch := tls.ParseClientHelloHandshake(cursor.New(crypto))
	if !ch.IsNotEmpty() {
		return nil
	}
	fp, ok := fingerprint.BuildQUIC(pkt.Version, ch, nil)
	if !ok {
		return nil
	}
	rb := newRecordBuilder()
	rb.fingerprints["quic"] = fp
	rb.sni = ch.ServerName()
	rb.dstIP = l4.Key.DstIP().String()
	rb.dstPort = l4.Key.DstPort
	if w.cfg.MetadataEnabled["quic"] {
		version, dcid := pkt.Version, pkt.DCID
		rb.addMetadata("quic", func(jw *emit.Writer) {
			jw.ObjectField("quic")
			jw.Uint("version", uint64(version))
			jw.Str("dcid", hexBytes(dcid))
			jw.EndObject()
		})
	}
	w.classify(rb, fp)
	return rb
}

// finish assembles the final JSON record from whatever the TCP/UDP path
// discovered, returning nil if nothing worth reporting was found.
func (rb *recordBuilder) finish(l4 model.L4, now time.Time) []byte {
	if len(rb.fingerprints) == 0 && len(rb.metadata) == 0 {
		return nil
	}
	jw := emit.New()
	jw.Object()
	jw.Str("src_ip", l4.Key.SrcIP().String())
	jw.Str("dst_ip", l4.Key.DstIP().String())
	jw.Int("protocol", int64(l4.Key.Transport))
	jw.Int("src_port", int64(l4.Key.SrcPort))
	jw.Int("dst_port", int64(l4.Key.DstPort))
	jw.Str("event_start", now.UTC().Format("2006-01-02T15:04:05.000000"))

	if len(rb.fingerprints) > 0 {
		jw.ObjectField("fingerprints")
		for name, fp := range rb.fingerprints {
			jw.Str(name, fp)
		}
		jw.EndObject()
	}
	if rb.complete != "" {
		jw.Str("complete", rb.complete)
	}
	for _, m := range rb.metadata {
		m.write(jw)
	}
	if rb.analysis != nil {
		writeAnalysis(jw, *rb.analysis)
	}
	jw.EndObject()
	return jw.Bytes()
}

func writeAnalysis(jw *emit.Writer, res classifier.Result) {
	jw.ObjectField("analysis")
	if res.Unlabeled {
		jw.Str("process", "unlabeled")
		if res.Randomized {
			jw.Str("status", "randomized")
		}
		jw.EndObject()
		return
	}
	jw.Str("process", res.Process)
	jw.Float("score", res.MaxScore)
	if res.MalwareProb > 0 {
		jw.Float("malware_score", res.MalwareProb)
	}
	jw.ObjectField("attrs")
	for name, prob := range res.Attributes {
		jw.Float(name, prob)
	}
	jw.EndObject()
	jw.ArrayField("os_info")
	for _, osi := range res.OSInfo {
		jw.Object()
		jw.Str("name", osi.Name)
		jw.Uint("count", osi.Count)
		jw.EndObject()
	}
	jw.EndArray()
	jw.EndObject()
}
