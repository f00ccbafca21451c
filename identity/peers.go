package identity

import (
	"net"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/hipvpls/core/protocol"
)

// TrustState records whether a peer's Host Identity has been confirmed,
// per spec §3's Peer Record.
type TrustState int

const (
	TrustUnverified TrustState = iota
	TrustVerified
)

// PeerRecord is spec §3's `{ HIT, locator_ip, public_key, trust_state }`.
type PeerRecord struct {
	HIT        protocol.HIT
	LocatorIP  net.IP
	PublicKey  []byte
	TrustState TrustState
	MACs       []net.HardwareAddr
}

// PeerTable is the static peer identity table of C3: keyed by HIT for
// BEX/SADB lookups, and by local MAC for bridge-side dispatch. It is
// loaded from a configuration file; afterwards MarkVerified and
// LearnFromBEX update single records under its mutex.
type PeerTable struct {
	mu    sync.RWMutex
	byHIT map[protocol.HIT]*PeerRecord
	byMAC map[string]protocol.HIT
}

// peerFile is the on-disk YAML shape peers are provisioned in.
type peerFile struct {
	Peers []struct {
		HIT       string   `yaml:"hit"`
		LocatorIP string   `yaml:"locator_ip"`
		PublicKey string   `yaml:"public_key_hex"`
		MACs      []string `yaml:"macs"`
	} `yaml:"peers"`
}

// LoadPeerTable parses a YAML peer file into a PeerTable. Each peer
// begins in TrustUnverified and is promoted to TrustVerified the first
// time its Host Identity is confirmed against its advertised HOST_ID
// parameter during BEX.
func LoadPeerTable(data []byte) (*PeerTable, error) {
	var f peerFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "identity: parse peer table")
	}

	t := &PeerTable{
		byHIT: make(map[protocol.HIT]*PeerRecord),
		byMAC: make(map[string]protocol.HIT),
	}
	for _, p := range f.Peers {
		hit, err := parseHIT(p.HIT)
		if err != nil {
			return nil, errors.Wrapf(err, "identity: peer %q", p.HIT)
		}
		rec := &PeerRecord{
			HIT:        hit,
			LocatorIP:  net.ParseIP(p.LocatorIP),
			TrustState: TrustUnverified,
		}
		if rec.LocatorIP == nil {
			return nil, errors.Errorf("identity: peer %s has invalid locator_ip %q", hit, p.LocatorIP)
		}
		for _, m := range p.MACs {
			mac, err := net.ParseMAC(m)
			if err != nil {
				return nil, errors.Wrapf(err, "identity: peer %s has invalid mac %q", hit, m)
			}
			rec.MACs = append(rec.MACs, mac)
			t.byMAC[mac.String()] = hit
		}
		t.byHIT[hit] = rec
	}
	return t, nil
}

func parseHIT(s string) (protocol.HIT, error) {
	ip := net.ParseIP(s)
	if ip == nil || ip.To16() == nil {
		return protocol.HIT{}, errors.Errorf("not a 128-bit address literal")
	}
	var h protocol.HIT
	copy(h[:], ip.To16())
	return h, nil
}

// ResolveByHIT is C3's `resolve_by_hit`.
func (t *PeerTable) ResolveByHIT(hit protocol.HIT) (*PeerRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.byHIT[hit]
	return rec, ok
}

// ResolveByMAC is C3's `resolve_by_mac`.
func (t *PeerTable) ResolveByMAC(mac net.HardwareAddr) (protocol.HIT, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	hit, ok := t.byMAC[mac.String()]
	return hit, ok
}

// MarkVerified promotes a peer to TrustVerified once its signed HOST_ID
// has been checked against the HIT it claimed, and records its public
// key for future signature verification.
func (t *PeerTable) MarkVerified(hit protocol.HIT, publicKey []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.byHIT[hit]; ok {
		rec.TrustState = TrustVerified
		rec.PublicKey = publicKey
	}
}

// LearnFromBEX records a peer confirmed via inbound BEX, per spec §3
// ("Created when a peer is statically configured or learned via inbound
// BEX"). A peer already in the static table keeps its configured MACs;
// one seen for the first time gets a fresh record with none, since a
// bridge-side MAC mapping can only come from static configuration.
func (t *PeerTable) LearnFromBEX(hit protocol.HIT, locator net.IP, publicKey []byte) *PeerRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.byHIT[hit]
	if !ok {
		rec = &PeerRecord{HIT: hit}
		t.byHIT[hit] = rec
	}
	rec.LocatorIP = locator
	rec.PublicKey = publicKey
	rec.TrustState = TrustVerified
	return rec
}
