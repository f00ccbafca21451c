package identity

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

const samplePeerTable = `
peers:
  - hit: "2001:1c::1:2:3:4"
    locator_ip: "10.0.0.2"
    macs: ["aa:bb:cc:dd:ee:01"]
  - hit: "2001:1c::5:6:7:8"
    locator_ip: "10.0.0.3"
    macs: ["aa:bb:cc:dd:ee:02"]
`

func TestLoadPeerTableResolvesByHITAndMAC(t *testing.T) {
	table, err := LoadPeerTable([]byte(samplePeerTable))
	require.NoError(t, err)

	mac, err := net.ParseMAC("aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	hit, ok := table.ResolveByMAC(mac)
	require.True(t, ok)

	rec, ok := table.ResolveByHIT(hit)
	require.True(t, ok)
	require.Equal(t, "10.0.0.2", rec.LocatorIP.String())
	require.Equal(t, TrustUnverified, rec.TrustState)
}

func TestMarkVerifiedPromotesTrustState(t *testing.T) {
	table, err := LoadPeerTable([]byte(samplePeerTable))
	require.NoError(t, err)

	mac, _ := net.ParseMAC("aa:bb:cc:dd:ee:02")
	hit, _ := table.ResolveByMAC(mac)

	table.MarkVerified(hit, []byte("pubkey"))
	rec, _ := table.ResolveByHIT(hit)
	require.Equal(t, TrustVerified, rec.TrustState)
	require.Equal(t, []byte("pubkey"), rec.PublicKey)
}

func TestLearnFromBEXInsertsNewPeer(t *testing.T) {
	table, err := LoadPeerTable([]byte(`peers: []`))
	require.NoError(t, err)

	var hit [16]byte
	hit[0] = 0x42
	rec := table.LearnFromBEX(hit, net.ParseIP("10.0.0.9"), []byte("pubkey"))
	require.Equal(t, TrustVerified, rec.TrustState)

	found, ok := table.ResolveByHIT(hit)
	require.True(t, ok)
	require.Equal(t, rec, found)
}
