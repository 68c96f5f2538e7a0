package endpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		spec    string
		domain  Domain
		ssl     bool
		host    string
		port    int
		address string
		canon   string
	}{
		{"tcp://127.0.0.1:8530", DomainIPv4, false, "127.0.0.1", 8530, "127.0.0.1:8530", "tcp://127.0.0.1:8530"},
		{"ssl://agency.local:9000", DomainIPv4, true, "agency.local", 9000, "agency.local:9000", "ssl://agency.local:9000"},
		{"tcp://[::1]:8529", DomainIPv6, false, "::1", 8529, "[::1]:8529", "tcp://[::1]:8529"},
		{"tcp://[fe80::1]", DomainIPv6, false, "fe80::1", DefaultPort, "[fe80::1]:8529", "tcp://[fe80::1]:8529"},
		{"tcp://localhost", DomainIPv4, false, "localhost", DefaultPort, "localhost:8529", "tcp://localhost:8529"},
		{"tcp://:7000", DomainIPv4, false, DefaultHost, 7000, "127.0.0.1:7000", "tcp://127.0.0.1:7000"},
		{"HTTP+TCP://127.0.0.1:0", DomainIPv4, false, "127.0.0.1", 0, "127.0.0.1:0", "tcp://127.0.0.1:0"},
		{"unix:///tmp/agency.sock", DomainUnix, false, "", 0, "/tmp/agency.sock", "unix:///tmp/agency.sock"},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			ep, err := Parse(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.domain, ep.Domain)
			assert.Equal(t, tt.ssl, ep.IsSSL())
			assert.Equal(t, tt.host, ep.Host)
			assert.Equal(t, tt.port, ep.Port)
			assert.Equal(t, tt.address, ep.Address())
			assert.Equal(t, tt.canon, ep.String())
		})
	}
}

func TestParseRejects(t *testing.T) {
	for _, spec := range []string{
		"",
		"http://127.0.0.1:8529",
		"tcp://127.0.0.1:notaport",
		"tcp://127.0.0.1:70000",
		"tcp://::1:8529",
		"tcp://[::1",
		"tcp://[::1]8529",
		"tcp://host:1/path",
		"unix://",
		"Ⱥ",
		"tcp://\xff",
		"http+Ⱥ",
		"TCP://hôst:8529",
		"ssl://[::1\x00]",
		"tcp://ho st",
	} {
		_, err := Parse(spec)
		assert.ErrorIs(t, err, ErrInvalidEndpoint, spec)
	}
}

func TestNetworkAndTarget(t *testing.T) {
	unix := MustParse("unix:///var/run/agency.sock")
	assert.Equal(t, "unix", unix.Network())
	assert.Equal(t, "unix:///var/run/agency.sock", unix.Target())
	assert.Equal(t, "localhost", unix.HostString())

	tcp := MustParse("ssl://10.0.0.1:8531")
	assert.Equal(t, "tcp", tcp.Network())
	assert.Equal(t, "10.0.0.1:8531", tcp.Target())
	assert.Equal(t, "10.0.0.1:8531", tcp.HostString())
}

func TestEqualAndDefault(t *testing.T) {
	assert.True(t, Default().Equal(MustParse("tcp://127.0.0.1")))
	assert.False(t, Default().Equal(MustParse("ssl://127.0.0.1")))
	assert.Equal(t, "tcp://127.0.0.1:9999", Default().WithPort(9999).String())

	assert.Panics(t, func() { MustParse("bogus") })
}
