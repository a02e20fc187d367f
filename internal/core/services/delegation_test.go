package services

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zonecp/zonecp/internal/core/domain"
)

// startDNSServer runs a UDP server on a random loopback port and returns its
// address. The same server plays both the recursive resolver and the parent
// zone's name server; the handler dispatches on the question.
func startDNSServer(t *testing.T, handler dns.HandlerFunc) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &dns.Server{PacketConn: pc, Handler: handler}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

func nsRR(name, target string) dns.RR {
	return &dns.NS{
		Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeNS, Class: dns.ClassINET, Ttl: 300},
		Ns:  target,
	}
}

// parentHandler simulates a com. zone that resolves to the test server itself
// and delegates example.com to the given name servers.
func parentHandler(secured bool, targets ...string) dns.HandlerFunc {
	return func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)
		q := req.Question[0]
		switch {
		case q.Name == "com." && q.Qtype == dns.TypeNS:
			m.Answer = append(m.Answer, nsRR("com.", "ns.parent.test."))
		case q.Name == "ns.parent.test." && q.Qtype == dns.TypeA:
			m.Answer = append(m.Answer, &dns.A{
				Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300},
				A:   net.IPv4(127, 0, 0, 1),
			})
		case q.Name == "example.com." && q.Qtype == dns.TypeNS:
			for _, target := range targets {
				m.Answer = append(m.Answer, nsRR("example.com.", target))
			}
		case q.Name == "example.com." && q.Qtype == dns.TypeDS && secured:
			m.AuthenticatedData = true
			m.Answer = append(m.Answer, &dns.DS{
				Hdr:        dns.RR_Header{Name: q.Name, Rrtype: dns.TypeDS, Class: dns.ClassINET, Ttl: 300},
				KeyTag:     12345,
				Algorithm:  13,
				DigestType: 2,
				Digest:     "d06d44b80b8f1d39a95c0b0d7c65d08458e880409bbc683457104237c7f8ec8d",
			})
		case q.Qtype == dns.TypeNS && dns.IsSubDomain("com.", q.Name):
			m.SetRcode(req, dns.RcodeNameError)
		}
		_ = w.WriteMsg(m)
	}
}

func delegationFixture(t *testing.T, handler dns.HandlerFunc) (*DelegationService, *fakeRepo) {
	t.Helper()
	addr := startDNSServer(t, handler)
	repo := newFakeRepo()
	svc := NewDelegationService(repo, DelegationConfig{
		Resolver: addr,
		OwnNS:    []string{"ns1.zonecp.net."},
		Timeout:  2 * time.Second,
	}, testLogger())
	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	svc.nsPort = port
	return svc, repo
}

func TestCheckDomainDelegatedAndSecured(t *testing.T) {
	svc, repo := delegationFixture(t, parentHandler(true, "NS1.zonecp.NET."))
	ctx := context.Background()
	require.NoError(t, repo.CreateDomain(ctx, &domain.Domain{
		ID: uuid.New(), OwnerID: uuid.New(), Name: "example.com",
	}))

	require.NoError(t, svc.CheckDomain(ctx, "example.com"))

	d, err := repo.GetDomainByName(ctx, "example.com")
	require.NoError(t, err)
	require.NotNil(t, d.DelegationChecked)
	require.NotNil(t, d.IsRegistered)
	assert.True(t, *d.IsRegistered)
	require.NotNil(t, d.IsDelegated)
	assert.True(t, *d.IsDelegated, "case-insensitive NS target match")
	require.NotNil(t, d.HasAllNameservers)
	assert.True(t, *d.HasAllNameservers)
	require.NotNil(t, d.IsSecured)
	assert.True(t, *d.IsSecured)
}

func TestCheckDomainPartialDelegation(t *testing.T) {
	svc, repo := delegationFixture(t, parentHandler(false, "ns1.zonecp.net.", "ns.other.test."))
	ctx := context.Background()
	require.NoError(t, repo.CreateDomain(ctx, &domain.Domain{
		ID: uuid.New(), OwnerID: uuid.New(), Name: "example.com",
	}))

	require.NoError(t, svc.CheckDomain(ctx, "example.com"))

	d, err := repo.GetDomainByName(ctx, "example.com")
	require.NoError(t, err)
	require.NotNil(t, d.HasAllNameservers)
	assert.True(t, *d.HasAllNameservers)
	require.NotNil(t, d.IsDelegated)
	assert.False(t, *d.IsDelegated, "foreign server in the delegation set")
}

func TestCheckDomainNoOverlap(t *testing.T) {
	// The parent publishes DS records, but they belong to whoever runs
	// ns.other.test, so no security verdict can be made.
	svc, repo := delegationFixture(t, parentHandler(true, "ns.other.test."))
	ctx := context.Background()
	require.NoError(t, repo.CreateDomain(ctx, &domain.Domain{
		ID: uuid.New(), OwnerID: uuid.New(), Name: "example.com",
	}))

	require.NoError(t, svc.CheckDomain(ctx, "example.com"))

	d, err := repo.GetDomainByName(ctx, "example.com")
	require.NoError(t, err)
	require.NotNil(t, d.IsRegistered)
	assert.True(t, *d.IsRegistered)
	require.NotNil(t, d.HasAllNameservers)
	assert.False(t, *d.HasAllNameservers)
	assert.Nil(t, d.IsDelegated)
	assert.Nil(t, d.IsSecured)
}

func TestCheckDomainUnregistered(t *testing.T) {
	svc, repo := delegationFixture(t, parentHandler(false))
	ctx := context.Background()
	require.NoError(t, repo.CreateDomain(ctx, &domain.Domain{
		ID: uuid.New(), OwnerID: uuid.New(), Name: "gone.com",
	}))

	require.NoError(t, svc.CheckDomain(ctx, "gone.com"))

	d, err := repo.GetDomainByName(ctx, "gone.com")
	require.NoError(t, err)
	require.NotNil(t, d.IsRegistered)
	assert.False(t, *d.IsRegistered)
	assert.Nil(t, d.IsDelegated)
}

func TestCheckDomainUnknownWhenParentsUnreachable(t *testing.T) {
	refuse := func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetRcode(req, dns.RcodeRefused)
		_ = w.WriteMsg(m)
	}
	svc, repo := delegationFixture(t, refuse)
	ctx := context.Background()
	require.NoError(t, repo.CreateDomain(ctx, &domain.Domain{
		ID: uuid.New(), OwnerID: uuid.New(), Name: "example.com",
	}))

	require.NoError(t, svc.CheckDomain(ctx, "example.com"))

	d, err := repo.GetDomainByName(ctx, "example.com")
	require.NoError(t, err)
	require.NotNil(t, d.DelegationChecked)
	assert.Nil(t, d.IsRegistered)
	assert.Nil(t, d.IsDelegated)
	assert.Nil(t, d.IsSecured)
}

func TestDelegationOutcome(t *testing.T) {
	yes, no := true, false
	cases := map[string]delegationResult{
		"unknown":       {},
		"unregistered":  {registered: &no},
		"delegated":     {registered: &yes, delegated: &yes},
		"not_delegated": {registered: &yes, delegated: &no},
	}
	for want, res := range cases {
		assert.Equal(t, want, res.outcome())
	}
}
