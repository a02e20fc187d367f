package services

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"

	"github.com/zonecp/zonecp/internal/core/ports"
	"github.com/zonecp/zonecp/internal/infrastructure/metrics"
)

// DelegationConfig tunes the outbound resolver behaviour.
type DelegationConfig struct {
	// Resolver is a validating recursive resolver, host:port.
	Resolver string
	// OwnNS are the service's nameserver hostnames (with trailing dot).
	OwnNS []string
	Timeout     time.Duration
	UDPRetries  int
	Parallelism int
}

// DelegationService verifies that customer domains are registered,
// delegated to our nameservers, and DNSSEC-secured at the parent.
type DelegationService struct {
	repo ports.Repository
	cfg  DelegationConfig
	log  *slog.Logger
	udp  *dns.Client
	tcp  *dns.Client
	now  func() time.Time

	// nsPort is the port delegation queries are sent to; overridable in tests.
	nsPort string

	mu        sync.Mutex
	hostAddrs map[string][]string
}

func NewDelegationService(repo ports.Repository, cfg DelegationConfig, log *slog.Logger) *DelegationService {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.UDPRetries == 0 {
		cfg.UDPRetries = 2
	}
	if cfg.Parallelism == 0 {
		cfg.Parallelism = 8
	}
	return &DelegationService{
		repo:      repo,
		cfg:       cfg,
		log:       log,
		udp:       &dns.Client{Net: "udp", Timeout: cfg.Timeout},
		tcp:       &dns.Client{Net: "tcp", Timeout: cfg.Timeout},
		now:       time.Now,
		nsPort:    "53",
		hostAddrs: map[string][]string{},
	}
}

// CheckAll runs the delegation check over every domain, bounded-parallel,
// and writes the results back.
func (s *DelegationService) CheckAll(ctx context.Context) error {
	names, err := s.repo.ListDomainNames(ctx)
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)
	for _, name := range names {
		g.Go(func() error {
			if err := s.CheckDomain(ctx, name); err != nil {
				s.log.Warn("delegation check failed", "domain", name, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// CheckDomain checks one domain and persists the outcome.
func (s *DelegationService) CheckDomain(ctx context.Context, name string) error {
	d, err := s.repo.GetDomainByName(ctx, name)
	if err != nil {
		return err
	}
	result := s.check(ctx, name)
	metrics.DelegationChecksTotal.WithLabelValues(result.outcome()).Inc()
	now := s.now()
	d.DelegationChecked = &now
	d.IsRegistered = result.registered
	d.HasAllNameservers = result.hasAll
	d.IsDelegated = result.delegated
	d.IsSecured = result.secured
	return s.repo.UpdateDelegationStatus(ctx, d.ID, d)
}

type delegationResult struct {
	registered *bool
	hasAll     *bool
	delegated  *bool
	secured    *bool
}

func (r delegationResult) outcome() string {
	switch {
	case r.registered == nil:
		return "unknown"
	case !*r.registered:
		return "unregistered"
	case r.delegated != nil && *r.delegated:
		return "delegated"
	default:
		return "not_delegated"
	}
}

func (s *DelegationService) check(ctx context.Context, name string) delegationResult {
	var res delegationResult
	fqdn := dns.Fqdn(name)

	parentNS := s.findParentServers(ctx, fqdn)
	if len(parentNS) == 0 {
		return res
	}
	delegationNS, rcode, ok := s.queryDelegation(ctx, fqdn, parentNS)
	if !ok {
		return res
	}
	if rcode == dns.RcodeNameError {
		res.registered = boolPtr(false)
		return res
	}
	res.registered = boolPtr(true)

	own := map[string]bool{}
	for _, ns := range s.cfg.OwnNS {
		own[strings.ToLower(dns.Fqdn(ns))] = true
	}
	overlap, missing := 0, 0
	for ns := range own {
		if delegationNS[ns] {
			overlap++
		} else {
			missing++
		}
	}
	extras := 0
	for ns := range delegationNS {
		if !own[ns] {
			extras++
		}
	}
	res.hasAll = boolPtr(missing == 0 && len(own) > 0)
	// Tri-state: nil when the delegation shares no server with ours, false
	// on a partial match, true only when the sets coincide.
	switch {
	case overlap == 0:
	case missing == 0 && extras == 0:
		res.delegated = boolPtr(true)
	default:
		res.delegated = boolPtr(false)
	}

	// A security verdict only makes sense for zones actually delegated to
	// us; without overlap the DS state is someone else's business.
	if overlap > 0 {
		if secured, ok := s.querySecured(ctx, fqdn); ok {
			res.secured = boolPtr(secured)
		}
	}
	return res
}

// findParentServers walks up the tree from the parent until an NS answer
// appears at the resolver, then resolves those servers to addresses.
func (s *DelegationService) findParentServers(ctx context.Context, fqdn string) []string {
	labels := dns.SplitDomainName(fqdn)
	for i := 1; i < len(labels); i++ {
		ancestor := dns.Fqdn(strings.Join(labels[i:], "."))
		msg, err := s.query(ctx, ancestor, dns.TypeNS, s.cfg.Resolver, false)
		if err != nil || msg.Rcode != dns.RcodeSuccess {
			continue
		}
		var addrs []string
		for _, rr := range msg.Answer {
			if ns, ok := rr.(*dns.NS); ok {
				addrs = append(addrs, s.resolveHost(ctx, ns.Ns)...)
			}
		}
		if len(addrs) > 0 {
			return addrs
		}
	}
	return nil
}

// queryDelegation asks the parent's servers for the domain's NS RRset and
// returns the delegation set, the worst rcode seen, and whether any server
// answered at all.
func (s *DelegationService) queryDelegation(ctx context.Context, fqdn string, servers []string) (map[string]bool, int, bool) {
	set := map[string]bool{}
	rcode := -1
	answered := false
	for _, server := range servers {
		msg, err := s.query(ctx, fqdn, dns.TypeNS, server, false)
		if err != nil {
			continue
		}
		answered = true
		if rcode == -1 || msg.Rcode == dns.RcodeSuccess {
			rcode = msg.Rcode
		}
		for _, section := range [][]dns.RR{msg.Answer, msg.Ns} {
			for _, rr := range section {
				if ns, ok := rr.(*dns.NS); ok && strings.EqualFold(ns.Header().Name, fqdn) {
					set[strings.ToLower(ns.Ns)] = true
				}
			}
		}
	}
	return set, rcode, answered
}

// querySecured asks the validating resolver for the DS RRset and requires
// the AD bit on a non-empty answer.
func (s *DelegationService) querySecured(ctx context.Context, fqdn string) (bool, bool) {
	msg, err := s.query(ctx, fqdn, dns.TypeDS, s.cfg.Resolver, true)
	if err != nil || msg.Rcode != dns.RcodeSuccess {
		return false, err == nil
	}
	hasDS := false
	for _, rr := range msg.Answer {
		if _, ok := rr.(*dns.DS); ok {
			hasDS = true
		}
	}
	return hasDS && msg.AuthenticatedData, true
}

// resolveHost memoizes hostname to address resolution via the resolver.
func (s *DelegationService) resolveHost(ctx context.Context, host string) []string {
	host = strings.ToLower(host)
	s.mu.Lock()
	if addrs, ok := s.hostAddrs[host]; ok {
		s.mu.Unlock()
		return addrs
	}
	s.mu.Unlock()

	var addrs []string
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		msg, err := s.query(ctx, host, qtype, s.cfg.Resolver, false)
		if err != nil {
			continue
		}
		for _, rr := range msg.Answer {
			switch a := rr.(type) {
			case *dns.A:
				addrs = append(addrs, net.JoinHostPort(a.A.String(), s.nsPort))
			case *dns.AAAA:
				addrs = append(addrs, net.JoinHostPort(a.AAAA.String(), s.nsPort))
			}
		}
	}
	s.mu.Lock()
	if len(s.hostAddrs) < 4096 {
		s.hostAddrs[host] = addrs
	}
	s.mu.Unlock()
	return addrs
}

// query sends one question over UDP with bounded retries, falling back to
// TCP on truncation or persistent failure.
func (s *DelegationService) query(ctx context.Context, name string, qtype uint16, server string, wantAD bool) (*dns.Msg, error) {
	m := new(dns.Msg)
	m.SetQuestion(name, qtype)
	m.RecursionDesired = true
	if wantAD {
		m.AuthenticatedData = true
		m.SetEdns0(1232, true)
	}
	var lastErr error
	for i := 0; i <= s.cfg.UDPRetries; i++ {
		resp, _, err := s.udp.ExchangeContext(ctx, m, server)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Truncated {
			break
		}
		return resp, nil
	}
	resp, _, err := s.tcp.ExchangeContext(ctx, m, server)
	if err != nil {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, err
	}
	return resp, nil
}

func boolPtr(b bool) *bool { return &b }
