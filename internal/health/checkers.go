package health

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
)

// DialTimeout bounds each TCP probe of the game server.
const DialTimeout = 2 * time.Second

// GameServer probes the world, auth and SOAP ports of the game server.
type GameServer struct {
	Host      string
	WorldPort int
	AuthPort  int
	SOAPHost  string
	SOAPPort  int

	dialer *net.Dialer
}

func NewGameServer(host string, worldPort, authPort int, soapHost string, soapPort int) *GameServer {
	if soapHost == "" {
		soapHost = host
	}
	return &GameServer{
		Host:      host,
		WorldPort: worldPort,
		AuthPort:  authPort,
		SOAPHost:  soapHost,
		SOAPPort:  soapPort,
		dialer:    &net.Dialer{Timeout: DialTimeout},
	}
}

func (g *GameServer) Name() string { return "azerothcore" }

// Check is running when both the world and auth servers accept connections.
// SOAP availability is reported but does not affect the status.
func (g *GameServer) Check(ctx context.Context) Status {
	var world, auth, soap bool
	var eg errgroup.Group
	eg.Go(func() error { world = g.open(ctx, g.Host, g.WorldPort); return nil })
	eg.Go(func() error { auth = g.open(ctx, g.Host, g.AuthPort); return nil })
	eg.Go(func() error { soap = g.open(ctx, g.SOAPHost, g.SOAPPort); return nil })
	_ = eg.Wait()

	status := StatusRunning
	if !world || !auth {
		status = StatusStopped
	}
	return Status{
		Status: status,
		Details: map[string]string{
			"worldserver": runState(world),
			"authserver":  runState(auth),
			"soap":        availability(soap),
			"host":        g.Host,
		},
	}
}

func (g *GameServer) open(ctx context.Context, host string, port int) bool {
	ctx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()
	conn, err := g.dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func runState(up bool) string {
	if up {
		return StatusRunning
	}
	return StatusStopped
}

func availability(up bool) string {
	if up {
		return "available"
	}
	return "unavailable"
}

// HTTPEndpoint checks that a URL answers 200.
type HTTPEndpoint struct {
	name   string
	url    string
	client *http.Client
}

// NewHTTPEndpoint checks url with client, or with a 5s-timeout client when
// client is nil.
func NewHTTPEndpoint(name, url string, client *http.Client) *HTTPEndpoint {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPEndpoint{name: name, url: url, client: client}
}

func (h *HTTPEndpoint) Name() string { return h.name }

func (h *HTTPEndpoint) Check(ctx context.Context) Status {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return Status{Status: StatusUnreachable, Error: err.Error()}
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return Status{Status: StatusUnreachable, Error: err.Error()}
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Status{Status: StatusUnhealthy, Code: resp.StatusCode}
	}
	return Status{Status: StatusHealthy, URL: h.url}
}

// PingFunc matches the Ping methods of database handles and the bus.
type PingFunc func(ctx context.Context) error

// Pinger reports healthy when ping succeeds.
type Pinger struct {
	name string
	ping PingFunc
}

func NewPinger(name string, ping PingFunc) *Pinger {
	return &Pinger{name: name, ping: ping}
}

func (p *Pinger) Name() string { return p.name }

func (p *Pinger) Check(ctx context.Context) Status {
	if err := p.ping(ctx); err != nil {
		return Status{Status: StatusUnhealthy, Error: err.Error()}
	}
	return Status{Status: StatusHealthy}
}
