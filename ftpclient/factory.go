package ftpclient

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rs/zerolog"

	"github.com/AlfredDev/ftppool/config"
	"github.com/AlfredDev/ftppool/errs"
)

// Factory dials, authenticates, and configures control channels, and
// closes them cleanly. It is component C1 (spec §4.1). Factory holds no
// per-connection state — every Connection it returns is independently
// ownable by the pool.
type Factory struct {
	cfg    *config.Config
	logger zerolog.Logger
	nextID uint64
}

// NewFactory builds a Factory bound to the given immutable configuration.
func NewFactory(cfg *config.Config, logger zerolog.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger.With().Str("component", "ftp_factory").Logger(),
	}
}

// step identifies which stage of Create failed, so the classified error
// carries enough context for an operator to act on (spec §4.1).
type step string

const (
	stepProxy  step = "proxy_tunnel"
	stepDial   step = "tcp_connect"
	stepTLS    step = "tls_negotiate"
	stepLogin  step = "authenticate"
	stepSetup  step = "post_login_setup"
)

// Create performs the full dial-authenticate-configure sequence of
// spec §4.1: optional proxy tunnel, TCP connect, greeting, explicit TLS
// negotiation, login, and post-login settings. Any step failure closes
// whatever was partially opened and returns a classified *errs.Error
// carrying the failing step's identity.
func (f *Factory) Create(ctx context.Context) (*Connection, error) {
	id := f.newID()
	log := f.logger.With().Str("connection_id", id).Logger()

	addr := net.JoinHostPort(f.cfg.Hostname, strconv.Itoa(f.cfg.Port))

	dialCtx, cancel := context.WithTimeout(ctx, f.cfg.ConnectTimeout)
	defer cancel()

	opts := []ftp.DialOption{
		ftp.DialWithContext(dialCtx),
		ftp.DialWithTimeout(f.cfg.ConnectTimeout),
	}

	if f.cfg.ProxyType != config.ProxyNone {
		opts = append(opts, ftp.DialWithDialFunc(func(network, address string) (net.Conn, error) {
			return dialThroughProxy(dialCtx, f.cfg, address)
		}))
	}

	switch f.cfg.TLSMode {
	case config.TLSImplicit:
		tlsCfg, err := buildTLSConfig(f.cfg)
		if err != nil {
			return nil, f.fail(id, stepTLS, err)
		}
		opts = append(opts, ftp.DialWithTLS(tlsCfg))
	case config.TLSExplicit:
		tlsCfg, err := buildTLSConfig(f.cfg)
		if err != nil {
			return nil, f.fail(id, stepTLS, err)
		}
		opts = append(opts, ftp.DialWithExplicitTLS(tlsCfg))
	}

	if f.cfg.ActiveMode {
		log.Warn().Msg("active mode requested but this client only negotiates passive data connections, ignoring")
	}

	sc, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, f.fail(id, stepDial, err)
	}

	if err := sc.Login(f.cfg.Username, f.cfg.Password); err != nil {
		_ = sc.Quit()
		return nil, f.fail(id, stepLogin, err)
	}

	cwd, err := sc.CurrentDir()
	if err != nil {
		_ = sc.Quit()
		return nil, f.fail(id, stepSetup, err)
	}

	mode := "Binary"
	if f.cfg.TransferMode == config.TransferASCII {
		mode = "ASCII"
	}

	now := time.Now()
	conn := &Connection{
		id:           id,
		client:       sc,
		createdAt:    now,
		lastUsedAt:   now,
		lastTested:   now,
		cwd:          cwd,
		transferMode: mode,
	}

	log.Info().Str("host", f.cfg.Hostname).Msg("ftp control connection established")
	return conn, nil
}

// Close sends QUIT (*ftp.ServerConn's Quit also closes the transport)
// and waits at most 2s for it to return; errors are swallowed and
// logged. If QUIT has not returned by then, Close stops waiting and
// returns, leaving the transport to that pending call; it does not close
// the transport by any other means. Calling Close again sends QUIT
// again, and its error is swallowed the same way.
func (f *Factory) Close(conn *Connection) {
	conn.mu.Lock()
	client := conn.client
	conn.mu.Unlock()

	if client == nil {
		return
	}

	done := make(chan error, 1)
	go func() { done <- client.Quit() }()

	select {
	case err := <-done:
		if err != nil {
			f.logger.Debug().Str("connection_id", conn.id).Err(err).Msg("quit returned error, connection still closed")
		}
	case <-time.After(2 * time.Second):
		f.logger.Debug().Str("connection_id", conn.id).Msg("quit timed out, no longer waiting")
	}
}

// Rebind re-dials a fresh control channel and, on success, swaps it into
// the existing Connection in place — preserving its id — as the Health
// Manager's repair step requires (spec §4.2). On failure it increments
// the reconnect-attempt counter and leaves the Connection's identity
// untouched.
func (f *Factory) Rebind(ctx context.Context, conn *Connection) error {
	fresh, err := f.Create(ctx)
	if err != nil {
		conn.mu.Lock()
		conn.reconnectAttempts++
		conn.lastError = err.Error()
		conn.mu.Unlock()
		return err
	}

	conn.mu.Lock()
	conn.client = fresh.client
	conn.cwd = fresh.cwd
	conn.reconnectAttempts = 0
	conn.lastError = ""
	conn.generation++
	conn.lastTested = time.Now()
	conn.mu.Unlock()

	return nil
}

func (f *Factory) fail(id string, s step, cause error) *errs.Error {
	classified := errs.Classify(errs.Signal{Err: cause, Operation: string(s)})
	e := classified.WithConnectionID(id)
	f.logger.Warn().Str("connection_id", id).Str("step", string(s)).Err(cause).Msg("connection factory create failed")
	return e
}

func (f *Factory) newID() string {
	n := atomic.AddUint64(&f.nextID, 1)
	return fmt.Sprintf("ftpconn-%d-%d", time.Now().UnixNano(), n)
}
