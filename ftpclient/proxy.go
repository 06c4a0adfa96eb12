package ftpclient

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/textproto"
	"time"

	"golang.org/x/net/proxy"

	"github.com/AlfredDev/ftppool/config"
)

// dialThroughProxy establishes the TCP connection to addr, optionally
// tunneling through the configured SOCKS or HTTP proxy (spec §4.1 step 1,
// §3 Configuration: proxyType/proxyHost/proxyPort/proxy credentials).
func dialThroughProxy(ctx context.Context, cfg *config.Config, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}

	switch cfg.ProxyType {
	case config.ProxyNone:
		return dialer.DialContext(ctx, "tcp", addr)

	case config.ProxySOCKS:
		proxyAddr := fmt.Sprintf("%s:%d", cfg.ProxyHost, cfg.ProxyPort)
		var auth *proxy.Auth
		if cfg.ProxyUsername != "" {
			auth = &proxy.Auth{User: cfg.ProxyUsername, Password: cfg.ProxyPassword}
		}
		socksDialer, err := proxy.SOCKS5("tcp", proxyAddr, auth, dialer)
		if err != nil {
			return nil, fmt.Errorf("socks5 dialer: %w", err)
		}
		if ctxDialer, ok := socksDialer.(proxy.ContextDialer); ok {
			return ctxDialer.DialContext(ctx, "tcp", addr)
		}
		return socksDialer.Dial("tcp", addr)

	case config.ProxyHTTP:
		return dialThroughHTTPConnect(ctx, cfg, dialer, addr)

	default:
		return nil, fmt.Errorf("unsupported proxy type %q", cfg.ProxyType)
	}
}

// dialThroughHTTPConnect issues an HTTP CONNECT tunnel through the
// configured HTTP proxy.
func dialThroughHTTPConnect(ctx context.Context, cfg *config.Config, dialer *net.Dialer, target string) (net.Conn, error) {
	proxyAddr := fmt.Sprintf("%s:%d", cfg.ProxyHost, cfg.ProxyPort)
	conn, err := dialer.DialContext(ctx, "tcp", proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("dial http proxy: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(cfg.ConnectTimeout))
	}

	req := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\n", target, target)
	if cfg.ProxyUsername != "" {
		req += "Proxy-Authorization: Basic " + basicAuth(cfg.ProxyUsername, cfg.ProxyPassword) + "\r\n"
	}
	req += "\r\n"

	if _, err := conn.Write([]byte(req)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write CONNECT request: %w", err)
	}

	reader := bufio.NewReader(conn)
	tp := textproto.NewReader(reader)
	statusLine, err := tp.ReadLine()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read CONNECT response: %w", err)
	}
	if len(statusLine) < 12 || statusLine[9:12] != "200" {
		conn.Close()
		return nil, fmt.Errorf("proxy CONNECT failed: %s", statusLine)
	}
	if _, err := tp.ReadMIMEHeader(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read CONNECT headers: %w", err)
	}

	_ = conn.SetDeadline(time.Time{})
	return conn, nil
}

func basicAuth(user, pass string) string {
	return base64Encode(user + ":" + pass)
}
