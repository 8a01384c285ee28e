package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"

	"github.com/John-Robertt/surge2clash/internal/config"
	"github.com/John-Robertt/surge2clash/internal/httpapi"
)

func main() {
	configPath := flag.String("config", "", "YAML 配置文件路径（为空则使用默认配置）")
	listen := flag.String("listen", "", "HTTP 监听地址（覆盖配置文件）")
	healthcheck := flag.Bool("healthcheck", false, "请求本机 /healthz 后退出（容器健康检查用）")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalln("load config:", err)
	}
	if strings.TrimSpace(*listen) != "" {
		cfg.Listen = *listen
	}

	if *healthcheck {
		u, err := deriveHealthzURL(cfg.Listen)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if err := runHealthcheck(u, 3*time.Second); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	logrus.SetLevel(logLevel(cfg.LogLevel, os.Getenv("LOG_LEVEL")))

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		logrus.Fatalln("listen:", err)
	}
	if cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConns)
	}

	srv := &http.Server{
		Handler: httpapi.NewHandlerWithOptions(httpapi.Options{
			MaxBodyBytes:       cfg.MaxBodyBytes,
			TokenTTL:           cfg.Token.TTL,
			TokenSweepInterval: cfg.Token.SweepInterval,
			RateLimitRPS:       cfg.RateLimit.RPS,
			RateLimitBurst:     cfg.RateLimit.Burst,
			RateLimitIdleTTL:   cfg.RateLimit.IdleTTL,
		}),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	logrus.Infoln("listening on", "http://"+ln.Addr().String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		logrus.Infoln("shutdown signal received")

		shCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			logrus.Warnln("graceful shutdown failed:", err)
			_ = srv.Close()
		}

		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalln(err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalln(err)
		}
	}
}

// logLevel prefers LOG_LEVEL from the environment, then the config value.
func logLevel(configured, env string) logrus.Level {
	if lvl, err := logrus.ParseLevel(env); err == nil {
		return lvl
	}
	if lvl, err := logrus.ParseLevel(configured); err == nil {
		return lvl
	}
	return logrus.InfoLevel
}

// deriveHealthzURL maps a listen address to a URL reachable from the same
// host. Wildcard hosts are replaced by loopback.
func deriveHealthzURL(listen string) (string, error) {
	listen = strings.TrimSpace(listen)
	if listen == "" {
		return "", errors.New("empty listen address")
	}
	if strings.HasPrefix(listen, "http://") || strings.HasPrefix(listen, "https://") {
		return strings.TrimRight(listen, "/") + "/healthz", nil
	}
	if !strings.Contains(listen, ":") {
		// Bare port.
		listen = ":" + listen
	}

	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "", fmt.Errorf("invalid listen address %q: %w", listen, err)
	}
	if port == "" {
		return "", fmt.Errorf("invalid listen address %q: missing port", listen)
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/healthz", nil
}

func runHealthcheck(url string, timeout time.Duration) error {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}
