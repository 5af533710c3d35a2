// Command notifier is the reference notification plugin. It reports the
// permission given in PLEDGE_NOTIFY_PERMISSION, rings the terminal bell on
// stderr and, when PLEDGE_NOTIFY_LOG is set, appends each notification to that
// file as a JSON line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/hashicorp/go-plugin"

	pluginrpc "pledge/internal/modules/focus/adapter/out/rpc"
)

type server struct {
	mu         sync.Mutex
	permission string
	requested  string
	logPath    string
}

func (s *server) Permission(context.Context, *pluginrpc.Empty) (*pluginrpc.PermissionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &pluginrpc.PermissionResponse{Permission: s.permission}, nil
}

func (s *server) RequestPermission(context.Context, *pluginrpc.Empty) (*pluginrpc.PermissionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.permission == "default" {
		s.permission = s.requested
	}
	return &pluginrpc.PermissionResponse{Permission: s.permission}, nil
}

func (s *server) Notify(_ context.Context, in *pluginrpc.NotifyRequest) (*pluginrpc.NotifyResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.permission != "granted" {
		return &pluginrpc.NotifyResponse{Delivered: false}, nil
	}
	fmt.Fprintf(os.Stderr, "\a%s: %s\n", in.Title, in.Body)
	if s.logPath == "" {
		return &pluginrpc.NotifyResponse{Delivered: true}, nil
	}
	f, err := os.OpenFile(s.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open notification log: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(in); err != nil {
		return nil, fmt.Errorf("write notification log: %w", err)
	}
	return &pluginrpc.NotifyResponse{Delivered: true}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: pluginrpc.HandshakeConfig,
		Plugins: pluginrpc.PluginMap(&server{
			permission: envOr("PLEDGE_NOTIFY_PERMISSION", "granted"),
			requested:  envOr("PLEDGE_NOTIFY_REQUEST_RESULT", "granted"),
			logPath:    os.Getenv("PLEDGE_NOTIFY_LOG"),
		}),
		GRPCServer: plugin.DefaultGRPCServer,
	})
}
