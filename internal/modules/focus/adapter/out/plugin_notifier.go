package out

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	pluginrpc "pledge/internal/modules/focus/adapter/out/rpc"
	"pledge/internal/modules/focus/domain"
	focusout "pledge/internal/modules/focus/port/out"
)

const (
	defaultStartTimeout = 3 * time.Second
	defaultCallTimeout  = 5 * time.Second
)

// PluginNotifier delivers notifications through an out-of-process plugin. The
// plugin is started on first use and restarted if it exits.
type PluginNotifier struct {
	binary string
	logger hclog.Logger

	mu     sync.Mutex
	client *plugin.Client
	rpc    pluginrpc.NotifierClient
}

var _ focusout.Notifier = (*PluginNotifier)(nil)

func NewPluginNotifier(binary string, logger hclog.Logger) *PluginNotifier {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &PluginNotifier{binary: binary, logger: logger.Named("notifier")}
}

func (n *PluginNotifier) Permission(ctx context.Context) (domain.Permission, error) {
	client, err := n.connect()
	if err != nil {
		return domain.PermissionDefault, err
	}
	callCtx, cancel := callContext(ctx, defaultCallTimeout)
	defer cancel()
	resp, err := client.Permission(callCtx)
	if err != nil {
		return domain.PermissionDefault, fmt.Errorf("notifier permission: %w", err)
	}
	return domain.ParsePermission(resp.Permission), nil
}

func (n *PluginNotifier) RequestPermission(ctx context.Context) (domain.Permission, error) {
	client, err := n.connect()
	if err != nil {
		return domain.PermissionDefault, err
	}
	callCtx, cancel := callContext(ctx, defaultCallTimeout)
	defer cancel()
	resp, err := client.RequestPermission(callCtx)
	if err != nil {
		return domain.PermissionDefault, fmt.Errorf("notifier request permission: %w", err)
	}
	return domain.ParsePermission(resp.Permission), nil
}

func (n *PluginNotifier) Notify(ctx context.Context, note domain.Notification) error {
	client, err := n.connect()
	if err != nil {
		return err
	}
	callCtx, cancel := callContext(ctx, defaultCallTimeout)
	defer cancel()
	resp, err := client.Notify(callCtx, &pluginrpc.NotifyRequest{SessionID: note.SessionID, Title: note.Title, Body: note.Body})
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	if !resp.Delivered {
		return fmt.Errorf("notify: plugin did not deliver notification for session %s", note.SessionID)
	}
	return nil
}

// Close kills the plugin process if it is running.
func (n *PluginNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.client != nil {
		n.client.Kill()
		n.client = nil
		n.rpc = nil
	}
	return nil
}

func (n *PluginNotifier) connect() (pluginrpc.NotifierClient, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.client != nil && !n.client.Exited() {
		return n.rpc, nil
	}
	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  pluginrpc.HandshakeConfig,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolGRPC},
		Plugins:          pluginrpc.PluginMap(nil),
		Cmd:              exec.Command(n.binary),
		Managed:          true,
		StartTimeout:     defaultStartTimeout,
		Logger:           n.logger,
	})
	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("start notifier plugin: %w", err)
	}
	raw, err := rpcClient.Dispense(pluginrpc.PluginMapKey)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("dispense notifier plugin: %w", err)
	}
	typed, ok := raw.(pluginrpc.NotifierClient)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("notifier plugin client type mismatch")
	}
	n.client = client
	n.rpc = typed
	n.logger.Debug("notifier plugin started", "binary", n.binary)
	return typed, nil
}

func callContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := parent.Deadline(); ok {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}
