package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"tokensite/pkg/analytics"
	"tokensite/pkg/config"
	"tokensite/pkg/models"

	"go.uber.org/zap"
)

// Reconciler drives the connected wallet toward the configured network and
// token. Each operation issues the fewest provider calls needed and resolves to
// nil or a *Error.
type Reconciler struct {
	network models.NetworkDescriptor
	token   models.TokenDescriptor
	caps    Capabilities

	logger   *zap.Logger
	recorder analytics.Recorder

	mu       sync.Mutex
	session  models.WalletSession
	active   Capability
	onChange func(models.WalletSession)
}

// NewReconciler creates a Reconciler for cfg using the probed capabilities.
func NewReconciler(cfg *config.AppConfig, caps Capabilities, logger *zap.Logger, recorder analytics.Recorder) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = analytics.Nop{}
	}
	if caps == nil {
		caps = Capabilities{}
	}
	return &Reconciler{
		network:  cfg.Network,
		token:    cfg.Token,
		caps:     caps,
		logger:   logger.Named("wallet"),
		recorder: recorder,
		session:  models.WalletSession{Status: "Not connected."},
	}
}

// OnChange registers fn to be called with the session after every change.
func (r *Reconciler) OnChange(fn func(models.WalletSession)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// Capabilities returns the wallets available to Connect.
func (r *Reconciler) Capabilities() []models.WalletSource {
	return r.caps.Available()
}

// Network returns the network the wallet is reconciled toward.
func (r *Reconciler) Network() models.NetworkDescriptor {
	return r.network
}

// Token returns the token offered to the wallet.
func (r *Reconciler) Token() models.TokenDescriptor {
	return r.token
}

// Session returns a copy of the current session.
func (r *Reconciler) Session() models.WalletSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

func (r *Reconciler) update(fn func(s *models.WalletSession)) {
	r.mu.Lock()
	fn(&r.session)
	session, onChange := r.session, r.onChange
	r.mu.Unlock()
	if onChange != nil {
		onChange(session)
	}
}

func (r *Reconciler) setStatus(status string) {
	r.update(func(s *models.WalletSession) { s.Status = status })
}

// provider returns the wallet operations run against: the connected one, or
// the injected wallet when nothing is connected.
func (r *Reconciler) provider(ctx context.Context) (Provider, error) {
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()
	if active == nil {
		active = r.caps.Get(models.SourceInjected)
	}
	if !active.Available() {
		return nil, ErrNoProvider
	}
	p, err := active.Open(ctx)
	if err != nil {
		if errors.Is(err, ErrNoProvider) {
			return nil, err
		}
		return nil, classify(err, models.ReasonTransport, "open "+string(active.Source()))
	}
	return p, nil
}

// EnsureNetwork makes target the wallet's active network. It reads the chain
// first and does nothing more when it already matches; otherwise it switches,
// and adds the chain once if the wallet does not know it.
func (r *Reconciler) EnsureNetwork(ctx context.Context, target models.NetworkDescriptor) error {
	p, err := r.provider(ctx)
	if err != nil {
		r.setStatus(ReasonOf(err).Message())
		return err
	}
	if err := r.ensureNetwork(ctx, p, target); err != nil {
		r.setStatus(ReasonOf(err).Message())
		return err
	}
	r.setStatus(fmt.Sprintf("Connected to %s.", target.ChainName))
	return nil
}

func (r *Reconciler) ensureNetwork(ctx context.Context, p Provider, target models.NetworkDescriptor) error {
	current, err := p.ChainID(ctx)
	if err != nil {
		return wrap(models.ReasonTransport, "eth_chainId", err)
	}
	if current.Cmp(big.NewInt(target.ChainID)) == 0 {
		return nil
	}
	attrs := map[string]any{"chain": target.ChainName, "chain_id": target.ChainID}

	err = p.SwitchChain(ctx, target.ChainIDHex())
	if err == nil {
		r.logger.Info("switched network", zap.Int64("chain_id", target.ChainID))
		r.recorder.Record(analytics.EventSwitchSuccess, attrs)
		return nil
	}
	if !isUnrecognizedChain(err) {
		r.recorder.Record(analytics.EventSwitchError, attrs)
		r.logRejection("network switch failed", err)
		return classify(err, models.ReasonSwitchRejected, "wallet_switchEthereumChain")
	}

	if err := p.AddChain(ctx, target); err != nil {
		r.recorder.Record(analytics.EventAddChainError, attrs)
		r.logRejection("adding network failed", err)
		return classify(err, models.ReasonAddRejected, "wallet_addEthereumChain")
	}
	r.logger.Info("added network", zap.Int64("chain_id", target.ChainID))
	r.recorder.Record(analytics.EventAddChainSuccess, attrs)
	return nil
}

// RegisterToken asks the wallet to track token, after making sure it is on
// the configured network.
func (r *Reconciler) RegisterToken(ctx context.Context, token models.TokenDescriptor) error {
	err := r.registerToken(ctx, token)
	if err != nil {
		r.setStatus(ReasonOf(err).Message())
		return err
	}
	r.setStatus(fmt.Sprintf("%s added to wallet.", token.Symbol))
	return nil
}

func (r *Reconciler) registerToken(ctx context.Context, token models.TokenDescriptor) error {
	if strings.TrimSpace(token.Address) == "" {
		return ErrMissingAddress
	}
	p, err := r.provider(ctx)
	if err != nil {
		return err
	}
	attrs := map[string]any{"symbol": token.Symbol}
	r.recorder.Record(analytics.EventWatchClick, attrs)

	if err := r.ensureNetwork(ctx, p, r.network); err != nil {
		r.recorder.Record(analytics.EventWatchError, attrs)
		return wrap(models.ReasonNetworkMismatch, "wallet_watchAsset", err)
	}

	added, err := p.WatchAsset(ctx, token)
	if err == nil && !added {
		err = errWatchDeclined
	}
	if err != nil {
		r.recorder.Record(analytics.EventWatchError, attrs)
		r.logRejection("watch asset failed", err)
		return wrap(models.ReasonWatchRejected, "wallet_watchAsset", err)
	}
	r.recorder.Record(analytics.EventWatchSuccess, attrs)
	return nil
}

// Connect opens the wallet for source and makes its first account the session
// address. Aligning the network is attempted afterwards; its outcome only
// shows in the session status.
func (r *Reconciler) Connect(ctx context.Context, source models.WalletSource) (string, error) {
	capability := r.caps.Get(source)
	attrs := map[string]any{"wallet": string(source)}
	r.recorder.Record(analytics.EventConnectClick, attrs)

	address, p, err := r.open(ctx, capability)
	if err != nil {
		r.recorder.Record(analytics.EventConnectError, attrs)
		r.setStatus(ReasonOf(err).Message())
		return "", err
	}

	r.mu.Lock()
	previous := r.active
	r.active = capability
	r.mu.Unlock()
	if previous != nil && previous != capability {
		_ = previous.Close(ctx)
	}

	r.logger.Info("wallet connected", zap.String("source", string(source)), zap.String("address", address))
	r.recorder.Record(analytics.EventConnectSuccess, attrs)

	status := fmt.Sprintf("Connected to %s.", r.network.ChainName)
	if err := r.ensureNetwork(ctx, p, r.network); err != nil {
		status = ReasonOf(err).Message()
	}
	r.update(func(s *models.WalletSession) {
		s.Address = address
		s.Source = source
		s.Status = status
	})
	return address, nil
}

func (r *Reconciler) open(ctx context.Context, capability Capability) (string, Provider, error) {
	if !capability.Available() {
		return "", nil, ErrNoProvider
	}
	p, err := capability.Open(ctx)
	if err != nil {
		if errors.Is(err, ErrNoProvider) {
			return "", nil, err
		}
		return "", nil, classify(err, models.ReasonUserRejected, "open "+string(capability.Source()))
	}
	accounts, err := p.RequestAccounts(ctx)
	if err != nil {
		r.logRejection("account request failed", err)
		return "", nil, classify(err, models.ReasonUserRejected, "eth_requestAccounts")
	}
	if len(accounts) == 0 {
		return "", nil, wrap(models.ReasonUserRejected, "eth_requestAccounts", errNoAccounts)
	}
	return accounts[0], p, nil
}

// Logout ends the session. Embedded wallets are logged out.
func (r *Reconciler) Logout(ctx context.Context) error {
	r.mu.Lock()
	active := r.active
	r.active = nil
	r.mu.Unlock()

	var err error
	if active != nil {
		err = active.Close(ctx)
		r.recorder.Record(analytics.EventLogout, map[string]any{"wallet": string(active.Source())})
	}
	r.update(func(s *models.WalletSession) {
		*s = models.WalletSession{Status: "Disconnected."}
	})
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// logRejection logs user declines at info and everything else at warn.
func (r *Reconciler) logRejection(msg string, err error) {
	if code, ok := providerCode(err); ok && code == CodeUserRejected {
		r.logger.Info(msg, zap.String("reason", "user rejected"), zap.Error(err))
		return
	}
	r.logger.Warn(msg, zap.Error(err))
}
