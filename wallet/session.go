package wallet

import (
	"context"
	"reflect"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/pkg/errors"

	"votechain/logger"
	"votechain/models"
)

// AccountChange is delivered to hooks whenever the active account changes,
// including connect and disconnect. Current is nil when disconnected.
type AccountChange struct {
	Previous   *common.Address
	Current    *common.Address
	Generation uint64
}

// Session owns the connected account and its signer for one page session.
// Every change of account bumps the generation; results computed under an
// older generation are stale.
type Session struct {
	provider Provider

	mu         sync.RWMutex
	account    *common.Address
	signer     *Signer
	connected  bool
	admin      bool
	loading    int
	lastErr    string
	generation uint64
	hooks      []func(AccountChange)

	subOnce sync.Once
	sub     event.Subscription
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewSession(provider Provider) *Session {
	return &Session{
		provider: provider,
		done:     make(chan struct{}),
	}
}

func isNil(p Provider) bool {
	if p == nil {
		return true
	}
	v := reflect.ValueOf(p)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

// Connect requests account access and binds the first account's signer.
func (s *Session) Connect(ctx context.Context) (common.Address, error) {
	if isNil(s.provider) {
		return common.Address{}, models.ErrWalletUnavailable
	}

	accounts, err := s.provider.RequestAccounts(ctx)
	if err != nil {
		return common.Address{}, err
	}
	if len(accounts) == 0 {
		return common.Address{}, models.ErrUserRejected
	}
	signer, err := s.provider.Signer(ctx, accounts[0])
	if err != nil {
		return common.Address{}, err
	}

	s.subscribe()

	account := accounts[0]
	s.mu.Lock()
	prev := s.account
	s.account = &account
	s.signer = signer
	s.connected = true
	s.admin = false
	s.lastErr = ""
	s.generation++
	change := AccountChange{Previous: prev, Current: &account, Generation: s.generation}
	s.mu.Unlock()

	s.notify(change)
	return account, nil
}

// Disconnect clears local state only. Wallets cannot be disconnected remotely.
func (s *Session) Disconnect() {
	s.mu.Lock()
	change, changed := s.clearLocked()
	s.mu.Unlock()
	if changed {
		s.notify(change)
	}
}

func (s *Session) clearLocked() (AccountChange, bool) {
	if !s.connected && s.account == nil {
		return AccountChange{}, false
	}
	prev := s.account
	s.account = nil
	s.signer = nil
	s.connected = false
	s.admin = false
	s.generation++
	return AccountChange{Previous: prev, Generation: s.generation}, true
}

// OnAccountChange registers a hook. Hooks run outside the session lock.
func (s *Session) OnAccountChange(fn func(AccountChange)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

func (s *Session) notify(change AccountChange) {
	s.mu.RLock()
	hooks := make([]func(AccountChange), len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.RUnlock()
	for _, fn := range hooks {
		fn(change)
	}
}

// subscribe attaches to the wallet's account notifications once per session.
func (s *Session) subscribe() {
	s.subOnce.Do(func() {
		ch := make(chan []common.Address, 4)
		s.sub = s.provider.SubscribeAccountsChanged(ch)
		s.wg.Add(1)
		go s.loop(ch)
	})
}

func (s *Session) loop(ch <-chan []common.Address) {
	defer s.wg.Done()
	for {
		select {
		case accounts := <-ch:
			s.handleAccountsChanged(accounts)
		case err, ok := <-s.sub.Err():
			if ok && err != nil {
				logger.GetLogger().Warnw("wallet subscription ended", "error", err)
			}
			return
		case <-s.done:
			return
		}
	}
}

func (s *Session) handleAccountsChanged(accounts []common.Address) {
	log := logger.GetLogger()

	if len(accounts) == 0 {
		s.mu.Lock()
		change, changed := s.clearLocked()
		s.mu.Unlock()
		if changed {
			log.Infow("wallet exposed no accounts, session disconnected")
			s.notify(change)
		}
		return
	}

	s.mu.RLock()
	connected := s.connected
	same := s.account != nil && *s.account == accounts[0]
	s.mu.RUnlock()
	if !connected || same {
		return
	}

	next := accounts[0]
	signer, err := s.provider.Signer(context.Background(), next)

	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return
	}
	if err != nil {
		log.Errorw("failed to bind signer for new account, disconnecting", "account", next.Hex(), "error", err)
		s.lastErr = err.Error()
		change, _ := s.clearLocked()
		s.mu.Unlock()
		s.notify(change)
		return
	}
	prev := s.account
	s.account = &next
	s.signer = signer
	s.admin = false
	s.generation++
	change := AccountChange{Previous: prev, Current: &next, Generation: s.generation}
	s.mu.Unlock()

	log.Infow("wallet account switched", "account", next.Hex())
	s.notify(change)
}

// Signer returns the active signer and the generation it belongs to.
func (s *Session) Signer() (*Signer, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected || s.signer == nil {
		return nil, s.generation, models.ErrNotConnected
	}
	return s.signer, s.generation, nil
}

func (s *Session) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// SetAdmin records the role check result unless the account changed meanwhile.
func (s *Session) SetAdmin(generation uint64, admin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		return models.ErrStale
	}
	s.admin = admin
	return nil
}

func (s *Session) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.admin
}

// Track marks an operation in flight. The returned func must be deferred.
func (s *Session) Track() func() {
	s.mu.Lock()
	s.loading++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.loading--
			s.mu.Unlock()
		})
	}
}

// SetError stores the last user-visible failure; nil clears it.
func (s *Session) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.lastErr = ""
		return
	}
	s.lastErr = err.Error()
}

func (s *Session) State() models.AppState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := models.AppState{
		IsConnected: s.connected,
		IsAdmin:     s.admin,
		IsLoading:   s.loading > 0,
		Error:       s.lastErr,
	}
	if s.account != nil {
		a := *s.account
		st.Account = &a
	}
	return st
}

// Close drops the wallet subscription.
func (s *Session) Close() error {
	select {
	case <-s.done:
		return errors.New("session already closed")
	default:
	}
	close(s.done)
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	s.wg.Wait()
	return nil
}
