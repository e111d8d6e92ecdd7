// Package balance tracks the account's balance set and active balance.
//
// The gateway is the source of truth: the post-auth profile snapshot
// loads the set, balances frames replace it, and balance-changed frames
// confirm switches. Mode switches are optimistic: the local active id is
// written before the gateway confirms, and a detached refresh shortly
// after reconciles whatever the gateway actually did.
package balance

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tradewire/exstream/internal/model"
	"github.com/tradewire/exstream/internal/protocol"
	"github.com/tradewire/exstream/internal/router"
)

// ErrUnknownMode is returned for a switch request outside the supported
// real/practice modes.
var ErrUnknownMode = errors.New("unknown balance mode")

// NoBalanceError reports a switch to a mode with no matching balance in
// the tracked set. The gateway is never contacted in this case.
type NoBalanceError struct {
	Mode int
	Type model.BalanceType
}

func (e *NoBalanceError) Error() string {
	return fmt.Sprintf("no %s balance available for mode %d", e.Type, e.Mode)
}

// SendFunc transmits one encoded command to the gateway.
type SendFunc func(data []byte) error

// DefaultRefreshDelay spaces the post-switch balance refresh far enough
// from the switch for the gateway to have applied it.
const DefaultRefreshDelay = 1 * time.Second

// Tracker holds the balance set and active-balance pointer. It
// implements the router's balance handler and is safe for concurrent
// use.
type Tracker struct {
	send         SendFunc
	pending      *router.PendingTable
	refreshDelay time.Duration
	logger       *slog.Logger
	newID        func() string

	mu           sync.RWMutex
	balances     []model.Balance
	index        map[int64]int
	activeID     int64
	seeded       bool
	refreshTimer *time.Timer
}

// NewTracker creates a tracker sending switch and refresh commands via
// send, correlating their replies through pending.
func NewTracker(send SendFunc, pending *router.PendingTable, refreshDelay time.Duration, logger *slog.Logger) *Tracker {
	if refreshDelay <= 0 {
		refreshDelay = DefaultRefreshDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		send:         send,
		pending:      pending,
		refreshDelay: refreshDelay,
		logger:       logger.With("component", "balances"),
		newID:        uuid.NewString,
		index:        make(map[int64]int),
	}
}

// HandleProfile consumes the post-auth account snapshot. The balance set
// is replaced; the active balance is adopted only from the first
// snapshot, preferring the server-specified id, then the server type,
// then the practice balance.
func (t *Tracker) HandleProfile(msg protocol.ProfileMsg) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.replaceLocked(msg.Balances)

	if t.seeded {
		return
	}
	t.seeded = true

	switch {
	case msg.BalanceID != nil:
		t.setActiveLocked(*msg.BalanceID)
	case msg.BalanceType != nil:
		t.adoptByTypeLocked(model.BalanceType(*msg.BalanceType))
	default:
		t.adoptByTypeLocked(model.BalancePractice)
	}
}

// HandleBalances replaces the full balance set. No merge: balances the
// frame omits are gone.
func (t *Tracker) HandleBalances(balances []protocol.WireBalance) {
	t.mu.Lock()
	t.replaceLocked(balances)
	t.mu.Unlock()
}

// HandleBalanceChanged applies the gateway's switch confirmation: the
// confirmed balance becomes active and takes the reported amount. An id
// outside the tracked set changes nothing beyond a warning.
func (t *Tracker) HandleBalanceChanged(msg protocol.BalanceChangedMsg) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := msg.CurrentBalance
	i, ok := t.index[cur.ID]
	if !ok {
		t.logger.Warn("balance-changed for unknown balance", "balance_id", cur.ID)
		return
	}
	t.balances[i].Amount = cur.Amount
	t.setActiveLocked(cur.ID)
}

// SwitchByMode switches the active balance to the first balance matching
// mode (1 real, 2 practice). The local active id is written before the
// gateway confirms, and the call returns right after the command is sent;
// confirmation arrives later through HandleBalanceChanged. A detached
// refresh follows shortly after, its failures swallowed.
func (t *Tracker) SwitchByMode(mode int) error {
	wanted, ok := model.BalanceTypeForMode(mode)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownMode, mode)
	}

	t.mu.Lock()
	target, found := t.firstOfTypeLocked(wanted)
	if !found {
		t.mu.Unlock()
		return &NoBalanceError{Mode: mode, Type: wanted}
	}
	t.setActiveLocked(target.ID)
	t.mu.Unlock()

	id := t.newID()
	t.pending.Add(id,
		func(protocol.Frame) {
			t.logger.Debug("balance switch acknowledged", "balance_id", target.ID)
		},
		func(err error) {
			t.logger.Warn("balance switch unconfirmed", "balance_id", target.ID, "error", err)
		},
	)

	payload, err := protocol.NewChangeBalance(target.ID, id).Encode()
	if err != nil {
		t.pending.Fail(id, err)
		return err
	}
	if err := t.send(payload); err != nil {
		t.pending.Fail(id, err)
		return fmt.Errorf("send change-balance: %w", err)
	}

	t.logger.Info("active balance switched",
		"balance_id", target.ID,
		"type", wanted.String(),
	)
	t.scheduleRefresh()
	return nil
}

// Active returns the active balance, if one is set.
func (t *Tracker) Active() (model.Balance, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.activeID == 0 {
		return model.Balance{}, false
	}
	i, ok := t.index[t.activeID]
	if !ok {
		return model.Balance{}, false
	}
	return t.balances[i], true
}

// Balances returns a copy of the tracked set in gateway order.
func (t *Tracker) Balances() []model.Balance {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.balances) == 0 {
		return nil
	}
	out := make([]model.Balance, len(t.balances))
	copy(out, t.balances)
	return out
}

// Clear drops all balance state and stops any scheduled refresh. The
// next profile snapshot seeds the tracker again.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.balances = nil
	t.index = make(map[int64]int)
	t.activeID = 0
	t.seeded = false
	if t.refreshTimer != nil {
		t.refreshTimer.Stop()
		t.refreshTimer = nil
	}
	t.mu.Unlock()
}

// replaceLocked swaps in a new balance set. An active id the new set no
// longer contains is unset.
func (t *Tracker) replaceLocked(balances []protocol.WireBalance) {
	t.balances = make([]model.Balance, 0, len(balances))
	t.index = make(map[int64]int, len(balances))
	for _, w := range balances {
		t.index[w.ID] = len(t.balances)
		t.balances = append(t.balances, model.Balance{
			ID:       w.ID,
			Type:     model.BalanceType(w.Type),
			Currency: w.Currency,
			Amount:   w.Amount,
		})
	}

	if t.activeID != 0 {
		if _, ok := t.index[t.activeID]; !ok {
			t.logger.Warn("active balance dropped from set", "balance_id", t.activeID)
			t.activeID = 0
		}
	}
}

// setActiveLocked points the active id at a tracked balance. An id
// absent from the set leaves the pointer unchanged.
func (t *Tracker) setActiveLocked(id int64) {
	if _, ok := t.index[id]; !ok {
		t.logger.Warn("ignoring active id not in balance set", "balance_id", id)
		return
	}
	t.activeID = id
}

func (t *Tracker) adoptByTypeLocked(wanted model.BalanceType) {
	if b, ok := t.firstOfTypeLocked(wanted); ok {
		t.activeID = b.ID
	}
}

// firstOfTypeLocked returns the first balance of the wanted type in
// gateway order.
func (t *Tracker) firstOfTypeLocked(wanted model.BalanceType) (model.Balance, bool) {
	for _, b := range t.balances {
		if b.Type == wanted {
			return b, true
		}
	}
	return model.Balance{}, false
}

// scheduleRefresh arms the detached post-switch refresh, replacing any
// refresh already scheduled.
func (t *Tracker) scheduleRefresh() {
	t.mu.Lock()
	if t.refreshTimer != nil {
		t.refreshTimer.Stop()
	}
	t.refreshTimer = time.AfterFunc(t.refreshDelay, t.refresh)
	t.mu.Unlock()
}

// refresh re-requests the balance list. Best effort: every failure is
// logged and swallowed.
func (t *Tracker) refresh() {
	id := t.newID()
	t.pending.Add(id,
		func(frame protocol.Frame) {
			var balances []protocol.WireBalance
			if err := json.Unmarshal(frame.Msg, &balances); err != nil {
				t.logger.Warn("balance refresh reply unparsable", "error", err)
				return
			}
			t.HandleBalances(balances)
			t.logger.Debug("balance set refreshed", "count", len(balances))
		},
		func(err error) {
			t.logger.Warn("balance refresh failed", "error", err)
		},
	)

	payload, err := protocol.NewGetBalances(id).Encode()
	if err != nil {
		t.pending.Fail(id, err)
		return
	}
	if err := t.send(payload); err != nil {
		t.pending.Fail(id, err)
	}
}
