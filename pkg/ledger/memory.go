package ledger

import (
	"context"
	"github.com/aim-pay/accountant/pkg"
	"github.com/pkg/errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// a single mutex serialises every writer
type Memory struct {
	mu  sync.Mutex
	seq int64
	now func() time.Time

	users     map[int64]*pkg.User
	external  map[string]int64
	payments  map[string]pkg.Payment
	payouts   map[int64]*pkg.Payout
	byPayment map[string]int64
	referrals map[int64]pkg.ReferralEdge // keyed by referred user id
}

func NewMemory() *Memory {
	return &Memory{
		now:       time.Now,
		users:     make(map[int64]*pkg.User),
		external:  make(map[string]int64),
		payments:  make(map[string]pkg.Payment),
		payouts:   make(map[int64]*pkg.Payout),
		byPayment: make(map[string]int64),
		referrals: make(map[int64]pkg.ReferralEdge),
	}
}

func (m *Memory) nextID() int64 {
	m.seq++
	return m.seq
}

func (m *Memory) Register(_ context.Context, externalID, displayName, referrerHint string) (*pkg.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.external[externalID]; ok {
		return nil, errors.Wrap(pkg.ErrAlreadyExists, "user "+externalID)
	}

	u := &pkg.User{
		ID:            m.nextID(),
		ExternalID:    externalID,
		DisplayName:   displayName,
		ReferrerHint:  strings.TrimSpace(referrerHint),
		PaymentStatus: pkg.StatusUnpaid,
		CreatedAt:     m.now(),
	}
	m.users[u.ID] = u
	m.external[externalID] = u.ID

	c := *u
	return &c, nil
}

func (m *Memory) FindByExternalID(_ context.Context, externalID string) (*pkg.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.findLocked(externalID)
}

func (m *Memory) findLocked(externalID string) (*pkg.User, error) {
	id, ok := m.external[externalID]
	if !ok {
		return nil, errors.Wrap(pkg.ErrNotFound, "user "+externalID)
	}

	c := *m.users[id]
	return &c, nil
}

func (m *Memory) FindByID(_ context.Context, userID int64) (*pkg.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return nil, errors.Wrapf(pkg.ErrNotFound, "user %d", userID)
	}

	c := *u
	return &c, nil
}

func (m *Memory) MarkPaid(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return errors.Wrapf(pkg.ErrNotFound, "user %d", userID)
	}

	u.PaymentStatus = pkg.StatusPaid
	return nil
}

func (m *Memory) CountReferralsFor(_ context.Context, userID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	for _, edge := range m.referrals {
		if edge.ReferrerID == userID {
			n++
		}
	}

	return n, nil
}

func (m *Memory) ListUnnotified(_ context.Context) ([]pkg.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pending = make([]pkg.Payout, 0)
	for _, p := range m.payouts {
		if !p.Notified {
			pending = append(pending, *p)
		}
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	return pending, nil
}

func (m *Memory) MarkNotified(_ context.Context, payoutID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payouts[payoutID]
	if !ok {
		return errors.Wrapf(pkg.ErrNotFound, "payout %d", payoutID)
	}

	p.Notified = true
	return nil
}

func (m *Memory) Update(ctx context.Context, externalID string, fn func(pkg.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, err := m.findLocked(externalID)
	if err != nil {
		return err
	}

	tx := &memoryTx{m: m, user: user, paid: make(map[int64]struct{})}
	if err = fn(tx); err != nil {
		return err
	}

	if err = ctx.Err(); err != nil {
		return errors.Wrap(err, "commit")
	}

	tx.commit()
	return nil
}

type memoryTx struct {
	m    *Memory
	user *pkg.User

	paid      map[int64]struct{}
	payments  []pkg.Payment
	payouts   []*pkg.Payout
	referrals []pkg.ReferralEdge
}

func (t *memoryTx) User() *pkg.User {
	return t.user
}

func (t *memoryTx) FindByExternalID(_ context.Context, externalID string) (*pkg.User, error) {
	u, err := t.m.findLocked(externalID)
	if err != nil {
		return nil, err
	}

	if _, ok := t.paid[u.ID]; ok {
		u.PaymentStatus = pkg.StatusPaid
	}

	return u, nil
}

func (t *memoryTx) MarkPaid(_ context.Context, userID int64) error {
	if _, ok := t.m.users[userID]; !ok {
		return errors.Wrapf(pkg.ErrNotFound, "user %d", userID)
	}

	t.paid[userID] = struct{}{}
	if t.user.ID == userID {
		t.user.PaymentStatus = pkg.StatusPaid
	}

	return nil
}

func (t *memoryTx) RecordPayment(_ context.Context, payment *pkg.Payment) error {
	if _, ok := t.m.payments[payment.ID]; ok {
		return errors.Wrap(pkg.ErrDuplicateEvent, "payment "+payment.ID)
	}

	for _, staged := range t.payments {
		if staged.ID == payment.ID {
			return errors.Wrap(pkg.ErrDuplicateEvent, "payment "+payment.ID)
		}
	}

	payment.ProcessedAt = t.m.now()
	t.payments = append(t.payments, *payment)
	return nil
}

func (t *memoryTx) PayoutForPayment(_ context.Context, paymentID string) (*pkg.Payout, error) {
	if id, ok := t.m.byPayment[paymentID]; ok {
		c := *t.m.payouts[id]
		return &c, nil
	}

	for _, staged := range t.payouts {
		if staged.PaymentID == paymentID {
			c := *staged
			return &c, nil
		}
	}

	return nil, errors.Wrap(pkg.ErrNotFound, "payout for payment "+paymentID)
}

func (t *memoryTx) CreatePayout(ctx context.Context, payout *pkg.Payout) error {
	if _, err := t.PayoutForPayment(ctx, payout.PaymentID); err == nil {
		return errors.Wrap(pkg.ErrDuplicateEvent, "payout for payment "+payout.PaymentID)
	}

	if _, ok := t.m.users[payout.UserID]; !ok {
		return errors.Wrapf(pkg.ErrNotFound, "user %d", payout.UserID)
	}

	payout.ID = t.m.nextID()
	payout.CreatedAt = t.m.now()
	payout.Notified = false

	c := *payout
	t.payouts = append(t.payouts, &c)
	return nil
}

func (t *memoryTx) CreateReferral(_ context.Context, edge *pkg.ReferralEdge) error {
	if _, ok := t.m.referrals[edge.ReferredID]; ok {
		return errors.Wrapf(pkg.ErrDuplicateEvent, "referral of user %d", edge.ReferredID)
	}

	for _, staged := range t.referrals {
		if staged.ReferredID == edge.ReferredID {
			return errors.Wrapf(pkg.ErrDuplicateEvent, "referral of user %d", edge.ReferredID)
		}
	}

	edge.ID = t.m.nextID()
	edge.CreatedAt = t.m.now()
	t.referrals = append(t.referrals, *edge)
	return nil
}

func (t *memoryTx) commit() {
	m := t.m

	for id := range t.paid {
		m.users[id].PaymentStatus = pkg.StatusPaid
	}

	for _, p := range t.payments {
		m.payments[p.ID] = p
	}

	for _, p := range t.payouts {
		m.payouts[p.ID] = p
		m.byPayment[p.PaymentID] = p.ID
	}

	for _, edge := range t.referrals {
		m.referrals[edge.ReferredID] = edge
	}
}
