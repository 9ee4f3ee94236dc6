package repository

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/dutch-auction/internal/model"
)

// MemoryStore implements Store in process memory.  Every method runs under
// one mutex, so conditional writes have the same compare-and-set semantics
// as the MySQL statements.  It backs STORE_DRIVER=memory and the tests.
type MemoryStore struct {
	mu sync.Mutex

	auctions      map[uint64]*model.Auction
	sales         []model.Sale
	messages      map[uint64][]model.ChatMessage
	stores        map[uint64]*model.Store
	users         map[uint64]*model.User
	notifications []model.Notification

	nextAuctionID uint64
	nextSaleID    uint64
	nextMessageID uint64

	now func() time.Time
}

// NewMemoryStore returns an empty store using the wall clock.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		auctions: make(map[uint64]*model.Auction),
		messages: make(map[uint64][]model.ChatMessage),
		stores:   make(map[uint64]*model.Store),
		users:    make(map[uint64]*model.User),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock used for timestamps.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

var _ Store = (*MemoryStore)(nil)

// AddStore registers a store.  Used for seeding and tests.
func (m *MemoryStore) AddStore(s model.Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := s
	m.stores[s.ID] = &cp
}

// AddUser registers a user.  Used for seeding and tests.
func (m *MemoryStore) AddUser(u model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := u
	m.users[u.ID] = &cp
}

// Notifications returns a copy of every stored notification.
func (m *MemoryStore) Notifications() []model.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Notification(nil), m.notifications...)
}

// Sales returns a copy of every recorded sale.
func (m *MemoryStore) Sales() []model.Sale {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Sale(nil), m.sales...)
}

func (m *MemoryStore) CreateAuction(_ context.Context, a *model.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slugTakenLocked(a.Slug, 0) {
		return ErrConflict
	}
	m.nextAuctionID++
	now := m.now()
	a.ID = m.nextAuctionID
	a.QuantitySold = 0
	a.CreatedAt, a.UpdatedAt = now, now
	m.auctions[a.ID] = cloneAuction(a)
	return nil
}

func (m *MemoryStore) UpdateAuction(_ context.Context, a *model.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.auctions[a.ID]
	if !ok {
		return ErrNotFound
	}
	if !statusIn(cur.Status, editableStatuses) {
		return ErrConflict
	}
	if m.slugTakenLocked(a.Slug, a.ID) {
		return ErrConflict
	}
	next := cloneAuction(a)
	next.Status = cur.Status
	next.StoreID, next.MerchantID = cur.StoreID, cur.MerchantID
	next.QuantitySold = cur.QuantitySold
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = m.now()
	m.auctions[a.ID] = next
	a.UpdatedAt = next.UpdatedAt
	return nil
}

func (m *MemoryStore) slugTakenLocked(slug string, except uint64) bool {
	for id, a := range m.auctions {
		if id != except && a.Slug == slug {
			return true
		}
	}
	return false
}

func (m *MemoryStore) GetAuction(_ context.Context, id uint64) (*model.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.viewLocked(a), nil
}

func (m *MemoryStore) GetAuctionByRef(ctx context.Context, ref string) (*model.Auction, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		return m.GetAuction(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.auctions {
		if a.Slug == ref {
			return m.viewLocked(a), nil
		}
	}
	return nil, ErrNotFound
}

// viewLocked returns a copy with the store wallet joined in.
func (m *MemoryStore) viewLocked(a *model.Auction) *model.Auction {
	out := cloneAuction(a)
	if s, ok := m.stores[a.StoreID]; ok {
		out.MerchantWallet = s.WalletAddress
	}
	return out
}

func (m *MemoryStore) ListAuctions(_ context.Context, f AuctionFilter) ([]model.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Auction{}
	for _, a := range m.auctions {
		if len(f.Statuses) > 0 {
			if !statusIn(a.Status, f.Statuses) {
				continue
			}
		} else if !f.IncludeDrafts && a.Status == model.StatusDraft {
			continue
		}
		if f.StoreID > 0 && a.StoreID != f.StoreID {
			continue
		}
		if f.MerchantID > 0 && a.MerchantID != f.MerchantID {
			continue
		}
		out = append(out, *m.viewLocked(a))
	}
	sort.Slice(out, func(i, j int) bool {
		ki, kj := listKey(&out[i]), listKey(&out[j])
		if !ki.Equal(kj) {
			return ki.After(kj)
		}
		return out[i].ID > out[j].ID
	})
	limit := normalizeLimit(f.Limit, 20, 100)
	offset := max(f.Offset, 0)
	if offset >= len(out) {
		return []model.Auction{}, nil
	}
	end := min(offset+limit, len(out))
	return out[offset:end], nil
}

func listKey(a *model.Auction) time.Time {
	if a.StartsAt != nil {
		return *a.StartsAt
	}
	return a.CreatedAt
}

func (m *MemoryStore) CountByStatus(_ context.Context) (map[model.AuctionStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[model.AuctionStatus]int{}
	for _, a := range m.auctions {
		out[a.Status]++
	}
	return out, nil
}

func (m *MemoryStore) TransitionStatus(_ context.Context, t Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[t.AuctionID]
	if !ok {
		return ErrNotFound
	}
	if !statusIn(a.Status, t.From) || (t.RequireUnsold && a.QuantitySold > 0) {
		return ErrConflict
	}
	a.Status = t.To
	if t.StartsAt != nil {
		v := *t.StartsAt
		a.StartsAt = &v
	}
	if t.EndsAt != nil {
		v := *t.EndsAt
		a.EndsAt = &v
	}
	a.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) SweepStatuses(_ context.Context, now time.Time) (SweepResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out SweepResult
	for _, a := range m.auctions {
		if a.Status == model.StatusScheduled && a.StartsAt != nil && !a.StartsAt.After(now) {
			a.Status = model.StatusLive
			a.UpdatedAt = now
			out.Started++
		}
	}
	for _, a := range m.auctions {
		if a.Status == model.StatusLive && a.EndsAt != nil && !a.EndsAt.After(now) && a.QuantitySold < a.Quantity {
			a.Status = model.StatusEndedUnsold
			a.UpdatedAt = now
			out.Ended++
		}
	}
	return out, nil
}

func (m *MemoryStore) RecordSale(_ context.Context, s SaleRecord) (SaleResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[s.AuctionID]
	if !ok || a.Status != model.StatusLive || a.QuantitySold >= a.Quantity ||
		a.EndsAt == nil || !a.EndsAt.After(s.SoldAt) {
		return SaleResult{}, ErrSaleConflict
	}
	for _, prev := range m.sales {
		if prev.PaymentReference == s.PaymentReference || prev.PaymentTx == s.PaymentTx {
			return SaleResult{}, ErrDuplicatePayment
		}
	}
	soldAt := s.SoldAt.UTC()
	final := a.QuantitySold+1 >= a.Quantity
	if final {
		buyer, price, cur := s.BuyerID, s.Price, s.Currency
		tx, ref, media := s.PaymentTx, s.PaymentReference, s.MediaExpiresAt.UTC()
		a.Status = model.StatusSold
		a.WinnerID = &buyer
		a.WinningPrice = &price
		a.SoldAt = &soldAt
		a.PaymentCurrency = &cur
		a.PaymentTx = &tx
		a.PaymentReference = &ref
		a.MediaExpiresAt = &media
	}
	a.QuantitySold++
	a.UpdatedAt = soldAt

	m.nextSaleID++
	sale := model.Sale{
		ID:               m.nextSaleID,
		AuctionID:        s.AuctionID,
		BuyerID:          s.BuyerID,
		Price:            s.Price,
		Currency:         s.Currency,
		PaymentTx:        s.PaymentTx,
		PaymentReference: s.PaymentReference,
		ShippingAddress:  s.ShippingAddress,
		SoldAt:           soldAt,
	}
	m.sales = append(m.sales, sale)
	return SaleResult{Sale: sale, Final: final}, nil
}

func (m *MemoryStore) SaleByReference(_ context.Context, reference string) (*model.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sales {
		if s.PaymentReference == reference {
			cp := s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) AppendMessage(_ context.Context, msg *model.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextMessageID++
	msg.ID = m.nextMessageID
	msg.CreatedAt = m.now().Truncate(time.Microsecond)
	m.messages[msg.AuctionID] = append(m.messages[msg.AuctionID], *msg)
	return nil
}

func (m *MemoryStore) MessagesSince(_ context.Context, auctionID uint64, after time.Time, afterID uint64, limit int) ([]model.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = normalizeLimit(limit, 100, 500)
	out := []model.ChatMessage{}
	for _, msg := range m.sortedLocked(auctionID) {
		if !msg.After(after, afterID) {
			continue
		}
		out = append(out, msg)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) RecentMessages(_ context.Context, auctionID uint64, limit int) ([]model.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sortedLocked(auctionID)
	limit = normalizeLimit(limit, 50, 200)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (m *MemoryStore) sortedLocked(auctionID uint64) []model.ChatMessage {
	out := append([]model.ChatMessage(nil), m.messages[auctionID]...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *MemoryStore) GetStore(_ context.Context, id uint64) (*model.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stores[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) UserIDByWallet(_ context.Context, wallet string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wallet = strings.TrimSpace(wallet)
	for _, u := range m.users {
		if wallet != "" && u.WalletAddress == wallet {
			return u.ID, nil
		}
	}
	return 0, ErrNotFound
}

func (m *MemoryStore) InsertNotification(_ context.Context, n model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = m.now()
	}
	m.notifications = append(m.notifications, n)
	return nil
}

func statusIn(s model.AuctionStatus, set []model.AuctionStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// cloneAuction deep copies the pointer and slice fields so callers can
// never alias stored state.
func cloneAuction(a *model.Auction) *model.Auction {
	out := *a
	out.Images = append([]string(nil), a.Images...)
	if out.Images == nil {
		out.Images = []string{}
	}
	out.DecaySteps = append([]model.DecayStep(nil), a.DecaySteps...)
	if len(out.DecaySteps) == 0 {
		out.DecaySteps = nil
	}
	out.VideoURL = copyPtr(a.VideoURL)
	out.StartPriceUsdc = copyPtr(a.StartPriceUsdc)
	out.FloorPriceUsdc = copyPtr(a.FloorPriceUsdc)
	out.StartsAt = copyPtr(a.StartsAt)
	out.EndsAt = copyPtr(a.EndsAt)
	out.MediaExpiresAt = copyPtr(a.MediaExpiresAt)
	out.WinnerID = copyPtr(a.WinnerID)
	out.WinningPrice = copyPtr(a.WinningPrice)
	out.SoldAt = copyPtr(a.SoldAt)
	out.PaymentCurrency = copyPtr(a.PaymentCurrency)
	out.PaymentTx = copyPtr(a.PaymentTx)
	out.PaymentReference = copyPtr(a.PaymentReference)
	return &out
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
