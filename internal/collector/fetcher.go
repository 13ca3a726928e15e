package collector

import (
	"context"
	"sync"

	"LiquidSentinel/internal/hyperliquid"
)

// Fetcher is the subset of the info API the collector needs.
// *hyperliquid.Client satisfies it.
type Fetcher interface {
	ClearinghouseState(ctx context.Context, user string) (*hyperliquid.ClearinghouseState, error)
	SpotClearinghouseState(ctx context.Context, user string) (*hyperliquid.SpotClearinghouseState, error)
	AllMids(ctx context.Context) (hyperliquid.Mids, error)
	Portfolio(ctx context.Context, user string) ([]hyperliquid.PortfolioPeriod, error)
	OpenOrders(ctx context.Context, user string) ([]hyperliquid.OpenOrder, error)
	FetchAllFills(ctx context.Context, user string, start int64, end *int64, maxPages int) ([]hyperliquid.Fill, error)
	FetchAllFunding(ctx context.Context, user string, start int64, end *int64, maxPages int) ([]hyperliquid.UserFunding, error)
}

var _ Fetcher = (*hyperliquid.Client)(nil)

// MockFetcher returns fixed data for development and testing. A non-nil
// entry in Errors makes the matching call fail for every user.
type MockFetcher struct {
	States    map[string]*hyperliquid.ClearinghouseState
	Spot      *hyperliquid.SpotClearinghouseState
	Mids      hyperliquid.Mids
	Periods   []hyperliquid.PortfolioPeriod
	Orders    []hyperliquid.OpenOrder
	Fills     []hyperliquid.Fill
	Funding   []hyperliquid.UserFunding
	Errors    map[string]error // keyed by info request type

	mu        sync.Mutex
	fillStart int64
}

func (m *MockFetcher) fail(reqType string) error {
	if m.Errors == nil {
		return nil
	}
	return m.Errors[reqType]
}

func (m *MockFetcher) ClearinghouseState(_ context.Context, user string) (*hyperliquid.ClearinghouseState, error) {
	if err := m.fail("clearinghouseState"); err != nil {
		return nil, err
	}
	if st, ok := m.States[user]; ok {
		return st, nil
	}
	return &hyperliquid.ClearinghouseState{}, nil
}

func (m *MockFetcher) SpotClearinghouseState(context.Context, string) (*hyperliquid.SpotClearinghouseState, error) {
	if err := m.fail("spotClearinghouseState"); err != nil {
		return nil, err
	}
	if m.Spot == nil {
		return &hyperliquid.SpotClearinghouseState{}, nil
	}
	return m.Spot, nil
}

func (m *MockFetcher) AllMids(context.Context) (hyperliquid.Mids, error) {
	if err := m.fail("allMids"); err != nil {
		return nil, err
	}
	return m.Mids, nil
}

func (m *MockFetcher) Portfolio(context.Context, string) ([]hyperliquid.PortfolioPeriod, error) {
	if err := m.fail("portfolio"); err != nil {
		return nil, err
	}
	return m.Periods, nil
}

func (m *MockFetcher) OpenOrders(context.Context, string) ([]hyperliquid.OpenOrder, error) {
	if err := m.fail("openOrders"); err != nil {
		return nil, err
	}
	return m.Orders, nil
}

func (m *MockFetcher) FetchAllFills(_ context.Context, _ string, start int64, _ *int64, _ int) ([]hyperliquid.Fill, error) {
	if err := m.fail("userFillsByTime"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.fillStart = start
	m.mu.Unlock()
	return m.Fills, nil
}

// LastFillStart returns the start cursor of the most recent FetchAllFills call.
func (m *MockFetcher) LastFillStart() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fillStart
}

func (m *MockFetcher) FetchAllFunding(context.Context, string, int64, *int64, int) ([]hyperliquid.UserFunding, error) {
	if err := m.fail("userFunding"); err != nil {
		return nil, err
	}
	return m.Funding, nil
}
