package hyperliquid

import "context"

// UserFills retrieves the most recent fills for a user.
func (c *Client) UserFills(ctx context.Context, user string) ([]Fill, error) {
	req := struct {
		Type string `json:"type"`
		User string `json:"user"`
	}{
		Type: "userFills",
		User: user,
	}
	var resp []Fill
	if err := c.sendInfo(ctx, req.Type, req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// UserFillsByTime retrieves one page of fills inside [start, end] (unix ms).
func (c *Client) UserFillsByTime(ctx context.Context, user string, start int64, end *int64, aggregate bool) ([]Fill, error) {
	req := struct {
		Type            string `json:"type"`
		User            string `json:"user"`
		StartTime       int64  `json:"startTime"`
		EndTime         *int64 `json:"endTime,omitempty"`
		AggregateByTime bool   `json:"aggregateByTime,omitempty"`
	}{
		Type:            "userFillsByTime",
		User:            user,
		StartTime:       start,
		EndTime:         end,
		AggregateByTime: aggregate,
	}
	var resp []Fill
	if err := c.sendInfo(ctx, req.Type, req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ClearinghouseState retrieves perpetual positions and margin for a user.
func (c *Client) ClearinghouseState(ctx context.Context, user string) (*ClearinghouseState, error) {
	req := struct {
		Type string `json:"type"`
		User string `json:"user"`
	}{
		Type: "clearinghouseState",
		User: user,
	}
	resp := new(ClearinghouseState)
	if err := c.sendInfo(ctx, req.Type, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// SpotClearinghouseState retrieves spot balances for a user.
func (c *Client) SpotClearinghouseState(ctx context.Context, user string) (*SpotClearinghouseState, error) {
	req := struct {
		Type string `json:"type"`
		User string `json:"user"`
	}{
		Type: "spotClearinghouseState",
		User: user,
	}
	resp := new(SpotClearinghouseState)
	if err := c.sendInfo(ctx, req.Type, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Portfolio retrieves account value and PnL history for every window.
func (c *Client) Portfolio(ctx context.Context, user string) ([]PortfolioPeriod, error) {
	req := struct {
		Type string `json:"type"`
		User string `json:"user"`
	}{
		Type: "portfolio",
		User: user,
	}
	var resp []PortfolioPeriod
	if err := c.sendInfo(ctx, req.Type, req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// AllMids retrieves mid prices for all coins.
func (c *Client) AllMids(ctx context.Context) (Mids, error) {
	req := struct {
		Type string `json:"type"`
	}{
		Type: "allMids",
	}
	var resp Mids
	if err := c.sendInfo(ctx, req.Type, req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// UserFunding retrieves one page of funding payments inside [start, end].
func (c *Client) UserFunding(ctx context.Context, user string, start int64, end *int64) ([]UserFunding, error) {
	req := struct {
		Type      string `json:"type"`
		User      string `json:"user"`
		StartTime int64  `json:"startTime"`
		EndTime   *int64 `json:"endTime,omitempty"`
	}{
		Type:      "userFunding",
		User:      user,
		StartTime: start,
		EndTime:   end,
	}
	var resp []UserFunding
	if err := c.sendInfo(ctx, req.Type, req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// FundingHistory retrieves historical funding rates for a coin.
func (c *Client) FundingHistory(ctx context.Context, coin string, start int64, end *int64) ([]FundingRate, error) {
	req := struct {
		Type      string `json:"type"`
		Coin      string `json:"coin"`
		StartTime int64  `json:"startTime"`
		EndTime   *int64 `json:"endTime,omitempty"`
	}{
		Type:      "fundingHistory",
		Coin:      coin,
		StartTime: start,
		EndTime:   end,
	}
	var resp []FundingRate
	if err := c.sendInfo(ctx, req.Type, req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// OpenOrders retrieves resting orders for a user.
func (c *Client) OpenOrders(ctx context.Context, user string) ([]OpenOrder, error) {
	req := struct {
		Type string `json:"type"`
		User string `json:"user"`
	}{
		Type: "openOrders",
		User: user,
	}
	var resp []OpenOrder
	if err := c.sendInfo(ctx, req.Type, req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}
