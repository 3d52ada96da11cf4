package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ariefcatur/go-order-core.git/internal/orders"
)

type orderNotice struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	UserID      string `json:"user_id"`
	FinalAmount string `json:"final_amount"`
	Status      string `json:"status"`
}

// HTTPClient posts order notices to the external systems over plain HTTP.
type HTTPClient struct {
	endpoints map[Type]string
	hc        *http.Client
}

func NewHTTPClient(erpBaseURL, logisticsBaseURL string) *HTTPClient {
	return &HTTPClient{
		endpoints: map[Type]string{
			TypeERP:       erpBaseURL + "/orders",
			TypeLogistics: logisticsBaseURL + "/shipments",
		},
		hc: &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *HTTPClient) Notify(ctx context.Context, target Type, o orders.Order) error {
	url, ok := c.endpoints[target]
	if !ok {
		return fmt.Errorf("unknown integration target %s", target)
	}

	body, err := json.Marshal(orderNotice{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		FinalAmount: o.FinalAmount.String(),
		Status:      string(o.Status),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s notify: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s notify: unexpected status %d", target, resp.StatusCode)
	}
	return nil
}
