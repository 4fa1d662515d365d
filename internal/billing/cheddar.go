package billing

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// CheddarConfig holds CheddarGetter API settings
type CheddarConfig struct {
	BaseURL     string // e.g. https://getcheddar.com
	Username    string
	Password    string
	ProductCode string
	ItemCode    string // metered item holding thousand-character units
	Timeout     time.Duration
}

// Quantities are sent with three decimals
const cheddarQuantityTolerance = 0.0005

// CheddarProvider reports metered usage through the CheddarGetter XML API.
type CheddarProvider struct {
	config CheddarConfig
	client *http.Client
}

// NewCheddarProvider creates a CheddarGetter client
func NewCheddarProvider(config CheddarConfig) *CheddarProvider {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &CheddarProvider{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

func (p *CheddarProvider) Name() string {
	return "cheddar"
}

var _ UsageReader = (*CheddarProvider)(nil)

type cheddarItem struct {
	Code     string  `xml:"code,attr"`
	Quantity float64 `xml:"quantity"`
}

type cheddarSubscription struct {
	Items []cheddarItem `xml:"items>item"`
}

type cheddarCustomer struct {
	Code          string                `xml:"code,attr"`
	Subscriptions []cheddarSubscription `xml:"subscriptions>subscription"`
}

type cheddarCustomers struct {
	XMLName   xml.Name          `xml:"customers"`
	Customers []cheddarCustomer `xml:"customer"`
}

type cheddarError struct {
	XMLName xml.Name `xml:"error"`
	Code    string   `xml:"code,attr"`
	AuxCode string   `xml:"auxCode,attr"`
	Message string   `xml:",chardata"`
}

// ReportUsage adds to the customer's item quantity. The response carries the customer's
// subscriptions newest first; the item quantity of the current one is returned.
//
// CheddarGetter has no idempotency keys. A retried report first reads the item quantity
// and skips the add when it already includes the report.
func (p *CheddarProvider) ReportUsage(ctx context.Context, report UsageReport) (float64, error) {
	if report.Retry {
		current, err := p.CurrentUsage(ctx, report.CustomerCode)
		if err != nil {
			return 0, err
		}
		if current >= report.UsedBefore+report.ThousandChars-cheddarQuantityTolerance {
			return current, nil
		}
	}

	endpoint := p.endpoint("add-item-quantity", report.CustomerCode) + "/itemCode/" + url.PathEscape(p.config.ItemCode)

	form := url.Values{}
	form.Set("quantity", strconv.FormatFloat(report.ThousandChars, 'f', 3, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return p.do(req, report.CustomerCode)
}

// CurrentUsage reads the item quantity of the customer's current subscription
func (p *CheddarProvider) CurrentUsage(ctx context.Context, customerCode string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint("get", customerCode), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	return p.do(req, customerCode)
}

func (p *CheddarProvider) endpoint(action, customerCode string) string {
	return fmt.Sprintf("%s/xml/customers/%s/productCode/%s/code/%s",
		p.config.BaseURL,
		action,
		url.PathEscape(p.config.ProductCode),
		url.PathEscape(customerCode),
	)
}

func (p *CheddarProvider) do(req *http.Request, customerCode string) (float64, error) {
	req.SetBasicAuth(p.config.Username, p.config.Password)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read response: %w", ErrProviderUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		var cerr cheddarError
		if xml.Unmarshal(body, &cerr) == nil && cerr.Message != "" {
			return 0, fmt.Errorf("%w: cheddar error %s: %s", ErrProviderUnavailable, cerr.Code, strings.TrimSpace(cerr.Message))
		}
		return 0, fmt.Errorf("%w: cheddar returned status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var customers cheddarCustomers
	if err := xml.Unmarshal(body, &customers); err != nil {
		return 0, fmt.Errorf("failed to decode cheddar response: %w", err)
	}

	return p.usedToDate(customers, customerCode)
}

func (p *CheddarProvider) usedToDate(customers cheddarCustomers, customerCode string) (float64, error) {
	for _, c := range customers.Customers {
		if c.Code != customerCode || len(c.Subscriptions) == 0 {
			continue
		}
		for _, item := range c.Subscriptions[0].Items {
			if item.Code == p.config.ItemCode {
				return item.Quantity, nil
			}
		}
		return 0, fmt.Errorf("item %q missing from subscription of customer %s", p.config.ItemCode, customerCode)
	}
	return 0, fmt.Errorf("customer %s missing from cheddar response", customerCode)
}
