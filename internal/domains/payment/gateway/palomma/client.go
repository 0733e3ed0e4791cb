package palomma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"licensify-backend/internal/config"
	"licensify-backend/internal/domains/payment/gateway"
	"licensify-backend/internal/domains/payment/model"
	"licensify-backend/internal/infrastructure/cache"
	"licensify-backend/internal/shared/utils"
	"licensify-backend/pkg/logger"
)

// Field length limits enforced by the checkout API.
const (
	maxCheckoutHeader = 30
	maxCheckoutItem   = 40
	maxDescription    = 40
)

// defaultRails are the payment methods offered on every checkout.
var defaultRails = []string{"pse", "bancolombia_transfer", "nequi"}

// bogota is the provider's reference timezone for external ids.
var bogota = func() *time.Location {
	loc, err := time.LoadLocation("America/Bogota")
	if err != nil {
		return time.FixedZone("COT", -5*3600)
	}
	return loc
}()

// BuildExternalID produces the standardized checkout reference:
// <productRef>-palomma-<orderId>-<YYYY-MM-DD-HHMM> in Bogota time.
func BuildExternalID(productRef string, orderID uuid.UUID, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s-%s",
		productRef,
		model.ProviderPalomma,
		orderID.String(),
		now.In(bogota).Format("2006-01-02-1504"),
	)
}

// Client talks to the checkout API. The auth token and the merchant
// account id are cached in-process; checkout status lookups go through
// a short Redis cache with a per-checkout rate limit behind it.
type Client struct {
	cfg           config.PalommaConfig
	httpClient    *http.Client
	statusCache   *cache.RedisClient
	limiter       *cache.RateLimiter
	statusTTL     time.Duration
	refreshMargin time.Duration

	mu        sync.Mutex
	token     string
	tokenExp  time.Time
	accountID string
}

func NewClient(cfg config.PalommaConfig, jobs config.JobConfig, statusCache *cache.RedisClient, limiter *cache.RateLimiter) *Client {
	return &Client{
		cfg:           cfg,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		statusCache:   statusCache,
		limiter:       limiter,
		statusTTL:     jobs.StatusCacheTTL,
		refreshMargin: jobs.TokenRefreshMargin,
	}
}

func (c *Client) Provider() string {
	return model.ProviderPalomma
}

// =====================================================
// AUTH
// =====================================================

type authResponse struct {
	AccessToken    string `json:"access_token"`
	ExpirationTime int64  `json:"expiration_time"`
}

// accessToken returns a cached token, refreshing when it is inside the
// expiry margin.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Add(c.refreshMargin).Before(c.tokenExp) {
		return c.token, nil
	}

	body, err := json.Marshal(map[string]string{
		"user_id": c.cfg.UserID,
		"secret":  c.cfg.Secret,
	})
	if err != nil {
		return "", err
	}

	var resp authResponse
	if err := c.do(ctx, http.MethodPost, "/v1/auth", "", bytes.NewReader(body), &resp); err != nil {
		return "", fmt.Errorf("auth request failed: %w", err)
	}

	c.token = resp.AccessToken
	c.tokenExp = time.Now().Add(time.Duration(resp.ExpirationTime) * time.Second)

	logger.Debug("Provider token refreshed", map[string]interface{}{
		"provider":   model.ProviderPalomma,
		"expires_at": c.tokenExp.Format(time.RFC3339),
	})

	return c.token, nil
}

// =====================================================
// ACCOUNT (lazy init)
// =====================================================

type accountResponse struct {
	ID    string `json:"id"`
	Alias string `json:"alias"`
}

// destinationAccount resolves the merchant account by alias, creating
// it on first use. The id is cached for the process lifetime.
func (c *Client) destinationAccount(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.accountID != "" {
		defer c.mu.Unlock()
		return c.accountID, nil
	}
	c.mu.Unlock()

	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}

	var list struct {
		Accounts []accountResponse `json:"accounts"`
	}
	path := "/v1/accounts?alias=" + c.cfg.AccountAlias
	if err := c.do(ctx, http.MethodGet, path, token, nil, &list); err != nil {
		return "", fmt.Errorf("account lookup failed: %w", err)
	}

	var account accountResponse
	if len(list.Accounts) > 0 {
		account = list.Accounts[0]
	} else {
		body, _ := json.Marshal(map[string]string{"alias": c.cfg.AccountAlias})
		if err := c.do(ctx, http.MethodPost, "/v1/accounts", token, bytes.NewReader(body), &account); err != nil {
			return "", fmt.Errorf("account creation failed: %w", err)
		}
		logger.Info("Provider account created", map[string]interface{}{
			"provider": model.ProviderPalomma,
			"alias":    c.cfg.AccountAlias,
		})
	}

	c.mu.Lock()
	c.accountID = account.ID
	c.mu.Unlock()

	return account.ID, nil
}

// =====================================================
// CHECKOUT
// =====================================================

type checkoutResponse struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"checkout_url"`
	ValidUntil  string `json:"valid_until"`
}

func (c *Client) CreateCheckout(ctx context.Context, req *gateway.CheckoutRequest) (*gateway.Checkout, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	destination, err := c.destinationAccount(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"alias":                       c.cfg.AccountAlias,
		"amount":                      req.Amount,
		"external_id":                 req.ExternalID,
		"destination_id":              destination,
		"checkout_rails":              defaultRails,
		"checkout_header":             utils.SanitizeCheckoutText(req.Description, maxCheckoutHeader),
		"checkout_item":               utils.SanitizeCheckoutText(req.Description, maxCheckoutItem),
		"description_to_payee":        utils.SanitizeCheckoutText(req.Description, maxDescription),
		"valid_until":                 time.Now().Add(c.cfg.CheckoutTTL).Format(time.RFC3339),
		"money_movement_intent_limit": 1,
		"redirect_url":                c.redirectURL(req),
		"metadata": map[string]string{
			"uniqueTransactionId": req.ExternalID,
			"customerEmail":       req.CustomerEmail,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var resp checkoutResponse
	if err := c.do(ctx, http.MethodPost, "/v1/checkouts", token, bytes.NewReader(body), &resp); err != nil {
		return nil, model.NewPaymentError(model.ErrCodeGatewayFailure, "Checkout creation failed", err)
	}

	return &gateway.Checkout{
		ID:          resp.ID,
		RedirectURL: resp.CheckoutURL,
		ExpiresAt:   resp.ValidUntil,
	}, nil
}

func (c *Client) redirectURL(req *gateway.CheckoutRequest) string {
	if req.RedirectURL != "" {
		return req.RedirectURL
	}
	return c.cfg.RedirectURL
}

// =====================================================
// STATUS
// =====================================================

type moneyMovement struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type checkoutStatusResponse struct {
	ID             string          `json:"id"`
	ExternalID     string          `json:"external_id"`
	Status         string          `json:"status"`
	Amount         int64           `json:"amount"`
	Currency       string          `json:"currency"`
	MoneyMovements []moneyMovement `json:"money_movements"`
}

func (c *Client) FetchStatus(ctx context.Context, checkoutID string, bypassCache bool) (*gateway.StatusResult, error) {
	cacheKey := "palomma:status:" + checkoutID

	if !bypassCache {
		if cached, err := c.statusCache.Get(ctx, cacheKey); err == nil && cached != "" {
			var result gateway.StatusResult
			if err := json.Unmarshal([]byte(cached), &result); err == nil {
				result.FromCache = true
				return &result, nil
			}
		}
	}

	allowed, err := c.limiter.Allow(ctx, "palomma:"+checkoutID)
	if err != nil {
		logger.Warn("Rate limiter unavailable, allowing request", map[string]interface{}{
			"checkout_id": checkoutID,
		})
	} else if !allowed {
		return nil, model.NewPaymentError(model.ErrCodeRateLimited, "Status polling rate limit reached for checkout "+checkoutID, model.ErrRateLimited)
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var resp checkoutStatusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/checkouts/"+checkoutID, token, nil, &resp); err != nil {
		return nil, model.NewPaymentError(model.ErrCodeGatewayFailure, "Checkout status fetch failed", err)
	}

	rawStatus := resp.Status
	// A money movement carries the authoritative payment status once
	// the customer has interacted with the checkout.
	if len(resp.MoneyMovements) > 0 {
		var mm checkoutStatusResponse
		path := "/v1/money_movements/" + resp.MoneyMovements[len(resp.MoneyMovements)-1].ID
		if err := c.do(ctx, http.MethodGet, path, token, nil, &mm); err == nil && mm.Status != "" {
			rawStatus = mm.Status
		}
	}

	status, ok := statusMap[strings.ToLower(rawStatus)]
	if !ok {
		status = model.TxStatusFailed
	}

	result := &gateway.StatusResult{
		Status:     status,
		RawStatus:  rawStatus,
		ExternalID: resp.ExternalID,
		Amount:     resp.Amount,
		Currency:   strings.ToUpper(resp.Currency),
	}

	if encoded, err := json.Marshal(result); err == nil {
		if err := c.statusCache.SetTTL(ctx, cacheKey, string(encoded), c.statusTTL); err != nil {
			logger.Warn("Status cache write failed", map[string]interface{}{
				"checkout_id": checkoutID,
			})
		}
	}

	return result, nil
}

// =====================================================
// HTTP PLUMBING
// =====================================================

func (c *Client) do(ctx context.Context, method, path, token string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s returned %d: %s", model.ErrGatewayUnavailable, path, resp.StatusCode, utils.TruncateString(string(data), 200))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("bad response from %s: %w", path, err)
		}
	}
	return nil
}
