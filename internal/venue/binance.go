package venue

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"crossarb/pkg/ratelimit"
)

const (
	binanceDefaultRestURL = "https://api.binance.com"
	binanceDefaultWSURL   = "wss://stream.binance.com:9443/ws"
	binanceRecvWindow     = "5000"
)

// Binance реализует интерфейс Venue для биржи Binance (spot)
type Binance struct {
	apiKey    string
	secretKey string

	restURL string
	wsURL   string

	httpClient *HTTPClient
	limiter    *ratelimit.RateLimiter
	logger     *zap.Logger

	// WebSocket manager с автоматическим переподключением
	wsManager *WSReconnectManager
	wsOnce    sync.Once

	// Callbacks по верхнерегистровому символу (BTCUSDT)
	quoteCallbacks map[string]func(*Quote)
	callbackMu     sync.RWMutex

	connected bool
}

// NewBinance создаёт новый экземпляр Binance.
// Пустые URL заменяются продакшн-эндпоинтами. HTTP клиент и rate limiter
// создаются на экземпляр, глобального состояния нет.
func NewBinance(restURL, wsURL string, logger *zap.Logger) *Binance {
	if restURL == "" {
		restURL = binanceDefaultRestURL
	}
	if wsURL == "" {
		wsURL = binanceDefaultWSURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Binance{
		restURL:        restURL,
		wsURL:          wsURL,
		httpClient:     NewHTTPClient(DefaultHTTPClientConfig()),
		limiter:        ratelimit.NewRateLimiter(20, 40), // spot REST: 20 req/sec с запасом
		logger:         logger.With(zap.String("venue", "binance")),
		quoteCallbacks: make(map[string]func(*Quote)),
	}
}

// sign создаёт подпись запроса: HMAC-SHA256 от query string
func (b *Binance) sign(payload string) string {
	h := hmac.New(sha256.New, []byte(b.secretKey))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// doRequest выполняет HTTP запрос к Binance API
func (b *Binance) doRequest(ctx context.Context, method, endpoint string, params map[string]string, signed bool) ([]byte, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}

	if signed {
		query.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		query.Set("recvWindow", binanceRecvWindow)
		query.Set("signature", b.sign(query.Encode()))
	}

	reqURL := b.restURL + endpoint
	if encoded := query.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, err
	}

	if signed {
		req.Header.Set("X-MBX-APIKEY", b.apiKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// Ошибки Binance приходят с кодом {-1013, "Filter failure"} и не-2xx статусом
	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if err := json.Unmarshal(body, &errResp); err != nil || errResp.Msg == "" {
			return nil, &VenueError{
				Venue:   "binance",
				Code:    strconv.Itoa(resp.StatusCode),
				Message: fmt.Sprintf("http %d", resp.StatusCode),
			}
		}
		return nil, &VenueError{
			Venue:   "binance",
			Code:    strconv.Itoa(errResp.Code),
			Message: errResp.Msg,
		}
	}

	return body, nil
}

func (b *Binance) Connect(apiKey, secret, passphrase string) error {
	b.apiKey = apiKey
	b.secretKey = secret

	// Проверяем доступность REST API
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := b.doRequest(ctx, http.MethodGet, "/api/v3/ping", nil, false); err != nil {
		return fmt.Errorf("failed to connect to Binance: %w", err)
	}

	b.connected = true
	return nil
}

func (b *Binance) Name() string {
	return "binance"
}

func (b *Binance) ListInstruments(ctx context.Context) ([]Instrument, error) {
	body, err := b.doRequest(ctx, http.MethodGet, "/api/v3/exchangeInfo", nil, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Symbols []struct {
			Symbol     string `json:"symbol"`
			Status     string `json:"status"`
			BaseAsset  string `json:"baseAsset"`
			QuoteAsset string `json:"quoteAsset"`
		} `json:"symbols"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	instruments := make([]Instrument, 0, len(resp.Symbols))
	for _, s := range resp.Symbols {
		instruments = append(instruments, Instrument{
			Symbol: s.Symbol,
			Base:   s.BaseAsset,
			Quote:  s.QuoteAsset,
			Active: s.Status == "TRADING",
		})
	}

	return instruments, nil
}

func (b *Binance) FetchQuote(ctx context.Context, symbol string) (*Quote, error) {
	params := map[string]string{"symbol": symbol}

	body, err := b.doRequest(ctx, http.MethodGet, "/api/v3/ticker/bookTicker", params, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Symbol   string `json:"symbol"`
		BidPrice string `json:"bidPrice"`
		AskPrice string `json:"askPrice"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	bid, _ := strconv.ParseFloat(resp.BidPrice, 64)
	ask, _ := strconv.ParseFloat(resp.AskPrice, 64)

	return &Quote{
		Venue:     "binance",
		Symbol:    resp.Symbol,
		Bid:       bid,
		Ask:       ask,
		Timestamp: time.Now(),
	}, nil
}

// binanceBookTicker - сообщение потока <symbol>@bookTicker
type binanceBookTicker struct {
	UpdateID int64  `json:"u"`
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

func (b *Binance) SubscribeQuotes(symbols []string, callback func(*Quote)) error {
	if len(symbols) == 0 {
		return nil
	}

	b.initWS()

	b.callbackMu.Lock()
	for _, s := range symbols {
		b.quoteCallbacks[strings.ToUpper(s)] = callback
	}
	b.callbackMu.Unlock()

	params := make([]string, 0, len(symbols))
	for _, s := range symbols {
		params = append(params, strings.ToLower(s)+"@bookTicker")
	}

	sub := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     time.Now().UnixNano(),
	}

	// Регистрируем до отправки: при разрыве подписка восстановится сама
	b.wsManager.AddSubscription(sub)

	return b.wsManager.Send(sub)
}

// initWS лениво устанавливает WebSocket соединение
func (b *Binance) initWS() {
	b.wsOnce.Do(func() {
		b.wsManager = NewWSReconnectManager("binance", b.wsURL, DefaultWSReconnectConfig(), b.logger)
		b.wsManager.SetOnMessage(b.handleWSMessage)
		if err := b.wsManager.Connect(); err != nil {
			b.logger.Error("initial WebSocket connect failed", zap.Error(err))
			// Первый dial не удался: reconnectLoop ещё не запущен,
			// повторяем подключение сами
			go func() {
				for b.wsManager.GetState() != WSStateClosed {
					time.Sleep(2 * time.Second)
					if err := b.wsManager.Connect(); err == nil {
						return
					}
				}
			}()
		}
	})
}

// handleWSMessage разбирает тик и передаёт его подписчику
func (b *Binance) handleWSMessage(message []byte) {
	var tick binanceBookTicker
	if err := json.Unmarshal(message, &tick); err != nil || tick.Symbol == "" {
		return // служебное сообщение (ответ на SUBSCRIBE и т.п.)
	}

	bid, err1 := strconv.ParseFloat(tick.BidPrice, 64)
	ask, err2 := strconv.ParseFloat(tick.AskPrice, 64)
	if err1 != nil || err2 != nil {
		return
	}

	b.callbackMu.RLock()
	callback := b.quoteCallbacks[tick.Symbol]
	b.callbackMu.RUnlock()

	if callback != nil {
		callback(&Quote{
			Venue:     "binance",
			Symbol:    tick.Symbol,
			Bid:       bid,
			Ask:       ask,
			Timestamp: time.Now(),
		})
	}
}

func (b *Binance) PlaceMarketOrder(ctx context.Context, symbol, side string, qty float64) (*Order, error) {
	params := map[string]string{
		"symbol":           symbol,
		"side":             binanceSide(side),
		"type":             "MARKET",
		"quantity":         strconv.FormatFloat(qty, 'f', -1, 64),
		"newOrderRespType": "FULL",
	}

	body, err := b.doRequest(ctx, http.MethodPost, "/api/v3/order", params, true)
	if err != nil {
		return nil, err
	}

	return b.parseOrderResponse(body, symbol, side, OrderTypeMarket, qty, 0)
}

func (b *Binance) PlaceLimitOrder(ctx context.Context, symbol, side string, qty, price float64) (*Order, error) {
	params := map[string]string{
		"symbol":           symbol,
		"side":             binanceSide(side),
		"type":             "LIMIT",
		"timeInForce":      "GTC",
		"quantity":         strconv.FormatFloat(qty, 'f', -1, 64),
		"price":            strconv.FormatFloat(price, 'f', -1, 64),
		"newOrderRespType": "FULL",
	}

	body, err := b.doRequest(ctx, http.MethodPost, "/api/v3/order", params, true)
	if err != nil {
		return nil, err
	}

	return b.parseOrderResponse(body, symbol, side, OrderTypeLimit, qty, price)
}

// parseOrderResponse разбирает ответ на размещение ордера
func (b *Binance) parseOrderResponse(body []byte, symbol, side, orderType string, qty, price float64) (*Order, error) {
	var resp struct {
		OrderID             int64  `json:"orderId"`
		Status              string `json:"status"`
		ExecutedQty         string `json:"executedQty"`
		CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	filledQty, _ := strconv.ParseFloat(resp.ExecutedQty, 64)
	quoteQty, _ := strconv.ParseFloat(resp.CummulativeQuoteQty, 64)

	order := &Order{
		ID:        strconv.FormatInt(resp.OrderID, 10),
		Symbol:    symbol,
		Side:      side,
		Type:      orderType,
		Quantity:  qty,
		Price:     price,
		FilledQty: filledQty,
		Status:    mapBinanceStatus(resp.Status),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if filledQty > 0 {
		order.AvgFillPrice = quoteQty / filledQty
	}

	return order, nil
}

func (b *Binance) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := map[string]string{
		"symbol":  symbol,
		"orderId": orderID,
	}

	_, err := b.doRequest(ctx, http.MethodDelete, "/api/v3/order", params, true)
	return err
}

func (b *Binance) FetchOrderStatus(ctx context.Context, symbol, orderID string) (*Order, error) {
	params := map[string]string{
		"symbol":  symbol,
		"orderId": orderID,
	}

	body, err := b.doRequest(ctx, http.MethodGet, "/api/v3/order", params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		OrderID             int64  `json:"orderId"`
		Status              string `json:"status"`
		Side                string `json:"side"`
		Type                string `json:"type"`
		OrigQty             string `json:"origQty"`
		Price               string `json:"price"`
		ExecutedQty         string `json:"executedQty"`
		CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
		Time                int64  `json:"time"`
		UpdateTime          int64  `json:"updateTime"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	qty, _ := strconv.ParseFloat(resp.OrigQty, 64)
	price, _ := strconv.ParseFloat(resp.Price, 64)
	filledQty, _ := strconv.ParseFloat(resp.ExecutedQty, 64)
	quoteQty, _ := strconv.ParseFloat(resp.CummulativeQuoteQty, 64)

	order := &Order{
		ID:        strconv.FormatInt(resp.OrderID, 10),
		Symbol:    symbol,
		Side:      strings.ToLower(resp.Side),
		Type:      strings.ToLower(resp.Type),
		Quantity:  qty,
		Price:     price,
		FilledQty: filledQty,
		Status:    mapBinanceStatus(resp.Status),
		CreatedAt: time.UnixMilli(resp.Time),
		UpdatedAt: time.UnixMilli(resp.UpdateTime),
	}

	if filledQty > 0 {
		order.AvgFillPrice = quoteQty / filledQty
	}

	return order, nil
}

func (b *Binance) Close() error {
	if b.wsManager != nil {
		b.wsManager.Close()
	}
	b.httpClient.Close()
	return nil
}

// binanceSide конвертирует сторону в формат Binance
func binanceSide(side string) string {
	if side == SideSell {
		return "SELL"
	}
	return "BUY"
}

// mapBinanceStatus конвертирует статус ордера Binance в унифицированный
func mapBinanceStatus(status string) string {
	switch status {
	case "NEW":
		return OrderStatusNew
	case "PARTIALLY_FILLED":
		return OrderStatusPartial
	case "FILLED":
		return OrderStatusFilled
	case "CANCELED", "EXPIRED":
		return OrderStatusCancelled
	case "REJECTED":
		return OrderStatusRejected
	default:
		return OrderStatusNew
	}
}
