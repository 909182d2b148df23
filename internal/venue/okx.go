package venue

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
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
	okxDefaultRestURL = "https://www.okx.com"
	okxDefaultWSURL   = "wss://ws.okx.com:8443/ws/v5/public"
)

// OKX реализует интерфейс Venue для биржи OKX (spot + swap для хедж-ноги)
type OKX struct {
	apiKey     string
	secretKey  string
	passphrase string

	restURL string
	wsURL   string

	httpClient *HTTPClient
	limiter    *ratelimit.RateLimiter
	logger     *zap.Logger

	wsManager *WSReconnectManager
	wsOnce    sync.Once

	// Callbacks по instId (BTC-USDT)
	quoteCallbacks map[string]func(*Quote)
	callbackMu     sync.RWMutex

	connected bool
}

// NewOKX создаёт новый экземпляр OKX
func NewOKX(restURL, wsURL string, logger *zap.Logger) *OKX {
	if restURL == "" {
		restURL = okxDefaultRestURL
	}
	if wsURL == "" {
		wsURL = okxDefaultWSURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OKX{
		restURL:        restURL,
		wsURL:          wsURL,
		httpClient:     NewHTTPClient(DefaultHTTPClientConfig()),
		limiter:        ratelimit.NewRateLimiter(20, 40),
		logger:         logger.With(zap.String("venue", "okx")),
		quoteCallbacks: make(map[string]func(*Quote)),
	}
}

// sign создаёт подпись OKX v5: Base64(HMAC-SHA256(timestamp + method + path + body))
func (o *OKX) sign(timestamp, method, path, body string) string {
	h := hmac.New(sha256.New, []byte(o.secretKey))
	h.Write([]byte(timestamp + method + path + body))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// doRequest выполняет HTTP запрос к OKX API v5
func (o *OKX) doRequest(ctx context.Context, method, endpoint string, params map[string]string, signed bool) ([]byte, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reqBody string
	requestPath := endpoint

	if method == http.MethodGet {
		query := url.Values{}
		for k, v := range params {
			query.Set(k, v)
		}
		if encoded := query.Encode(); encoded != "" {
			requestPath = endpoint + "?" + encoded
		}
	} else if len(params) > 0 {
		jsonBytes, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		reqBody = string(jsonBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, o.restURL+requestPath, bytes.NewBufferString(reqBody))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	if signed {
		timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
		req.Header.Set("OK-ACCESS-KEY", o.apiKey)
		req.Header.Set("OK-ACCESS-SIGN", o.sign(timestamp, method, requestPath, reqBody))
		req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
		req.Header.Set("OK-ACCESS-PASSPHRASE", o.passphrase)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// Проверяем базовый ответ: code != "0" означает ошибку
	var baseResp struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &baseResp); err != nil {
		return nil, err
	}

	if baseResp.Code != "0" {
		return nil, &VenueError{
			Venue:   "okx",
			Code:    baseResp.Code,
			Message: baseResp.Msg,
		}
	}

	return body, nil
}

func (o *OKX) Connect(apiKey, secret, passphrase string) error {
	o.apiKey = apiKey
	o.secretKey = secret
	o.passphrase = passphrase

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	params := map[string]string{"instType": "SPOT", "instId": "BTC-USDT"}
	if _, err := o.doRequest(ctx, http.MethodGet, "/api/v5/public/instruments", params, false); err != nil {
		return fmt.Errorf("failed to connect to OKX: %w", err)
	}

	o.connected = true
	return nil
}

func (o *OKX) Name() string {
	return "okx"
}

func (o *OKX) ListInstruments(ctx context.Context) ([]Instrument, error) {
	params := map[string]string{"instType": "SPOT"}

	body, err := o.doRequest(ctx, http.MethodGet, "/api/v5/public/instruments", params, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			InstID   string `json:"instId"`
			BaseCcy  string `json:"baseCcy"`
			QuoteCcy string `json:"quoteCcy"`
			State    string `json:"state"`
		} `json:"data"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	instruments := make([]Instrument, 0, len(resp.Data))
	for _, inst := range resp.Data {
		instruments = append(instruments, Instrument{
			Symbol: inst.InstID,
			Base:   inst.BaseCcy,
			Quote:  inst.QuoteCcy,
			Active: inst.State == "live",
		})
	}

	return instruments, nil
}

func (o *OKX) FetchQuote(ctx context.Context, symbol string) (*Quote, error) {
	params := map[string]string{"instId": symbol}

	body, err := o.doRequest(ctx, http.MethodGet, "/api/v5/market/ticker", params, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			InstID string `json:"instId"`
			BidPx  string `json:"bidPx"`
			AskPx  string `json:"askPx"`
			Last   string `json:"last"`
			Ts     string `json:"ts"`
		} `json:"data"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("ticker not found for %s", symbol)
	}

	t := resp.Data[0]
	bid, _ := strconv.ParseFloat(t.BidPx, 64)
	ask, _ := strconv.ParseFloat(t.AskPx, 64)
	last, _ := strconv.ParseFloat(t.Last, 64)
	ts, _ := strconv.ParseInt(t.Ts, 10, 64)

	return &Quote{
		Venue:     "okx",
		Symbol:    t.InstID,
		Bid:       bid,
		Ask:       ask,
		Last:      last,
		Timestamp: time.UnixMilli(ts),
	}, nil
}

// okxTickerMsg - сообщение канала tickers
type okxTickerMsg struct {
	Arg struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data []struct {
		InstID string `json:"instId"`
		BidPx  string `json:"bidPx"`
		AskPx  string `json:"askPx"`
		Last   string `json:"last"`
		Ts     string `json:"ts"`
	} `json:"data"`
}

func (o *OKX) SubscribeQuotes(symbols []string, callback func(*Quote)) error {
	if len(symbols) == 0 {
		return nil
	}

	o.initWS()

	o.callbackMu.Lock()
	for _, s := range symbols {
		o.quoteCallbacks[s] = callback
	}
	o.callbackMu.Unlock()

	args := make([]map[string]string, 0, len(symbols))
	for _, s := range symbols {
		args = append(args, map[string]string{
			"channel": "tickers",
			"instId":  s,
		})
	}

	sub := map[string]interface{}{
		"op":   "subscribe",
		"args": args,
	}

	o.wsManager.AddSubscription(sub)

	return o.wsManager.Send(sub)
}

func (o *OKX) initWS() {
	o.wsOnce.Do(func() {
		o.wsManager = NewWSReconnectManager("okx", o.wsURL, DefaultWSReconnectConfig(), o.logger)
		o.wsManager.SetOnMessage(o.handleWSMessage)
		if err := o.wsManager.Connect(); err != nil {
			o.logger.Error("initial WebSocket connect failed", zap.Error(err))
			go func() {
				for o.wsManager.GetState() != WSStateClosed {
					time.Sleep(2 * time.Second)
					if err := o.wsManager.Connect(); err == nil {
						return
					}
				}
			}()
		}
	})
}

func (o *OKX) handleWSMessage(message []byte) {
	var msg okxTickerMsg
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}
	if msg.Arg.Channel != "tickers" || len(msg.Data) == 0 {
		return // ответ на subscribe, pong и т.п.
	}

	for _, d := range msg.Data {
		bid, err1 := strconv.ParseFloat(d.BidPx, 64)
		ask, err2 := strconv.ParseFloat(d.AskPx, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		last, _ := strconv.ParseFloat(d.Last, 64)
		ts, _ := strconv.ParseInt(d.Ts, 10, 64)

		o.callbackMu.RLock()
		callback := o.quoteCallbacks[d.InstID]
		o.callbackMu.RUnlock()

		if callback != nil {
			callback(&Quote{
				Venue:     "okx",
				Symbol:    d.InstID,
				Bid:       bid,
				Ask:       ask,
				Last:      last,
				Timestamp: time.UnixMilli(ts),
			})
		}
	}
}

func (o *OKX) PlaceMarketOrder(ctx context.Context, symbol, side string, qty float64) (*Order, error) {
	params := map[string]string{
		"instId":  symbol,
		"tdMode":  okxTradeMode(symbol),
		"side":    side,
		"ordType": "market",
		"sz":      strconv.FormatFloat(qty, 'f', -1, 64),
	}
	// Для спотового market buy размер по умолчанию в котируемой валюте,
	// выравниваем на базовую
	if side == SideBuy && !isSwap(symbol) {
		params["tgtCcy"] = "base_ccy"
	}

	return o.placeOrder(ctx, symbol, side, OrderTypeMarket, qty, 0, params)
}

func (o *OKX) PlaceLimitOrder(ctx context.Context, symbol, side string, qty, price float64) (*Order, error) {
	params := map[string]string{
		"instId":  symbol,
		"tdMode":  okxTradeMode(symbol),
		"side":    side,
		"ordType": "limit",
		"sz":      strconv.FormatFloat(qty, 'f', -1, 64),
		"px":      strconv.FormatFloat(price, 'f', -1, 64),
	}

	return o.placeOrder(ctx, symbol, side, OrderTypeLimit, qty, price, params)
}

func (o *OKX) placeOrder(ctx context.Context, symbol, side, orderType string, qty, price float64, params map[string]string) (*Order, error) {
	body, err := o.doRequest(ctx, http.MethodPost, "/api/v5/trade/order", params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			OrdID string `json:"ordId"`
			SCode string `json:"sCode"`
			SMsg  string `json:"sMsg"`
		} `json:"data"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("empty order response")
	}

	// Ошибки размещения приходят внутри data при code == "0"
	if resp.Data[0].SCode != "" && resp.Data[0].SCode != "0" {
		return nil, &VenueError{
			Venue:   "okx",
			Code:    resp.Data[0].SCode,
			Message: resp.Data[0].SMsg,
		}
	}

	order := &Order{
		ID:        resp.Data[0].OrdID,
		Symbol:    symbol,
		Side:      side,
		Type:      orderType,
		Quantity:  qty,
		Price:     price,
		Status:    OrderStatusNew,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	// Подтягиваем исполнение: market ордер обычно исполняется сразу
	if current, err := o.FetchOrderStatus(ctx, symbol, order.ID); err == nil {
		return current, nil
	}

	return order, nil
}

func (o *OKX) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := map[string]string{
		"instId": symbol,
		"ordId":  orderID,
	}

	body, err := o.doRequest(ctx, http.MethodPost, "/api/v5/trade/cancel-order", params, true)
	if err != nil {
		return err
	}

	var resp struct {
		Data []struct {
			SCode string `json:"sCode"`
			SMsg  string `json:"sMsg"`
		} `json:"data"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return err
	}

	if len(resp.Data) > 0 && resp.Data[0].SCode != "0" {
		return &VenueError{
			Venue:   "okx",
			Code:    resp.Data[0].SCode,
			Message: resp.Data[0].SMsg,
		}
	}

	return nil
}

func (o *OKX) FetchOrderStatus(ctx context.Context, symbol, orderID string) (*Order, error) {
	params := map[string]string{
		"instId": symbol,
		"ordId":  orderID,
	}

	body, err := o.doRequest(ctx, http.MethodGet, "/api/v5/trade/order", params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			OrdID     string `json:"ordId"`
			State     string `json:"state"`
			Side      string `json:"side"`
			OrdType   string `json:"ordType"`
			Sz        string `json:"sz"`
			Px        string `json:"px"`
			AccFillSz string `json:"accFillSz"`
			AvgPx     string `json:"avgPx"`
			CTime     string `json:"cTime"`
			UTime     string `json:"uTime"`
		} `json:"data"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("order %s not found", orderID)
	}

	d := resp.Data[0]
	qty, _ := strconv.ParseFloat(d.Sz, 64)
	price, _ := strconv.ParseFloat(d.Px, 64)
	filledQty, _ := strconv.ParseFloat(d.AccFillSz, 64)
	avgPrice, _ := strconv.ParseFloat(d.AvgPx, 64)
	cTime, _ := strconv.ParseInt(d.CTime, 10, 64)
	uTime, _ := strconv.ParseInt(d.UTime, 10, 64)

	return &Order{
		ID:           d.OrdID,
		Symbol:       symbol,
		Side:         d.Side,
		Type:         d.OrdType,
		Quantity:     qty,
		Price:        price,
		FilledQty:    filledQty,
		AvgFillPrice: avgPrice,
		Status:       mapOKXStatus(d.State),
		CreatedAt:    time.UnixMilli(cTime),
		UpdatedAt:    time.UnixMilli(uTime),
	}, nil
}

func (o *OKX) Close() error {
	if o.wsManager != nil {
		o.wsManager.Close()
	}
	o.httpClient.Close()
	return nil
}

// isSwap определяет контрактный инструмент по суффиксу instId
func isSwap(symbol string) bool {
	return strings.HasSuffix(symbol, "-SWAP")
}

// okxTradeMode возвращает режим торговли: cash для спота, cross для контрактов
func okxTradeMode(symbol string) string {
	if isSwap(symbol) {
		return "cross"
	}
	return "cash"
}

// mapOKXStatus конвертирует статус ордера OKX в унифицированный
func mapOKXStatus(state string) string {
	switch state {
	case "live":
		return OrderStatusNew
	case "partially_filled":
		return OrderStatusPartial
	case "filled":
		return OrderStatusFilled
	case "canceled", "mmp_canceled":
		return OrderStatusCancelled
	default:
		return OrderStatusNew
	}
}
