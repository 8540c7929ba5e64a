package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tikiti/internal/config"
	"tikiti/internal/logger"
)

// PaymentGateway initiates a mobile-money charge. Settlement arrives
// later through the asynchronous callback, never through this call.
type PaymentGateway interface {
	Initiate(ctx context.Context, phone string, amount int64, reference, description string) (*CheckoutResponse, error)
}

type CheckoutResponse struct {
	CheckoutID   string `json:"CheckoutRequestID"`
	ResponseCode string `json:"ResponseCode"`
	ResponseDesc string `json:"ResponseDescription"`
}

// Daraja is the STK-push client for the Safaricom mobile-money API.
type Daraja struct {
	cfg    config.DarajaConfig
	client *http.Client
	logger *logger.Logger
	now    func() time.Time
}

func NewDaraja(cfg config.DarajaConfig, client *http.Client, log *logger.Logger) *Daraja {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Daraja{cfg: cfg, client: client, logger: log, now: time.Now}
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// Initiate fires an STK push. The reference travels as AccountReference
// and is echoed back in the settlement callback, which is what lets the
// reconciler find the purchase even if this call's response is lost.
func (d *Daraja) Initiate(ctx context.Context, phone string, amount int64, reference, description string) (*CheckoutResponse, error) {
	accessToken, err := d.fetchAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("daraja auth: %w", err)
	}

	timestamp := d.now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString(
		[]byte(d.cfg.ShortCode + d.cfg.Passkey + timestamp))

	reqBody := stkPushRequest{
		BusinessShortCode: d.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            amount,
		PartyA:            phone,
		PartyB:            d.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       d.cfg.CallbackURL,
		AccountReference:  reference,
		TransactionDesc:   description,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		d.cfg.BaseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stk push request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stk push failed: status %d", resp.StatusCode)
	}

	var checkout CheckoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&checkout); err != nil {
		return nil, fmt.Errorf("decode stk push response: %w", err)
	}

	d.logger.Info("GATEWAY", fmt.Sprintf("STK push initiated, reference=%s checkout=%s", reference, checkout.CheckoutID))
	return &checkout, nil
}

func (d *Daraja) fetchAccessToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		d.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(d.cfg.ConsumerKey, d.cfg.ConsumerSecret)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request failed: status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.AccessToken, nil
}
