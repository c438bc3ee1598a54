package yookassa

import (
	"bytes"
	"context"
	"github.com/google/uuid"
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jwriter"
	"github.com/pkg/errors"
	"github.com/valyala/bytebufferpool"
	"io"
	"net/http"
	"net/url"
	"time"
)

const DefaultURL = "https://api.yookassa.ru/v3"

type Client struct {
	baseURL   string
	shopID    string
	secretKey string
	http      *http.Client
}

func NewClient(baseURL, shopID, secretKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}

	return &Client{
		baseURL:   baseURL,
		shopID:    shopID,
		secretKey: secretKey,
		http:      &http.Client{Timeout: timeout},
	}
}

func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (*Payment, error) {
	w := jwriter.Writer{}
	req.MarshalEasyJSON(&w)
	if w.Error != nil {
		return nil, errors.Wrap(w.Error, "marshal payment request")
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if _, err := w.DumpTo(buf); err != nil {
		return nil, errors.Wrap(err, "encode payment request")
	}

	var payment Payment
	err := c.do(ctx, http.MethodPost, "/payments", buf.B, &payment)
	if err != nil {
		return nil, err
	}

	return &payment, nil
}

func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	var payment Payment
	err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(id), nil, &payment)
	if err != nil {
		return nil, err
	}

	return &payment, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out easyjson.Unmarshaler) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "new request")
	}

	req.SetBasicAuth(c.shopID, c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotence-Key", uuid.NewString())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, method+" "+path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if easyjson.Unmarshal(data, apiErr) != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
			apiErr.Description = string(data)
		}
		return apiErr
	}

	return errors.Wrap(easyjson.Unmarshal(data, out), "decode response")
}
