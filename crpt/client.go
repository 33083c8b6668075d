package crpt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"crpt-gateway/middleware/ratelimit/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultBaseURL = "https://ismp.crpt.ru"

// Operation escolhe o endpoint de documentos.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationSend   Operation = "send"
)

func (o Operation) path() string {
	return "/api/v3/lk/documents/" + string(o)
}

// RawResponse é a resposta do serviço, sem interpretação.
type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	RequestID  string
}

// Client passa pelo Gate antes de cada chamada ao serviço de documentos.
//
// A vaga é reservada antes da chamada de rede e continua gasta se a chamada
// falhar: o limite governa tentativas, não sucessos. Não há retry aqui.
type Client struct {
	gate    domain.Gate
	http    *http.Client
	baseURL *url.URL
	op      Operation
	log     *zap.Logger
	newID   func() string
}

type Option func(*Client) error

func WithBaseURL(raw string) Option {
	return func(c *Client) error {
		u, err := url.Parse(strings.TrimRight(raw, "/"))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: invalid base url %q", domain.ErrInvalidConfiguration, raw)
		}
		c.baseURL = u
		return nil
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc != nil {
			c.http = hc
		}
		return nil
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) error {
		if l != nil {
			c.log = l
		}
		return nil
	}
}

func WithOperation(op Operation) Option {
	return func(c *Client) error {
		if op != OperationCreate && op != OperationSend {
			return fmt.Errorf("%w: unknown operation %q", domain.ErrInvalidConfiguration, op)
		}
		c.op = op
		return nil
	}
}

func New(gate domain.Gate, opts ...Option) (*Client, error) {
	if gate == nil {
		return nil, fmt.Errorf("%w: gate is required", domain.ErrInvalidConfiguration)
	}

	c := &Client{
		gate:  gate,
		http:  &http.Client{Timeout: 30 * time.Second},
		op:    OperationCreate,
		log:   zap.NewNop(),
		newID: uuid.NewString,
	}
	opts = append([]Option{WithBaseURL(DefaultBaseURL)}, opts...)
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// SubmitDocument é o atalho para Submit com os campos soltos.
func (c *Client) SubmitDocument(ctx context.Context, token string, document any, signature string, group ProductGroup) (*RawResponse, error) {
	return c.Submit(ctx, token, Payload{Document: document, Signature: signature, Group: group})
}

// Submit valida os argumentos, espera a vaga no Gate e faz o POST.
//
// Erros:
//   - domain.ErrInvalidArgument: token vazio, grupo ou formato desconhecido (nenhuma vaga usada)
//   - erros do Gate (domain.ErrCancelled, domain.ErrTimeout), sem alteração
//   - *domain.TransportError: falha de serialização, rede ou status não 2xx (vaga usada)
func (c *Client) Submit(ctx context.Context, token string, p Payload) (*RawResponse, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: token is required", domain.ErrInvalidArgument)
	}
	if !p.Group.Valid() {
		return nil, fmt.Errorf("%w: unknown product group %q", domain.ErrInvalidArgument, p.Group)
	}
	if p.Format != "" && !p.Format.Valid() {
		return nil, fmt.Errorf("%w: unknown document format %q", domain.ErrInvalidArgument, p.Format)
	}

	if err := c.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	return c.send(ctx, token, p)
}

func (c *Client) send(ctx context.Context, token string, p Payload) (*RawResponse, error) {
	requestID := c.newID()
	log := c.log.With(
		zap.String("request_id", requestID),
		zap.String("operation", string(c.op)),
		zap.String("product_group", string(p.Group)),
	)

	body, err := newRequestBody(p)
	if err != nil {
		log.Warn("document encoding failed", zap.Error(err))
		return nil, &domain.TransportError{Op: "encode body", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(p.Group), bytes.NewReader(body))
	if err != nil {
		return nil, &domain.TransportError{Op: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token)
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("document post failed", zap.Error(err))
		return nil, &domain.TransportError{Op: "post " + string(c.op), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Op: "read response", StatusCode: resp.StatusCode, Err: err}
	}

	log = log.With(zap.Int("status", resp.StatusCode), zap.Duration("duration", time.Since(start)))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn("document rejected")
		return nil, &domain.TransportError{Op: "post " + string(c.op), StatusCode: resp.StatusCode, Body: raw}
	}
	log.Debug("document submitted")

	return &RawResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       raw,
		RequestID:  requestID,
	}, nil
}

func (c *Client) endpoint(group ProductGroup) string {
	u := c.baseURL.JoinPath(c.op.path())
	u.RawQuery = url.Values{"pg": {string(group)}}.Encode()
	return u.String()
}
