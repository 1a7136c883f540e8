package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"boothpay/internal/config"
	"boothpay/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// AuditDocument - снимок состояния платежа в индексе аудита
type AuditDocument struct {
	OrderID           string          `json:"order_id"`
	BookingID         int64           `json:"booking_id"`
	TransactionStatus string          `json:"transaction_status"`
	FraudStatus       string          `json:"fraud_status,omitempty"`
	Outcome           string          `json:"outcome"`
	Channel           string          `json:"channel,omitempty"`
	GrossAmount       int64           `json:"gross_amount"`
	Raw               json.RawMessage `json:"raw,omitempty"`
	ObservedAt        time.Time       `json:"observed_at"`
}

// ElasticsearchClient представляет клиент индекса аудита платежей
type ElasticsearchClient struct {
	client *elasticsearch.Client
	config config.ElasticsearchConfig
}

// NewElasticsearchClient создает новый клиент Elasticsearch
func NewElasticsearchClient(cfg config.ElasticsearchConfig) (*ElasticsearchClient, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{cfg.URL},
		Username:      cfg.Username,
		Password:      cfg.Password,
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	client := &ElasticsearchClient{
		client: es,
		config: cfg,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.ensureIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure index exists: %w", err)
	}

	return client, nil
}

// ensureIndex создает индекс если он не существует
func (c *ElasticsearchClient) ensureIndex(ctx context.Context) error {
	req := esapi.IndicesExistsRequest{
		Index: []string{c.config.Index},
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 200 {
		slog.Info("Elasticsearch index already exists", "index", c.config.Index)
		return nil
	}

	mapping := map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"order_id":           map[string]interface{}{"type": "keyword"},
				"booking_id":         map[string]interface{}{"type": "long"},
				"transaction_status": map[string]interface{}{"type": "keyword"},
				"fraud_status":       map[string]interface{}{"type": "keyword"},
				"outcome":            map[string]interface{}{"type": "keyword"},
				"channel":            map[string]interface{}{"type": "keyword"},
				"gross_amount":       map[string]interface{}{"type": "long"},
				"raw":                map[string]interface{}{"type": "object", "enabled": false},
				"observed_at":        map[string]interface{}{"type": "date"},
			},
		},
	}

	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	createReq := esapi.IndicesCreateRequest{
		Index: c.config.Index,
		Body:  bytes.NewReader(body),
	}

	createRes, err := createReq.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		return fmt.Errorf("index creation error: %s", createRes.String())
	}

	slog.Info("Elasticsearch index created", "index", c.config.Index)
	return nil
}

// IndexPaymentRecord добавляет наблюдение статуса платежа в индекс аудита.
// Каждое наблюдение - отдельный документ, история не перезаписывается.
func (c *ElasticsearchClient) IndexPaymentRecord(ctx context.Context, record *models.PaymentRecord, outcome string) error {
	doc := NewAuditDocument(record, outcome, time.Now().UTC())

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal audit document: %w", err)
	}

	req := esapi.IndexRequest{
		Index: c.config.Index,
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to index payment record: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("indexing error: %s", res.String())
	}

	return nil
}

// History возвращает наблюдения по заказу, новые первыми
func (c *ElasticsearchClient) History(ctx context.Context, orderID string, size int) ([]AuditDocument, error) {
	if size <= 0 {
		size = 20
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{"order_id": orderID},
		},
		"sort": []map[string]interface{}{
			{"observed_at": map[string]interface{}{"order": "desc"}},
		},
		"size": size,
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{c.config.Index},
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var response struct {
		Hits struct {
			Hits []struct {
				Source AuditDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	docs := make([]AuditDocument, 0, len(response.Hits.Hits))
	for _, hit := range response.Hits.Hits {
		docs = append(docs, hit.Source)
	}
	return docs, nil
}

// HealthCheck проверяет состояние Elasticsearch
func (c *ElasticsearchClient) HealthCheck(ctx context.Context) error {
	req := esapi.ClusterHealthRequest{
		WaitForStatus: "yellow",
		Timeout:       10 * time.Second,
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("health check error: %s", res.String())
	}

	return nil
}

// NewAuditDocument собирает документ аудита из записи платежа
func NewAuditDocument(record *models.PaymentRecord, outcome string, observedAt time.Time) AuditDocument {
	return AuditDocument{
		OrderID:           record.OrderID,
		BookingID:         record.BookingID,
		TransactionStatus: record.Status,
		FraudStatus:       record.FraudStatus,
		Outcome:           outcome,
		Channel:           record.Channel,
		GrossAmount:       record.GrossAmount,
		Raw:               record.Raw,
		ObservedAt:        observedAt,
	}
}
