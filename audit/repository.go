// audit/repository.go
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const decisionLogIndex = "decision-logs"

// Repository persists and queries decision log entries.
type Repository interface {
	IndexDecision(ctx context.Context, entry DecisionLogEntry) error
	QueryDecisions(ctx context.Context, filter LogFilter, limit, offset int) ([]DecisionLogEntry, error)
	CountDecisions(ctx context.Context, filter LogFilter) (allowed int64, denied int64, err error)
}

type ElasticsearchRepository struct {
	esClient *elasticsearch.Client
}

// NewElasticsearchRepository creates a new repository with a given Elasticsearch client URL.
func NewElasticsearchRepository(esURL string) (*ElasticsearchRepository, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{esURL},
	}
	esClient, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &ElasticsearchRepository{esClient: esClient}, nil
}

// IndexDecision writes one decision log entry to Elasticsearch.
func (r *ElasticsearchRepository) IndexDecision(ctx context.Context, entry DecisionLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      decisionLogIndex,
		DocumentID: entry.ID,
		Body:       strings.NewReader(string(data)),
	}

	res, err := req.Do(ctx, r.esClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing document: %s", res.String())
	}

	return nil
}

// QueryDecisions searches decision logs within a time frame, optionally
// filtered by result and controlling policy.
func (r *ElasticsearchRepository) QueryDecisions(ctx context.Context, filter LogFilter, limit, offset int) ([]DecisionLogEntry, error) {
	var buf strings.Builder
	if err := json.NewEncoder(&buf).Encode(buildQuery(filter)); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	res, err := r.esClient.Search(
		r.esClient.Search.WithContext(ctx),
		r.esClient.Search.WithIndex(decisionLogIndex),
		r.esClient.Search.WithBody(strings.NewReader(buf.String())),
		r.esClient.Search.WithSort("timestamp:desc"),
		r.esClient.Search.WithSize(limit),
		r.esClient.Search.WithFrom(offset),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("error searching documents: %s", res.String())
	}

	var rmap map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&rmap); err != nil {
		return nil, err
	}

	hits := rmap["hits"].(map[string]interface{})["hits"].([]interface{})
	entries := make([]DecisionLogEntry, len(hits))
	for i, hit := range hits {
		source := hit.(map[string]interface{})["_source"]
		data, _ := json.Marshal(source)
		json.Unmarshal(data, &entries[i])
	}

	return entries, nil
}

// CountDecisions returns allow/deny totals within the filter window.
func (r *ElasticsearchRepository) CountDecisions(ctx context.Context, filter LogFilter) (int64, int64, error) {
	count := func(result string) (int64, error) {
		scoped := filter
		scoped.Result = ""
		query := buildQuery(scoped)
		must := query["query"].(map[string]interface{})["bool"].(map[string]interface{})["must"].([]interface{})
		must = append(must, map[string]interface{}{
			"match": map[string]interface{}{"result": result},
		})
		query["query"].(map[string]interface{})["bool"].(map[string]interface{})["must"] = must

		var buf strings.Builder
		if err := json.NewEncoder(&buf).Encode(query); err != nil {
			return 0, err
		}

		res, err := r.esClient.Count(
			r.esClient.Count.WithContext(ctx),
			r.esClient.Count.WithIndex(decisionLogIndex),
			r.esClient.Count.WithBody(strings.NewReader(buf.String())),
		)
		if err != nil {
			return 0, err
		}
		defer res.Body.Close()

		if res.IsError() {
			return 0, fmt.Errorf("error counting documents: %s", res.String())
		}

		var rmap map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&rmap); err != nil {
			return 0, err
		}
		return int64(rmap["count"].(float64)), nil
	}

	allowed, err := count("ALLOW")
	if err != nil {
		return 0, 0, err
	}
	denied, err := count("DENY")
	if err != nil {
		return 0, 0, err
	}
	return allowed, denied, nil
}

func buildQuery(filter LogFilter) map[string]interface{} {
	must := []interface{}{}

	if !filter.From.IsZero() || !filter.To.IsZero() {
		timeRange := map[string]interface{}{}
		if !filter.From.IsZero() {
			timeRange["gte"] = filter.From.Format(time.RFC3339)
		}
		if !filter.To.IsZero() {
			timeRange["lte"] = filter.To.Format(time.RFC3339)
		}
		must = append(must, map[string]interface{}{
			"range": map[string]interface{}{"timestamp": timeRange},
		})
	}

	if filter.Result != "" {
		must = append(must, map[string]interface{}{
			"match": map[string]interface{}{"result": string(filter.Result)},
		})
	}

	if filter.PolicyID != "" {
		must = append(must, map[string]interface{}{
			"match": map[string]interface{}{"controlling_policy_id": filter.PolicyID},
		})
	}

	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": must,
			},
		},
	}
}
