package wallet

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/clearportx/amm-client/pkg/domain"
	"github.com/clearportx/amm-client/pkg/ledger"
)

// responseFields is what one adapter could read from a provider response.
type responseFields struct {
	ledgerUpdateID string
	transactionID  string
	status         string
	failures       interface{}
}

// responseAdapter reads one known provider response version.
type responseAdapter struct {
	name    string
	extract func(raw Response) (responseFields, bool)
}

// waitResponse is the shape returned by wait-mode submission.
type waitResponse struct {
	LedgerUpdateID string      `mapstructure:"ledgerUpdateId"`
	UpdateID       string      `mapstructure:"updateId"`
	TxStatus       string      `mapstructure:"txStatus"`
	Failures       interface{} `mapstructure:"failures"`
}

// legacyResponse is the shape returned by legacy submission and by older
// wait-mode SDKs.
type legacyResponse struct {
	TransactionID string      `mapstructure:"transactionId"`
	CommandID     string      `mapstructure:"commandId"`
	Status        interface{} `mapstructure:"status"`
	Transaction   interface{} `mapstructure:"transaction"`
	Result        interface{} `mapstructure:"result"`
	Failure       interface{} `mapstructure:"failure"`
	Errors        interface{} `mapstructure:"errors"`
	Error         interface{} `mapstructure:"error"`
}

// adapters are consulted in order; earlier adapters win field by field.
var adapters = []responseAdapter{
	{name: "wait", extract: extractWait},
	{name: "legacy", extract: extractLegacy},
}

func extractWait(raw Response) (responseFields, bool) {
	var r waitResponse
	if err := decodeLoose(raw, &r); err != nil {
		return responseFields{}, false
	}
	f := responseFields{
		ledgerUpdateID: firstNonEmpty(r.LedgerUpdateID, r.UpdateID),
		status:         r.TxStatus,
		failures:       nonEmpty(r.Failures),
	}
	return f, f.ledgerUpdateID != "" || f.status != "" || f.failures != nil
}

func extractLegacy(raw Response) (responseFields, bool) {
	var r legacyResponse
	if err := decodeLoose(raw, &r); err != nil {
		return responseFields{}, false
	}

	tx, _ := r.Transaction.(map[string]interface{})
	result, _ := r.Result.(map[string]interface{})
	status, _ := r.Status.(string)
	if status == "" {
		status, _ = result["status"].(string)
	}

	txUpdateID, _ := tx["updateId"].(string)
	txTransactionID, _ := tx["transactionId"].(string)

	f := responseFields{
		ledgerUpdateID: firstNonEmpty(r.TransactionID, txUpdateID, txTransactionID, r.CommandID),
		transactionID:  firstNonEmpty(r.TransactionID, txTransactionID),
		status:         status,
	}
	for _, candidate := range []interface{}{r.Failure, r.Errors, r.Error} {
		if v := nonEmpty(candidate); v != nil {
			f.failures = v
			break
		}
	}
	return f, f.ledgerUpdateID != "" || f.status != "" || f.failures != nil
}

// normalizeResponse folds a raw provider response into a SubmitResult. A
// response that no adapter recognizes is an UNRECOGNIZED_RESPONSE error.
func normalizeResponse(raw Response, estimateTraffic bool) (SubmitResult, *domain.DomainError) {
	if raw == nil {
		return SubmitResult{}, domain.NewDomainError(domain.CodeUnrecognizedResponse, "wallet provider returned an empty response", nil)
	}

	var merged responseFields
	var matched []string
	for _, a := range adapters {
		f, ok := a.extract(raw)
		if !ok {
			continue
		}
		matched = append(matched, a.name)
		merged.ledgerUpdateID = firstNonEmpty(merged.ledgerUpdateID, f.ledgerUpdateID)
		merged.transactionID = firstNonEmpty(merged.transactionID, f.transactionID)
		merged.status = firstNonEmpty(merged.status, f.status)
		if merged.failures == nil {
			merged.failures = f.failures
		}
	}
	if len(matched) == 0 {
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return SubmitResult{}, domain.NewDomainError(domain.CodeUnrecognizedResponse,
			fmt.Sprintf("wallet provider response has no known fields (keys: %s)", strings.Join(keys, ",")), nil)
	}

	result := SubmitResult{
		LedgerUpdateID: merged.ledgerUpdateID,
		TransactionID:  merged.transactionID,
		TxStatus:       deriveStatus(merged.status, merged.failures),
		Failures:       merged.failures,
		MemoEcho:       findMemo(raw),
	}
	if estimateTraffic {
		result.TrafficEstimation = extractTraffic(raw)
	}
	return result, nil
}

// deriveStatus applies the status rule: any failure or an explicit status
// containing FAIL means FAILED; everything else is SUCCEEDED.
func deriveStatus(status string, failures interface{}) TxStatus {
	if failures != nil {
		return TxFailed
	}
	if strings.Contains(strings.ToUpper(status), "FAIL") {
		return TxFailed
	}
	return TxSucceeded
}

// findMemo searches the response breadth first for a metadata map carrying
// the memo key. Map keys are visited in sorted order so the first match is
// deterministic.
func findMemo(raw Response) string {
	queue := []interface{}{map[string]interface{}(raw)}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		switch node := current.(type) {
		case map[string]interface{}:
			if meta, ok := node["meta"].(map[string]interface{}); ok {
				if values, ok := meta["values"].(map[string]interface{}); ok {
					if memo, ok := values[ledger.MemoKey].(string); ok && memo != "" {
						return memo
					}
				}
			}
			keys := make([]string, 0, len(node))
			for k := range node {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				queue = append(queue, node[k])
			}
		case []interface{}:
			queue = append(queue, node...)
		}
	}
	return ""
}

// trafficFields lists every alias seen for the traffic estimate.
type trafficFields struct {
	EstimationTimestamp string  `mapstructure:"estimationTimestamp"`
	Timestamp           string  `mapstructure:"timestamp"`
	RequestFull         float64 `mapstructure:"confirmationRequestTrafficCostEstimation"`
	RequestCost         float64 `mapstructure:"confirmationRequestCost"`
	RequestShort        float64 `mapstructure:"requestCost"`
	ResponseFull        float64 `mapstructure:"confirmationResponseTrafficCostEstimation"`
	ResponseCost        float64 `mapstructure:"confirmationResponseCost"`
	ResponseShort       float64 `mapstructure:"responseCost"`
	TotalFull           float64 `mapstructure:"totalTrafficCostEstimation"`
	TotalCost           float64 `mapstructure:"totalCost"`
	Total               float64 `mapstructure:"total"`
}

func extractTraffic(raw Response) *TrafficEstimation {
	var node interface{}
	for _, key := range []string{"trafficEstimation", "traffic_cost_estimation", "trafficCostEstimation"} {
		if v, ok := raw[key]; ok && v != nil {
			node = v
			break
		}
	}
	if node == nil {
		if traffic, ok := raw["traffic"].(map[string]interface{}); ok {
			node = traffic
			if est, ok := traffic["estimation"].(map[string]interface{}); ok {
				node = est
			}
		}
	}
	m, ok := node.(map[string]interface{})
	if !ok {
		return nil
	}

	var f trafficFields
	if err := decodeLoose(m, &f); err != nil {
		return nil
	}
	return &TrafficEstimation{
		EstimationTimestamp:                       firstNonEmpty(f.EstimationTimestamp, f.Timestamp),
		ConfirmationRequestTrafficCostEstimation:  firstNonZero(f.RequestFull, f.RequestCost, f.RequestShort),
		ConfirmationResponseTrafficCostEstimation: firstNonZero(f.ResponseFull, f.ResponseCost, f.ResponseShort),
		TotalTrafficCostEstimation:                firstNonZero(f.TotalFull, f.TotalCost, f.Total),
	}
}

// decodeLoose decodes a JSON-shaped map into out, converting between
// numbers and strings where providers disagree on representation.
func decodeLoose(in interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// nonEmpty returns v unless it is nil, false, an empty string or an empty
// collection.
func nonEmpty(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
	case bool:
		if !t {
			return nil
		}
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Map, reflect.Slice, reflect.Array:
			if rv.Len() == 0 {
				return nil
			}
		}
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...float64) float64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
