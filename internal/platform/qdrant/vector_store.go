package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/ragdesk-backend/internal/domain"
	"github.com/yungbote/ragdesk-backend/internal/platform/ctxutil"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
	"github.com/yungbote/ragdesk-backend/internal/vectorstore"
)

const (
	payloadIndexKey    = "_rd_index"
	payloadRecordIDKey = "_rd_record_id"
	payloadSeqKey      = "_rd_seq"
	payloadDocumentKey = "document_id"
	payloadOrdinalKey  = "ordinal"
	payloadTextKey     = "text"
	maxErrorBodyBytes  = 1024
)

var pointIDNamespaceUUID = uuid.MustParse("4b6c1a3e-7d0f-4c55-8a5e-2f4f9b8d1c70")

// VectorStore talks to Qdrant over its REST API. Every index shares one
// collection and is separated by a payload key.
type VectorStore struct {
	log      *logger.Logger
	cfg      Config
	baseURL  string
	distance string
	http     *http.Client
	now      func() time.Time
}

var _ vectorstore.Store = (*VectorStore)(nil)

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type qdrantSearchResultItem struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

func NewVectorStore(ctx context.Context, log *logger.Logger, cfg Config) (*VectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &VectorStore{
		log:     log.With("service", "QdrantVectorStore"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: timeout},
		now:     time.Now,
	}
	if err := s.verifyReady(ctx); err != nil {
		return nil, surface(err)
	}
	s.log.Info("Qdrant vector store selected", "url", s.baseURL, "collection", cfg.Collection, "vector_dim", cfg.VectorDim, "distance", s.distance)
	return s, nil
}

func (s *VectorStore) Upsert(ctx context.Context, index string, records []domain.EmbeddingRecord) (int, error) {
	const op = "upsert"
	if len(records) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if strings.TrimSpace(rec.ID) == "" {
			return 0, opErr(op, OperationErrorValidation, "record id is required", nil)
		}
		if len(rec.Vector) != s.cfg.VectorDim {
			return 0, opErr(op, OperationErrorValidation,
				fmt.Sprintf("record %q dimension mismatch: expected=%d got=%d", rec.ID, s.cfg.VectorDim, len(rec.Vector)), nil)
		}
		ids = append(ids, s.pointID(index, rec.ID))
	}
	existing, err := s.storedSeqs(ctx, ids)
	if err != nil {
		return 0, surface(err)
	}
	// Millisecond base keeps the sequence exact as a JSON float.
	seq := s.now().UnixMilli() * 1000
	points := make([]map[string]any, 0, len(records))
	for i, rec := range records {
		recSeq, ok := existing[ids[i]]
		if !ok {
			recSeq = seq + int64(i)
		}
		payload := make(map[string]any, len(rec.Metadata)+6)
		for k, v := range rec.Metadata {
			payload[k] = v
		}
		payload[payloadIndexKey] = index
		payload[payloadRecordIDKey] = rec.ID
		payload[payloadDocumentKey] = rec.DocumentID
		payload[payloadOrdinalKey] = rec.Ordinal
		payload[payloadTextKey] = rec.Text
		payload[payloadSeqKey] = recSeq
		points = append(points, map[string]any{
			"id":      ids[i],
			"vector":  rec.Vector,
			"payload": payload,
		})
	}
	if err := s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil); err != nil {
		return 0, surface(err)
	}
	return len(records), nil
}

// storedSeqs returns the insertion sequence of points that already exist, so
// a replaced record keeps its original tie-break position.
func (s *VectorStore) storedSeqs(ctx context.Context, ids []string) (map[string]int64, error) {
	req := map[string]any{
		"ids":          ids,
		"with_payload": []string{payloadSeqKey},
		"with_vector":  false,
	}
	var raw []qdrantSearchResultItem
	if err := s.doJSON(ctx, "upsert_lookup", http.MethodPost, s.collectionPath("/points"), req, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for _, item := range raw {
		id := decodePointID(item.ID)
		if _, ok := item.Payload[payloadSeqKey]; id == "" || !ok {
			continue
		}
		out[id] = payloadInt(item.Payload, payloadSeqKey)
	}
	return out, nil
}

func (s *VectorStore) Query(ctx context.Context, index string, vector []float32, k int) (domain.Retrieval, error) {
	const op = "query"
	if len(vector) == 0 {
		return nil, opErr(op, OperationErrorValidation, "query vector required", nil)
	}
	if len(vector) != s.cfg.VectorDim {
		return nil, opErr(op, OperationErrorValidation,
			fmt.Sprintf("query vector dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(vector)), nil)
	}
	k = vectorstore.NormalizeK(k)
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
		"with_vector":  false,
		"filter":       s.indexFilter(index).asMap(),
	}
	var raw []qdrantSearchResultItem
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/search"), req, &raw); err != nil {
		return nil, surface(err)
	}
	candidates := make([]vectorstore.Ranked, 0, len(raw))
	for _, item := range raw {
		id := payloadString(item.Payload, payloadRecordIDKey)
		if id == "" {
			id = decodePointID(item.ID)
		}
		if id == "" {
			continue
		}
		candidates = append(candidates, vectorstore.Ranked{
			Result: domain.RetrievalResult{
				RecordID:   id,
				DocumentID: payloadString(item.Payload, payloadDocumentKey),
				Ordinal:    int(payloadInt(item.Payload, payloadOrdinalKey)),
				Text:       payloadString(item.Payload, payloadTextKey),
				Score:      s.normalizeScore(item.Score),
			},
			Seq: payloadInt(item.Payload, payloadSeqKey),
		})
	}
	return vectorstore.Rank(candidates, k), nil
}

func (s *VectorStore) Prune(ctx context.Context, index, documentID string, keep int) error {
	const op = "prune"
	f := s.indexFilter(index).
		and(matchCondition(payloadDocumentKey, documentID)).
		and(rangeGTECondition(payloadOrdinalKey, keep))
	req := map[string]any{"filter": f.asMap()}
	return surface(s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/delete?wait=true"), req, nil))
}

func (s *VectorStore) Count(ctx context.Context, index string) (int, error) {
	const op = "count"
	var out struct {
		Count int `json:"count"`
	}
	req := map[string]any{"filter": s.indexFilter(index).asMap(), "exact": true}
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/count"), req, &out); err != nil {
		return 0, surface(err)
	}
	return out.Count, nil
}

func (s *VectorStore) Close() error {
	s.http.CloseIdleConnections()
	return nil
}

func (s *VectorStore) verifyReady(ctx context.Context) error {
	const op = "bootstrap_verify"
	readyReq, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, s.baseURL+"/readyz", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build ready request failed", err)
	}
	s.authorize(readyReq)
	readyResp, err := s.http.Do(readyReq)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant ready check failed", err)
	}
	_ = readyResp.Body.Close()
	if readyResp.StatusCode < 200 || readyResp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: readyResp.StatusCode,
			Message:    fmt.Sprintf("qdrant ready check returned status=%d", readyResp.StatusCode),
		}
	}

	var result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err = s.doJSON(ctx, op, http.MethodGet, s.collectionPath(""), nil, &result)
	var oe *OperationError
	if errors.As(err, &oe) && oe.Code == OperationErrorNotFound && s.cfg.CreateCollection {
		return s.createCollection(ctx)
	}
	if err != nil {
		return err
	}
	if size := result.Config.Params.Vectors.Size; size != 0 && size != s.cfg.VectorDim {
		return &OperationError{
			Code:      OperationErrorValidation,
			Operation: op,
			Message:   fmt.Sprintf("qdrant collection %q vector size mismatch: expected=%d actual=%d", s.cfg.Collection, s.cfg.VectorDim, size),
		}
	}
	s.distance = strings.TrimSpace(result.Config.Params.Vectors.Distance)
	return nil
}

func (s *VectorStore) createCollection(ctx context.Context) error {
	req := map[string]any{
		"vectors": map[string]any{"size": s.cfg.VectorDim, "distance": "Cosine"},
	}
	if err := s.doJSON(ctx, "create_collection", http.MethodPut, s.collectionPath(""), req, nil); err != nil {
		return err
	}
	s.distance = "Cosine"
	s.log.Info("qdrant collection created", "collection", s.cfg.Collection, "vector_dim", s.cfg.VectorDim)
	return nil
}

func (s *VectorStore) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*maxErrorBodyBytes))
	if err != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code := OperationErrorQueryFailed
		if resp.StatusCode == http.StatusNotFound {
			code = OperationErrorNotFound
		}
		return &OperationError{
			Code:       code,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if msg := parseEnvelopeStatus(envelope.Status); msg != "" {
		return &OperationError{Code: OperationErrorQueryFailed, Operation: op, StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil || len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func (s *VectorStore) authorize(req *http.Request) {
	if key := strings.TrimSpace(s.cfg.APIKey); key != "" {
		req.Header.Set("api-key", key)
	}
}

func classifyHTTPCallError(op, message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}
	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}
	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil && strings.TrimSpace(statusObject.Error) != "" {
		return strings.TrimSpace(statusObject.Error)
	}
	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

func (s *VectorStore) indexFilter(index string) filter {
	return filter{Must: []any{matchCondition(payloadIndexKey, index)}}
}

func (s *VectorStore) pointID(index, recordID string) string {
	return uuid.NewSHA1(pointIDNamespaceUUID, []byte(index+"|"+recordID)).String()
}

func (s *VectorStore) collectionPath(suffix string) string {
	return "/collections/" + s.cfg.Collection + suffix
}

func (s *VectorStore) normalizeScore(score float64) float64 {
	switch strings.ToLower(strings.TrimSpace(s.distance)) {
	case "euclid", "manhattan":
		if score < 0 {
			score = -score
		}
		return 1.0 / (1.0 + score)
	default:
		return score
	}
}

func decodePointID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var idString string
	if err := json.Unmarshal(raw, &idString); err == nil {
		return strings.TrimSpace(idString)
	}
	var idNumber int64
	if err := json.Unmarshal(raw, &idNumber); err == nil {
		return strconv.FormatInt(idNumber, 10)
	}
	return strings.TrimSpace(string(raw))
}

func payloadString(p map[string]any, key string) string {
	if v, ok := p[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// payloadInt reads a JSON number from a decoded payload.
func payloadInt(p map[string]any, key string) int64 {
	switch v := p[key].(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}
