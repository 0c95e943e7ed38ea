package engine

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/wonny/aegis-rebalance/internal/contracts"
	"github.com/wonny/aegis-rebalance/internal/options"
)

// Request is the complete, immutable input of one run
type Request struct {
	Portfolio     contracts.PortfolioSnapshot  `json:"portfolio" yaml:"portfolio"`
	Market        contracts.MarketDataSnapshot `json:"market" yaml:"market"`
	Model         contracts.ModelPortfolio     `json:"model" yaml:"model"`
	Shelf         []contracts.ShelfEntry       `json:"shelf" yaml:"shelf"`
	Options       options.EngineOptions        `json:"options" yaml:"options"`
	TradeRequests []contracts.TradeRequest     `json:"trade_requests,omitempty" yaml:"trade_requests,omitempty"`
	CashFlows     []contracts.CashFlow         `json:"cash_flows,omitempty" yaml:"cash_flows,omitempty"`
}

// runNamespace scopes deterministic run ids (UUIDv5)
var runNamespace = uuid.MustParse("6f1c2a4e-8d3b-5b7a-9c0e-2f4d6a8b1c3e")

// CanonicalHash returns sha256 over the canonical JSON of the request.
// Struct fields marshal in declaration order and maps with sorted keys, so equal
// requests always hash equally.
func CanonicalHash(req Request) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("canonical json: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// RunID derives a stable run id from the canonical hash
func RunID(req Request) (string, error) {
	hash, err := CanonicalHash(req)
	if err != nil {
		return "", err
	}
	return uuid.NewSHA1(runNamespace, []byte(hash)).String(), nil
}

// LoadRequest reads a YAML (or JSON) request file.
// Options absent from the file keep their defaults; unknown fields are rejected.
func LoadRequest(path string) (*Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}
	return DecodeRequest(bytes.NewReader(data))
}

// DecodeRequest decodes and validates one request document
func DecodeRequest(r io.Reader) (*Request, error) {
	req := Request{Options: options.Defaults()}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyRequest
		}
		return nil, fmt.Errorf("decode request: %w", err)
	}

	if err := options.Validate(&req.Options); err != nil {
		return nil, fmt.Errorf("options: %w", err)
	}
	return &req, nil
}

// batchFile is the on-disk shape of a what-if batch
type batchFile struct {
	Scenarios map[string]yaml.Node `yaml:"scenarios"`
}

// LoadBatch reads named scenarios: `scenarios: {name: <request>}`
func LoadBatch(path string) (map[string]Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}
	return DecodeBatch(bytes.NewReader(data))
}

// DecodeBatch decodes a batch document; every scenario is decoded like a single request
func DecodeBatch(r io.Reader) (map[string]Request, error) {
	var file batchFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyRequest
		}
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	if len(file.Scenarios) == 0 {
		return nil, ErrEmptyRequest
	}

	out := make(map[string]Request, len(file.Scenarios))
	for _, name := range contracts.SortedKeys(file.Scenarios) {
		node := file.Scenarios[name]
		// yaml.Node.Decode는 KnownFields를 지원하지 않으므로 재직렬화 후 디코드
		raw, err := yaml.Marshal(&node)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", name, err)
		}
		req, err := DecodeRequest(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", name, err)
		}
		out[name] = *req
	}
	return out, nil
}
