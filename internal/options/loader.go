package options

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML (or JSON) options file and returns validated options with raw bytes
// SSOT 핵심: KnownFields(true)로 오타/미사용 필드 즉시 실패
func Load(path string) (*EngineOptions, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read options: %w", err)
	}

	opts, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, data, err
	}
	return opts, data, nil
}

// Decode parses options on top of Defaults() and validates them.
// Fields absent from the document keep their default.
func Decode(r io.Reader) (*EngineOptions, error) {
	opts := Defaults()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // 알 수 없는 필드 발견 시 에러 반환
	if err := dec.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode options: %w", err)
	}

	if err := Validate(&opts); err != nil {
		return nil, err
	}
	return &opts, nil
}

// Hash generates SHA256 hash from options (canonical JSON)
// 주의: map 대신 struct 사용으로 해시 재현성 보장
func Hash(o *EngineOptions) (string, error) {
	jsonBytes, err := json.Marshal(o)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}

// Marshal renders options as YAML (used by `options defaults`)
func Marshal(o *EngineOptions) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(o); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
