// internal/trustlist/loader.go
package trustlist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/solatis/healthcert/internal/types"
)

// Document is the on-disk trust-list format: signer keys and revoked
// certificate identifiers.
type Document struct {
	Keys    []types.SigningKey `json:"certs"`
	Revoked []string           `json:"revokedCerts"`
}

// ParseDocument decodes a trust-list document.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse trust list: %w", err)
	}
	return &doc, nil
}

// Files names the documents Load reads. An empty path skips that document.
type Files struct {
	RuleSet   string
	TrustList string
}

// Load assembles a TrustList from files. Revoked identifiers are added to
// store; a nil store selects a fresh MemoryStore.
func Load(ctx context.Context, files Files, store Store) (*types.TrustList, error) {
	if store == nil {
		store = NewMemoryStore()
	}
	tl := &types.TrustList{Revoked: store}

	if files.TrustList != "" {
		data, err := readLimited(files.TrustList)
		if err != nil {
			return nil, err
		}
		doc, err := ParseDocument(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", files.TrustList, err)
		}
		tl.SigningKeys = doc.Keys
		if err := store.Add(ctx, doc.Revoked...); err != nil {
			return nil, fmt.Errorf("failed to load revocations: %w", err)
		}
	}

	if files.RuleSet != "" {
		rs, err := LoadRuleSet(files.RuleSet)
		if err != nil {
			return nil, err
		}
		tl.RuleSet = rs
	}
	return tl, nil
}

// LoadRuleSet reads and parses a rule-set file.
func LoadRuleSet(path string) (*types.RuleSet, error) {
	data, err := readLimited(path)
	if err != nil {
		return nil, err
	}
	rs, err := types.ParseRuleSet(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

func readLimited(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, types.MaxRuleSetSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) > types.MaxRuleSetSize {
		return nil, fmt.Errorf("%s: %w", path, types.ErrPayloadTooLarge)
	}
	return data, nil
}
