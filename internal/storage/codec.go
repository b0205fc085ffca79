package storage

import (
	"encoding/json"
	"fmt"

	"github.com/stacklok/toolhive-catalog-server/internal/catalog"
)

// EncodeLists serializes the list-valued columns of an item.
func EncodeLists(item catalog.Item) (topics, enrichment []byte, err error) {
	t := item.Topics
	if t == nil {
		t = []string{}
	}
	topics, err = json.Marshal(t)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode topics: %w", err)
	}
	enrichment, err = json.Marshal(item.Enrichment)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode enrichment: %w", err)
	}
	return topics, enrichment, nil
}

// DecodeLists restores the list-valued columns into item.
func DecodeLists(item *catalog.Item, topics, enrichment []byte) error {
	if len(topics) > 0 {
		if err := json.Unmarshal(topics, &item.Topics); err != nil {
			return fmt.Errorf("failed to decode topics of %s: %w", item.ID, err)
		}
		if len(item.Topics) == 0 {
			item.Topics = nil
		}
	}
	if len(enrichment) > 0 {
		if err := json.Unmarshal(enrichment, &item.Enrichment); err != nil {
			return fmt.Errorf("failed to decode enrichment of %s: %w", item.ID, err)
		}
	}
	return nil
}
