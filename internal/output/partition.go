package output

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/jmylchreest/catalogcrawl/pkg/site"
)

// Partition selects how records are grouped in the output.
type Partition string

const (
	PartitionNone     Partition = "none"
	PartitionDomain   Partition = "domain"
	PartitionSite     Partition = "site"
	PartitionCategory Partition = "category"
)

// unknownKey groups records whose partition value is missing.
const unknownKey = "unknown"

// ParsePartition validates a partition name. An empty name means none.
func ParsePartition(name string) (Partition, error) {
	switch p := Partition(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return PartitionNone, nil
	case PartitionNone, PartitionDomain, PartitionSite, PartitionCategory:
		return p, nil
	default:
		return "", fmt.Errorf("unsupported partition: %s (want none, domain, site or category)", name)
	}
}

// Enabled reports whether records are grouped.
func (p Partition) Enabled() bool {
	return p != "" && p != PartitionNone
}

// Key returns the group a record belongs to.
func (p Partition) Key(siteName string, rec map[string]any) string {
	var key string
	switch p {
	case PartitionDomain:
		if raw, ok := rec[site.KeyProductURL].(string); ok {
			if u, err := url.Parse(raw); err == nil {
				key = strings.ToLower(u.Hostname())
			}
		}
	case PartitionSite:
		key = siteName
	case PartitionCategory:
		key, _ = rec[site.KeyCategory].(string)
	default:
		return ""
	}
	if key == "" {
		return unknownKey
	}
	return key
}
