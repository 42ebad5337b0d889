package requests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	opfs "github.com/sashapodgoreanu/opfs-poc"
	"gopkg.in/yaml.v3"
)

// UnmarshalBucketRequests decodes a single bucket definition or a list of
// them. YAML is accepted as well; JSON is a subset of it.
func UnmarshalBucketRequests(data []byte, now time.Time) ([]BucketRequest, error) {
	var dtos []BucketRequestDTO
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0:
		return nil, fmt.Errorf("empty bucket definition")
	case trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &dtos); err != nil {
			return nil, err
		}
	case trimmed[0] == '{':
		var dto BucketRequestDTO
		if err := json.Unmarshal(trimmed, &dto); err != nil {
			return nil, err
		}
		dtos = append(dtos, dto)
	default:
		if err := unmarshalYAML(trimmed, &dtos); err != nil {
			return nil, err
		}
	}

	reqs := make([]BucketRequest, 0, len(dtos))
	for i, dto := range dtos {
		req, err := ConvertBucketDTO(dto, now)
		if err != nil {
			return nil, fmt.Errorf("bucket %d: %w", i, err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// unmarshalYAML accepts either a sequence or a single mapping
func unmarshalYAML(data []byte, dtos *[]BucketRequestDTO) error {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return err
	}
	if len(node.Content) == 0 {
		return fmt.Errorf("empty bucket definition")
	}
	if node.Content[0].Kind == yaml.SequenceNode {
		return node.Decode(dtos)
	}
	var dto BucketRequestDTO
	if err := node.Decode(&dto); err != nil {
		return err
	}
	*dtos = append(*dtos, dto)
	return nil
}

// ConvertBucketDTO applies defaults and resolves relative expiry against now
func ConvertBucketDTO(dto BucketRequestDTO, now time.Time) (BucketRequest, error) {
	if dto.Name == "" {
		return BucketRequest{}, fmt.Errorf("name: %w", opfs.ErrInvalidName)
	}
	if dto.ExpiresIn != nil && dto.ExpiresAt != nil {
		return BucketRequest{}, fmt.Errorf("bucket %q: expires_in and expires_at are mutually exclusive", dto.Name)
	}

	var expires time.Time
	if dto.ExpiresIn != nil {
		d, err := time.ParseDuration(*dto.ExpiresIn)
		if err != nil {
			return BucketRequest{}, fmt.Errorf("bucket %q: expires_in: %w", dto.Name, err)
		}
		if d <= 0 {
			return BucketRequest{}, fmt.Errorf("bucket %q: expires_in must be positive", dto.Name)
		}
		expires = now.Add(d)
	}
	expires = valueOrDefault(dto.ExpiresAt, expires)

	req := BucketRequest{
		Name: dto.Name,
		Options: opfs.RootOptions{
			Quota:      valueOrDefault(dto.Quota, 0),
			Expires:    expires,
			Durability: valueOrDefault(dto.Durability, ""),
		},
	}
	for _, n := range dto.Nodes {
		node, err := convertNodeDTO(n)
		if err != nil {
			return BucketRequest{}, fmt.Errorf("bucket %q: %w", dto.Name, err)
		}
		req.Nodes = append(req.Nodes, node)
	}
	return req, nil
}

func convertNodeDTO(dto NodeRequestDTO) (NodeRequest, error) {
	kind := dto.Type
	switch kind {
	case "", opfs.KindFile:
		kind = opfs.KindFile
	case "dir", opfs.KindDirectory:
		kind = opfs.KindDirectory
		if dto.Content != nil {
			return NodeRequest{}, fmt.Errorf("node %q: directories have no content", dto.Path)
		}
	default:
		return NodeRequest{}, fmt.Errorf("node %q: unknown type %q (want file or directory)", dto.Path, kind)
	}
	return NodeRequest{Path: dto.Path, Kind: kind, Content: dto.Content}, nil
}

func valueOrDefault[T any](ptr *T, defaultVal T) T {
	if ptr != nil {
		return *ptr
	}
	return defaultVal
}
