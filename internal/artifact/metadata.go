package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMalformedMetadata indicates the sidecar could not be parsed.
var ErrMalformedMetadata = errors.New("artifact: malformed metadata")

// Metadata is the provenance stored beside a bundle.
type Metadata struct {
	Target    string
	BuildID   string
	Pack      string
	RootLabel string
	// InputDigest fingerprints the definition and resources the bundle was
	// assembled from.
	InputDigest string
	// Checksum is the sha256 of the bundle text.
	Checksum  string
	Size      int
	Resources map[string]int
	Skipped   []string
	CreatedAt time.Time
}

// WithDefaults fills the target and timestamp.
func (m Metadata) WithDefaults(ref Ref, now time.Time) Metadata {
	clone := m
	if clone.Target == "" {
		clone.Target = ref.String()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now.UTC()
	} else {
		clone.CreatedAt = clone.CreatedAt.UTC()
	}
	return clone
}

// ValidateFor ensures metadata matches ref.
func (m Metadata) ValidateFor(ref Ref) error {
	if m.Target != ref.String() {
		return fmt.Errorf("artifact: metadata target %s does not match ref %s", m.Target, ref)
	}
	if m.BuildID == "" {
		return fmt.Errorf("artifact: build id is required for %s", ref)
	}
	return nil
}

// Checksum returns the hex sha256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Digest fingerprints an ordered list of inputs. Each part is length
// prefixed so ("ab","c") and ("a","bc") differ.
func Digest(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:", len(p))
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

type envelope struct {
	Agentpack sidecar `yaml:"agentpack"`
}

type sidecar struct {
	Target      string         `yaml:"target"`
	BuildID     string         `yaml:"build_id"`
	Pack        string         `yaml:"pack,omitempty"`
	RootLabel   string         `yaml:"root_label,omitempty"`
	InputDigest string         `yaml:"input_digest,omitempty"`
	Checksum    string         `yaml:"checksum"`
	Size        int            `yaml:"size"`
	Resources   map[string]int `yaml:"resources,omitempty"`
	Skipped     []string       `yaml:"skipped,omitempty"`
	Created     string         `yaml:"created"`
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func encodeMetadata(meta Metadata) ([]byte, error) {
	env := envelope{Agentpack: sidecar{
		Target:      meta.Target,
		BuildID:     meta.BuildID,
		Pack:        meta.Pack,
		RootLabel:   meta.RootLabel,
		InputDigest: meta.InputDigest,
		Checksum:    meta.Checksum,
		Size:        meta.Size,
		Resources:   meta.Resources,
		Skipped:     append([]string(nil), meta.Skipped...),
		Created:     meta.CreatedAt.UTC().Format(timeLayout),
	}}
	data, err := yaml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("artifact: encode metadata: %w", err)
	}
	return data, nil
}

func decodeMetadata(data []byte) (Metadata, error) {
	var env envelope
	if err := yaml.Unmarshal(data, &env); err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrMalformedMetadata, err)
	}
	s := env.Agentpack
	if s.Target == "" || s.BuildID == "" || s.Checksum == "" {
		return Metadata{}, ErrMalformedMetadata
	}
	created, err := parseTime(s.Created)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrMalformedMetadata, err)
	}
	return Metadata{
		Target:      s.Target,
		BuildID:     s.BuildID,
		Pack:        s.Pack,
		RootLabel:   s.RootLabel,
		InputDigest: s.InputDigest,
		Checksum:    s.Checksum,
		Size:        s.Size,
		Resources:   s.Resources,
		Skipped:     s.Skipped,
		CreatedAt:   created,
	}, nil
}

func parseTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("empty created timestamp")
	}
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
