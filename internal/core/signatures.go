package core

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	"gopkg.in/yaml.v3"
)

//go:embed signatures.yaml
var defaultSignaturesYAML []byte

// Signature maps one class of persistence error to a failure kind.
type Signature struct {
	SQLState string    `yaml:"sqlstate"`
	Patterns []string  `yaml:"patterns"`
	Kind     ErrorKind `yaml:"kind"`
	Code     string    `yaml:"code"`
	Message  string    `yaml:"message"`
}

// SignatureTable translates persistence errors. It is read-only once loaded
// and safe for concurrent use.
type SignatureTable struct {
	entries []Signature
	byState map[string]int
}

// Translation is the outcome of looking an error up in the table.
type Translation struct {
	Kind    ErrorKind
	Field   string
	Message string
	Code    string
}

// LoadSignatures parses a YAML signature table.
func LoadSignatures(data []byte) (*SignatureTable, error) {
	var doc struct {
		Signatures []Signature `yaml:"signatures"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse signatures: %w", err)
	}

	t := &SignatureTable{byState: make(map[string]int)}
	var errs []error
	for i, sig := range doc.Signatures {
		if !sig.Kind.valid() {
			errs = append(errs, fmt.Errorf("signature %d: unknown kind %q", i+1, sig.Kind))
			continue
		}
		if sig.SQLState == "" && len(sig.Patterns) == 0 {
			errs = append(errs, fmt.Errorf("signature %d: needs a sqlstate or at least one pattern", i+1))
			continue
		}
		for j, p := range sig.Patterns {
			sig.Patterns[j] = strings.ToLower(p)
		}
		if sig.SQLState != "" {
			if _, dup := t.byState[sig.SQLState]; dup {
				errs = append(errs, fmt.Errorf("signature %d: duplicate sqlstate %s", i+1, sig.SQLState))
				continue
			}
			t.byState[sig.SQLState] = len(t.entries)
		}
		t.entries = append(t.entries, sig)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return t, nil
}

// LoadSignaturesFile reads a signature table from path.
func LoadSignaturesFile(path string) (*SignatureTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signatures: %w", err)
	}
	return LoadSignatures(data)
}

var defaultSignatures = sync.OnceValue(func() *SignatureTable {
	t, err := LoadSignatures(defaultSignaturesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded signatures: %v", err))
	}
	return t
})

// DefaultSignatures returns the built-in PostgreSQL signature table.
func DefaultSignatures() *SignatureTable {
	return defaultSignatures()
}

// keyDetailRE extracts the column list from details such as
// `Key (email)=(a@x.com) already exists.`
var keyDetailRE = regexp.MustCompile(`^Key \(([^)]+)\)=`)

// Translate classifies err. The lookup is total: anything unrecognised is
// KindUnknown with the original message.
func (t *SignatureTable) Translate(err error) Translation {
	if err == nil {
		return Translation{Kind: KindUnknown}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		field := pgErr.ColumnName
		if field == "" {
			if m := keyDetailRE.FindStringSubmatch(pgErr.Detail); m != nil {
				field = m[1]
			}
		}
		if t != nil {
			if i, ok := t.byState[pgErr.Code]; ok {
				return t.translation(t.entries[i], field, pgErr.Message)
			}
		}
		if tr, ok := t.matchPatterns(pgErr.Message, field); ok {
			return tr
		}
		return Translation{Kind: KindUnknown, Field: field, Message: pgErr.Message}
	}

	if tr, ok := t.matchPatterns(err.Error(), ""); ok {
		return tr
	}
	return Translation{Kind: KindUnknown, Message: err.Error()}
}

func (t *SignatureTable) matchPatterns(msg, field string) (Translation, bool) {
	if t == nil {
		return Translation{}, false
	}
	lower := strings.ToLower(msg)
	for _, sig := range t.entries {
		for _, p := range sig.Patterns {
			if strings.Contains(lower, p) {
				return t.translation(sig, field, msg), true
			}
		}
	}
	return Translation{}, false
}

func (t *SignatureTable) translation(sig Signature, field, original string) Translation {
	msg := sig.Message
	if msg == "" {
		msg = original
	}
	return Translation{Kind: sig.Kind, Field: field, Message: msg, Code: sig.Code}
}
