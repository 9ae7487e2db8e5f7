// Package verrors implements the error registry, the structured error
// type, and the HTTP middleware that turns one into a sanitized response.
package verrors

import (
	"fmt"
	"os"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"
)

// CodePattern is the shape every ErrorEntry.Code and StructuredError code
// must satisfy: PREFIX-DOMAIN-NNN, e.g. "VAI-QDR-001".
var CodePattern = regexp.MustCompile(`^[A-Z]+-[A-Z]{2,6}-\d{3}$`)

// ValidDomains is the fixed set of component tags a registered code's
// domain segment may carry.
var ValidDomains = map[string]bool{
	"API": true, "CFG": true, "DB": true, "QDR": true, "LLM": true,
	"ING": true, "EMB": true, "RAG": true, "COP": true, "SEC": true,
	"SYS": true, "UX": true,
}

// ValidSeverities is the fixed severity set a registry entry may declare.
var ValidSeverities = map[string]bool{
	"DEBUG": true, "INFO": true, "WARN": true, "ERROR": true, "CRITICAL": true,
}

// ErrorEntry is an immutable catalog entry describing one registered error
// code: its safe, user-facing presentation and its HTTP mapping.
type ErrorEntry struct {
	Code                string   `yaml:"code"`
	Domain              string   `yaml:"domain"`
	Title               string   `yaml:"title"`
	Severity            string   `yaml:"severity"`
	Retryable           bool     `yaml:"retryable"`
	UserActionRequired  bool     `yaml:"user_action_required"`
	HTTPStatus          int      `yaml:"http_status"`
	SafeMessage         string   `yaml:"safe_message"`
	Remediation         []string `yaml:"remediation"`
	DetailTemplate      string   `yaml:"detail_template,omitempty"`
	Tags                []string `yaml:"tags,omitempty"`
	Deprecated          bool     `yaml:"deprecated,omitempty"`
	ReplacedBy          string   `yaml:"replaced_by,omitempty"`
	DocsURL             string   `yaml:"docs_url,omitempty"`
}

// catalogDocument is the on-disk shape of the registry catalog.
type catalogDocument struct {
	SchemaVersion int          `yaml:"schema_version"`
	Errors        []ErrorEntry `yaml:"errors"`
}

// ValidationError reports a structural problem with a catalog document.
// Startup must abort on this error — the process never runs with a
// partially loaded or inconsistent registry.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("error registry validation: %s", e.Reason)
}

// LookupError is returned by Lookup when a code has no registered entry.
type LookupError struct {
	Code string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("unknown error code: %q", e.Code)
}

// Registry holds a validated, queryable catalog of ErrorEntry values.
// Zero value is usable; Load populates it. Safe for concurrent use.
type Registry struct {
	mu            sync.RWMutex
	entries       map[string]ErrorEntry
	schemaVersion int
}

// NewRegistry returns an empty, unloaded Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]ErrorEntry)}
}

// LoadFile reads and validates a catalog document from path, replacing any
// previously loaded entries. Idempotent with respect to state: entries from
// an earlier Load call are discarded, not merged.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ValidationError{Reason: fmt.Sprintf("reading %s: %v", path, err)}
	}
	return r.Load(data)
}

// Load validates and installs a catalog document given as raw YAML bytes.
func (r *Registry) Load(data []byte) error {
	var doc catalogDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return &ValidationError{Reason: fmt.Sprintf("parsing catalog: %v", err)}
	}

	built := make(map[string]ErrorEntry, len(doc.Errors))
	for idx, entry := range doc.Errors {
		if err := validateEntry(idx, entry); err != nil {
			return err
		}
		if _, dup := built[entry.Code]; dup {
			return &ValidationError{Reason: fmt.Sprintf("duplicate code: %s", entry.Code)}
		}
		built[entry.Code] = entry
	}

	r.mu.Lock()
	r.entries = built
	r.schemaVersion = doc.SchemaVersion
	r.mu.Unlock()
	return nil
}

func validateEntry(idx int, e ErrorEntry) error {
	if !CodePattern.MatchString(e.Code) {
		return &ValidationError{Reason: fmt.Sprintf("entry %d: invalid code format %q", idx, e.Code)}
	}
	parts := codeParts(e.Code)
	if parts.domain != e.Domain {
		return &ValidationError{Reason: fmt.Sprintf("%s: domain %q doesn't match code prefix %q", e.Code, e.Domain, parts.domain)}
	}
	if !ValidDomains[e.Domain] {
		return &ValidationError{Reason: fmt.Sprintf("%s: unknown domain %q", e.Code, e.Domain)}
	}
	if !ValidSeverities[e.Severity] {
		return &ValidationError{Reason: fmt.Sprintf("%s: unknown severity %q", e.Code, e.Severity)}
	}
	if e.HTTPStatus < 100 || e.HTTPStatus > 599 {
		return &ValidationError{Reason: fmt.Sprintf("%s: http_status %d out of range", e.Code, e.HTTPStatus)}
	}
	if e.SafeMessage == "" {
		return &ValidationError{Reason: fmt.Sprintf("%s: missing safe_message", e.Code)}
	}
	return nil
}

type codeSegments struct {
	prefix, domain, seq string
}

func codeParts(code string) codeSegments {
	// CodePattern guarantees exactly two hyphens, so split is safe.
	var seg [3]string
	start := 0
	n := 0
	for i := 0; i < len(code) && n < 2; i++ {
		if code[i] == '-' {
			seg[n] = code[start:i]
			start = i + 1
			n++
		}
	}
	seg[2] = code[start:]
	return codeSegments{prefix: seg[0], domain: seg[1], seq: seg[2]}
}

// Get returns the entry for code, or nil if unregistered.
func (r *Registry) Get(code string) *ErrorEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[code]; ok {
		cp := e
		return &cp
	}
	return nil
}

// Lookup returns the entry for code, or a *LookupError if unregistered.
func (r *Registry) Lookup(code string) (ErrorEntry, error) {
	if e := r.Get(code); e != nil {
		return *e, nil
	}
	return ErrorEntry{}, &LookupError{Code: code}
}

// AllCodes returns every registered code, in no particular order.
func (r *Registry) AllCodes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.entries))
	for c := range r.entries {
		codes = append(codes, c)
	}
	return codes
}

// CodesForDomain returns every registered code whose domain matches.
func (r *Registry) CodesForDomain(domain string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var codes []string
	for c, e := range r.entries {
		if e.Domain == domain {
			codes = append(codes, c)
		}
	}
	return codes
}

// SchemaVersion returns the schema_version declared by the loaded document.
func (r *Registry) SchemaVersion() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.schemaVersion
}

// Len reports how many entries are currently loaded.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
