package verrors

import "testing"

func TestLoadDefaultCatalog(t *testing.T) {
	r := NewRegistry()
	if err := r.LoadDefault(); err != nil {
		t.Fatalf("LoadDefault() error: %v", err)
	}
	if r.SchemaVersion() != 1 {
		t.Errorf("expected schema_version 1, got %d", r.SchemaVersion())
	}
	if r.Len() == 0 {
		t.Fatal("expected at least one entry")
	}

	entry, err := r.Lookup("VAI-QDR-001")
	if err != nil {
		t.Fatalf("Lookup(VAI-QDR-001) error: %v", err)
	}
	if entry.HTTPStatus != 503 {
		t.Errorf("expected http_status 503, got %d", entry.HTTPStatus)
	}
	if entry.Domain != "QDR" {
		t.Errorf("expected domain QDR, got %s", entry.Domain)
	}
}

func TestLookupUnknownCode(t *testing.T) {
	r := NewRegistry()
	if err := r.LoadDefault(); err != nil {
		t.Fatalf("LoadDefault() error: %v", err)
	}
	_, err := r.Lookup("VAI-QDR-999")
	if err == nil {
		t.Fatal("expected an error for unknown code")
	}
	if _, ok := err.(*LookupError); !ok {
		t.Fatalf("expected *LookupError, got %T", err)
	}
}

func TestCodesForDomain(t *testing.T) {
	r := NewRegistry()
	if err := r.LoadDefault(); err != nil {
		t.Fatalf("LoadDefault() error: %v", err)
	}
	codes := r.CodesForDomain("DB")
	if len(codes) != 2 {
		t.Errorf("expected 2 DB codes, got %d: %v", len(codes), codes)
	}
}

func TestLoadRejectsDomainMismatch(t *testing.T) {
	r := NewRegistry()
	bad := []byte(`
schema_version: 1
errors:
  - code: VAI-QDR-001
    domain: DB
    title: x
    severity: WARN
    retryable: true
    user_action_required: false
    http_status: 503
    safe_message: "x"
    remediation: []
`)
	err := r.Load(bad)
	if err == nil {
		t.Fatal("expected validation error for domain/code mismatch")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
}

func TestLoadRejectsDuplicateCode(t *testing.T) {
	r := NewRegistry()
	bad := []byte(`
schema_version: 1
errors:
  - code: VAI-QDR-001
    domain: QDR
    title: x
    severity: WARN
    retryable: true
    user_action_required: false
    http_status: 503
    safe_message: "x"
    remediation: []
  - code: VAI-QDR-001
    domain: QDR
    title: y
    severity: WARN
    retryable: true
    user_action_required: false
    http_status: 503
    safe_message: "y"
    remediation: []
`)
	err := r.Load(bad)
	if err == nil {
		t.Fatal("expected validation error for duplicate code")
	}
}

func TestLoadRejectsBadCodeFormat(t *testing.T) {
	r := NewRegistry()
	bad := []byte(`
schema_version: 1
errors:
  - code: not-a-code
    domain: QDR
    title: x
    severity: WARN
    retryable: true
    user_action_required: false
    http_status: 503
    safe_message: "x"
    remediation: []
`)
	if err := r.Load(bad); err == nil {
		t.Fatal("expected validation error for malformed code")
	}
}

func TestLoadRejectsUnknownSeverity(t *testing.T) {
	r := NewRegistry()
	bad := []byte(`
schema_version: 1
errors:
  - code: VAI-QDR-001
    domain: QDR
    title: x
    severity: WHATEVER
    retryable: true
    user_action_required: false
    http_status: 503
    safe_message: "x"
    remediation: []
`)
	if err := r.Load(bad); err == nil {
		t.Fatal("expected validation error for unknown severity")
	}
}

func TestLoadReplacesEarlierEntries(t *testing.T) {
	r := NewRegistry()
	if err := r.LoadDefault(); err != nil {
		t.Fatalf("LoadDefault() error: %v", err)
	}
	first := r.Len()
	if first == 0 {
		t.Fatal("expected default catalog to be non-empty")
	}

	only := []byte(`
schema_version: 2
errors:
  - code: VAI-QDR-001
    domain: QDR
    title: x
    severity: WARN
    retryable: true
    user_action_required: false
    http_status: 503
    safe_message: "x"
    remediation: []
`)
	if err := r.Load(only); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("expected earlier entries replaced, got %d entries", r.Len())
	}
	if r.SchemaVersion() != 2 {
		t.Errorf("expected schema_version 2, got %d", r.SchemaVersion())
	}
}

func TestGetReturnsNilForUnregistered(t *testing.T) {
	r := NewRegistry()
	if e := r.Get("VAI-QDR-999"); e != nil {
		t.Errorf("expected nil for unregistered code, got %+v", e)
	}
}
