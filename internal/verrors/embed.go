package verrors

import _ "embed"

//go:embed catalog.yaml
var defaultCatalog []byte

// LoadDefault installs the catalog shipped with the binary. Operators may
// override it entirely with LoadFile against a path of their choosing; the
// shipped catalog exists so a fresh install has a working registry with no
// external file to manage.
func (r *Registry) LoadDefault() error {
	return r.Load(defaultCatalog)
}
