package marketplace

import (
	"fmt"
)

// Factory creates marketplace providers based on type
type Factory struct {
	opts Options
}

// NewFactory creates a factory whose providers share opts. The URL is only
// applied when it was set explicitly.
func NewFactory(opts Options) *Factory {
	return &Factory{opts: opts}
}

// CreateByType creates a marketplace provider by type
func (f *Factory) CreateByType(t Type) (Provider, error) {
	switch t {
	case TypeMicrosoft, "":
		return NewMicrosoft(f.opts), nil
	case TypeOpenVSX:
		return NewOpenVSX(f.opts), nil
	default:
		return nil, fmt.Errorf("unknown marketplace type: %s", t)
	}
}
