package layerfs

import (
	"context"
	"fmt"

	"github.com/strata-fs/strata/internal/backend"
)

// MakeLayeredFS resolves storage strings through the registry and
// builds a layered filesystem with the first string as the writable
// layer and the remainder as read-only fallbacks, searched in order.
func MakeLayeredFS(ctx context.Context, reg *backend.Registry, writeStr string, readStrs ...string) (*LayeredFS, error) {
	l := New()

	writeFS, err := reg.Resolve(ctx, writeStr)
	if err != nil {
		return nil, fmt.Errorf("resolve write layer %q: %w", writeStr, err)
	}
	if err := l.AddLayer("layer1", writeFS, true); err != nil {
		return nil, err
	}

	for i, s := range readStrs {
		fs, err := reg.Resolve(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("resolve read layer %q: %w", s, err)
		}
		name := fmt.Sprintf("layer%d", i+2)
		if err := l.AddLayer(name, fs, false); err != nil {
			return nil, err
		}
	}

	return l, nil
}
