package dispatcher

import (
	"context"
	"time"

	"github.com/websoft9/sshmux/internal/errs"
	"github.com/websoft9/sshmux/internal/keystore"
)

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

func (d *Dispatcher) toolAuthStoreCredentials(ctx context.Context, args map[string]any) (any, error) {
	host, err := requireString(args, "host")
	if err != nil {
		return nil, err
	}
	user, err := requireString(args, "user")
	if err != nil {
		return nil, err
	}
	kindStr, err := requireString(args, "kind")
	if err != nil {
		return nil, err
	}
	value, err := requireString(args, "value")
	if err != nil {
		return nil, err
	}

	var kind keystore.Kind
	switch kindStr {
	case string(keystore.KindPassword):
		kind = keystore.KindPassword
	case string(keystore.KindPrivateKey):
		kind = keystore.KindPrivateKey
	case string(keystore.KindAgent):
		kind = keystore.KindAgent
	default:
		return nil, errs.New(errs.KindConfigError, "unsupported credential kind")
	}

	if err := d.keys.Put(host, user, kind, value); err != nil {
		return nil, errs.Wrap(errs.KindConfigError, "store credential", err)
	}
	return map[string]any{"stored": true}, nil
}
