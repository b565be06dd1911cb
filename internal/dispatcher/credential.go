package dispatcher

import (
	"github.com/spf13/cast"

	"github.com/websoft9/sshmux/internal/errs"
	"github.com/websoft9/sshmux/internal/keystore"
	"github.com/websoft9/sshmux/internal/pool"
)

// resolveCredential prefers an inline credential supplied on the call
// itself and falls back to the keystore, matching the pool's own
// inline-then-resolver precedence.
func (d *Dispatcher) resolveCredential(h hostArgs, args map[string]any) (pool.Credential, error) {
	if kindRaw, ok := args["credential_kind"]; ok {
		kind := cast.ToString(kindRaw)
		secret := cast.ToString(args["credential_secret"])
		passphrase := cast.ToString(args["credential_passphrase"])
		switch kind {
		case string(pool.CredentialPassword):
			return pool.Credential{Kind: pool.CredentialPassword, Secret: secret}, nil
		case string(pool.CredentialPrivateKey):
			return pool.Credential{Kind: pool.CredentialPrivateKey, Secret: secret, Passphrase: passphrase}, nil
		default:
			return pool.Credential{}, errs.New(errs.KindConfigError, "unsupported credential_kind").WithHost(h.hostKey().String())
		}
	}

	secret, found, err := d.keys.Get(h.Host, h.User)
	if err != nil {
		return pool.Credential{}, errs.Wrap(errs.KindAuthFailure, "read credential from keystore", err).WithHost(h.hostKey().String())
	}
	if !found {
		return pool.Credential{}, errs.New(errs.KindAuthFailure, "no stored credential and none supplied").WithHost(h.hostKey().String())
	}

	switch secret.Kind {
	case keystore.KindPassword:
		return pool.Credential{Kind: pool.CredentialPassword, Secret: secret.Value}, nil
	case keystore.KindPrivateKey:
		return pool.Credential{Kind: pool.CredentialPrivateKey, Secret: secret.Value}, nil
	default:
		return pool.Credential{}, errs.New(errs.KindAuthFailure, "unsupported stored credential kind").WithHost(h.hostKey().String())
	}
}
