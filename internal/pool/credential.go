package pool

// CredentialKind distinguishes how Credential.Secret should be used.
type CredentialKind string

const (
	CredentialPassword   CredentialKind = "password"
	CredentialPrivateKey CredentialKind = "private_key"
)

// Credential is resolved at connect time from either the call arguments or
// the external keystore; it is never retained by the pool beyond the life
// of a single connect attempt.
type Credential struct {
	Kind       CredentialKind
	Secret     string // password, or PEM-encoded private key body
	Passphrase string // optional, only meaningful for CredentialPrivateKey
}
