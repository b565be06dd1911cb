package dispatcher

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/cast"

	"github.com/websoft9/sshmux/internal/errs"
	"github.com/websoft9/sshmux/internal/pool"
)

// hostArgs is the (host, port, user) triple nearly every tool call carries.
// Decoded with spf13/cast since tool args arrive as loosely-typed JSON
// (a port may come through as a float64, a string, or an int).
type hostArgs struct {
	Host string
	Port int
	User string
}

func (h hostArgs) Validate() error {
	return validation.ValidateStruct(&h,
		validation.Field(&h.Host, validation.Required),
		validation.Field(&h.Port, validation.Min(1), validation.Max(65535)),
		validation.Field(&h.User, validation.Required),
	)
}

func (h hostArgs) hostKey() pool.HostKey {
	return pool.HostKey{Host: h.Host, Port: h.Port, User: h.User}
}

func decodeHostArgs(args map[string]any) (hostArgs, error) {
	h := hostArgs{
		Host: cast.ToString(args["host"]),
		Port: cast.ToInt(orDefault(args["port"], 22)),
		User: cast.ToString(args["user"]),
	}
	if err := h.Validate(); err != nil {
		return hostArgs{}, errs.Wrap(errs.KindConfigError, "invalid host arguments", err)
	}
	return h, nil
}

func orDefault(v any, def any) any {
	if v == nil {
		return def
	}
	return v
}

func requireString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", errs.New(errs.KindConfigError, fmt.Sprintf("missing required argument %q", key))
	}
	s := cast.ToString(v)
	if s == "" {
		return "", errs.New(errs.KindConfigError, fmt.Sprintf("argument %q must not be empty", key))
	}
	return s, nil
}

func optionalString(args map[string]any, key, def string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return def
	}
	return cast.ToString(v)
}

func optionalInt(args map[string]any, key string, def int) int {
	v, ok := args[key]
	if !ok || v == nil {
		return def
	}
	return cast.ToInt(v)
}

func optionalBool(args map[string]any, key string, def bool) bool {
	v, ok := args[key]
	if !ok || v == nil {
		return def
	}
	return cast.ToBool(v)
}
