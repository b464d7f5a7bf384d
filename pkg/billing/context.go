package billing

import "context"

type settingsCtxKey struct{}

// ContextWithSettings stores settings so that clients built further down the
// call chain share them without a process-wide global.
func ContextWithSettings(ctx context.Context, s Settings) context.Context {
	return context.WithValue(ctx, settingsCtxKey{}, s)
}

// SettingsFromContext returns settings stored with ContextWithSettings.
func SettingsFromContext(ctx context.Context) (Settings, bool) {
	s, ok := ctx.Value(settingsCtxKey{}).(Settings)
	return s, ok
}

// NewClientFromContext builds a client from the settings stored in ctx.
// Options are applied after the settings and may override them.
func NewClientFromContext(ctx context.Context, remote RemoteClient, opts ...Option) (*Client, error) {
	s, ok := SettingsFromContext(ctx)
	if !ok {
		return nil, ErrSettingsNotInContext
	}
	return NewClient(remote, append([]Option{WithSettings(s)}, opts...)...)
}
